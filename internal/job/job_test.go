package job

import (
	"testing"

	"github.com/maauso/chopper/internal/chop"
)

func TestNew(t *testing.T) {
	job := New("track-1", chop.DefaultParams())

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.TrackID != "track-1" {
		t.Errorf("expected track id track-1, got %s", job.TrackID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
	if job.Params.NClusters != chop.DefaultParams().NClusters {
		t.Errorf("expected default params, got %+v", job.Params)
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id, "track", chop.DefaultParams())

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"IN_QUEUE to TIMED_OUT", StatusInQueue, StatusTimedOut, true},

		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"RUNNING to TIMED_OUT", StatusRunning, StatusTimedOut, false},
		{"RUNNING to IN_QUEUE", StatusRunning, StatusInQueue, true},

		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
		{"TIMED_OUT to COMPLETED", StatusTimedOut, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("job", "track", chop.DefaultParams())
			job.Status = tt.from

			err := job.TransitionTo(tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				if job.Status != tt.from {
					t.Errorf("status changed on invalid transition: %s", job.Status)
				}
				return
			}
			if job.Status != tt.to {
				t.Errorf("expected status %s, got %s", tt.to, job.Status)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := New("track", chop.DefaultParams())

	if err := job.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	result := &chop.Result{SourceID: "track", TotalSegments: 4}
	if err := job.Complete(result); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if job.Result != result {
		t.Error("expected result to be stored")
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if !job.IsTerminal() {
		t.Error("expected completed job to be terminal")
	}
	if err := job.Fail("late"); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "" {
		t.Errorf("error message set on rejected transition: %q", job.Error)
	}
}

func TestJob_Fail(t *testing.T) {
	job := New("track", chop.DefaultParams())
	_ = job.Start()

	if err := job.Fail("decode failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if job.GetStatus() != StatusFailed {
		t.Errorf("expected FAILED, got %s", job.GetStatus())
	}
	if job.Error != "decode failed" {
		t.Errorf("unexpected error message %q", job.Error)
	}
}

func TestJob_Timeout(t *testing.T) {
	job := New("track", chop.DefaultParams())
	if err := job.Timeout(); err != ErrInvalidTransition {
		t.Errorf("expected queued job to reject timeout, got %v", err)
	}

	_ = job.Start()
	if err := job.Timeout(); err != nil {
		t.Fatalf("Timeout: %v", err)
	}
	if job.Status != StatusTimedOut || job.Error == "" {
		t.Errorf("unexpected job state %s %q", job.Status, job.Error)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("track", chop.DefaultParams())
	_ = job.Start()

	clone := job.Clone()
	if clone.ID != job.ID || clone.Status != job.Status || clone.StartedAt != job.StartedAt {
		t.Errorf("clone differs from original: %+v", clone)
	}

	_ = job.Fail("boom")
	if clone.Status != StatusRunning {
		t.Errorf("clone changed with original: %s", clone.Status)
	}
}
