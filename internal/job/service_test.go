package job

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/maauso/chopper/internal/chop"
)

type stubRunner struct {
	result *chop.Result
	err    error
	block  bool
	calls  int
}

func (s *stubRunner) Run(ctx context.Context, trackID string, _ chop.Params) (*chop.Result, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.SourceID = trackID
	return &res, nil
}

func TestNewChopService(t *testing.T) {
	repo := NewMemoryRepository()

	svc := NewChopService(repo, &stubRunner{}, nil)
	if svc.logger == nil {
		t.Error("expected default logger")
	}
	if svc.timeout != 30*time.Minute {
		t.Errorf("expected default timeout, got %s", svc.timeout)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc2 := NewChopService(repo, &stubRunner{}, logger)
	if svc2.logger != logger {
		t.Error("expected custom logger to be set")
	}

	svc2.SetTimeout(0)
	if svc2.timeout != 30*time.Minute {
		t.Error("non-positive timeout should be ignored")
	}
}

func TestChopService_CreateJob(t *testing.T) {
	svc := NewChopService(NewMemoryRepository(), &stubRunner{}, nil)

	job, err := svc.CreateJob(context.Background(), "track", chop.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected %s, got %s", StatusInQueue, job.Status)
	}

	got, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.TrackID != "track" {
		t.Errorf("expected track id to round trip, got %s", got.TrackID)
	}
}

func TestChopService_CreateJob_InvalidParams(t *testing.T) {
	svc := NewChopService(NewMemoryRepository(), &stubRunner{}, nil)
	params := chop.DefaultParams()
	params.MaxChops = 0

	_, err := svc.CreateJob(context.Background(), "track", params)
	if !errors.Is(err, chop.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestChopService_Process_Completed(t *testing.T) {
	runner := &stubRunner{result: &chop.Result{TotalSegments: 7}}
	svc := NewChopService(NewMemoryRepository(), runner, nil)

	job, err := svc.Process(context.Background(), "track", chop.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected %s, got %s", StatusCompleted, job.Status)
	}
	if job.Result == nil || job.Result.TotalSegments != 7 || job.Result.SourceID != "track" {
		t.Errorf("unexpected result %+v", job.Result)
	}
	if runner.calls != 1 {
		t.Errorf("expected one run, got %d", runner.calls)
	}
}

func TestChopService_Process_Failed(t *testing.T) {
	boom := errors.New("decode failed")
	svc := NewChopService(NewMemoryRepository(), &stubRunner{err: boom}, nil)

	job, err := svc.Process(context.Background(), "track", chop.DefaultParams())
	if !errors.Is(err, boom) {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	if job.Status != StatusFailed || job.Error != boom.Error() {
		t.Errorf("unexpected job state %s %q", job.Status, job.Error)
	}
}

func TestChopService_Process_TimedOut(t *testing.T) {
	svc := NewChopService(NewMemoryRepository(), &stubRunner{block: true}, nil)
	svc.SetTimeout(10 * time.Millisecond)

	job, err := svc.Process(context.Background(), "track", chop.DefaultParams())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if job.Status != StatusTimedOut {
		t.Errorf("expected %s, got %s", StatusTimedOut, job.Status)
	}
}

func TestChopService_Process_Cancelled(t *testing.T) {
	svc := NewChopService(NewMemoryRepository(), &stubRunner{block: true}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	job, err := svc.Process(ctx, "track", chop.DefaultParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if job.Status != StatusCancelled {
		t.Errorf("expected %s, got %s", StatusCancelled, job.Status)
	}
}

func TestChopService_ProcessExistingJob_NotFound(t *testing.T) {
	svc := NewChopService(NewMemoryRepository(), &stubRunner{}, nil)
	if err := svc.ProcessExistingJob(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestChopService_ProcessExistingJob_AlreadyFinished(t *testing.T) {
	runner := &stubRunner{result: &chop.Result{}}
	svc := NewChopService(NewMemoryRepository(), runner, nil)

	job, _ := svc.Process(context.Background(), "track", chop.DefaultParams())
	if err := svc.ProcessExistingJob(context.Background(), job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if runner.calls != 1 {
		t.Errorf("finished job was run again")
	}
}

func TestChopService_Cleanup(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewChopService(repo, &stubRunner{result: &chop.Result{}}, nil)
	ctx := context.Background()

	done, _ := svc.Process(ctx, "old", chop.DefaultParams())
	queued, _ := svc.CreateJob(ctx, "queued", chop.DefaultParams())

	removed, err := svc.Cleanup(ctx, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("fresh jobs should be kept, removed %v", removed)
	}

	removed, err = svc.Cleanup(ctx, -time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 || removed[0] != done.ID {
		t.Errorf("expected only the finished job to be removed, got %v", removed)
	}
	if _, err := svc.GetJob(ctx, queued.ID); err != nil {
		t.Errorf("queued job should survive cleanup: %v", err)
	}
}
