package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/chopper/internal/chop"
)

// Runner executes the chop pipeline for a stored track.
type Runner interface {
	Run(ctx context.Context, trackID string, params chop.Params) (*chop.Result, error)
}

// ChopService creates chop jobs and drives them through the pipeline.
type ChopService struct {
	repo    Repository
	runner  Runner
	logger  *slog.Logger
	timeout time.Duration
}

// NewChopService creates a new ChopService.
func NewChopService(repo Repository, runner Runner, logger *slog.Logger) *ChopService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChopService{
		repo:    repo,
		runner:  runner,
		logger:  logger,
		timeout: 30 * time.Minute,
	}
}

// SetTimeout bounds how long a single job may run.
func (s *ChopService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// CreateJob validates params and persists a new IN_QUEUE job.
func (s *ChopService) CreateJob(ctx context.Context, trackID string, params chop.Params) (*Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	job := New(trackID, params)

	s.logger.Info("creating new chop job",
		slog.String("job_id", job.ID),
		slog.String("track_id", trackID),
		slog.Int("n_clusters", params.NClusters),
		slog.Int("max_chops", params.MaxChops),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *ChopService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// JobsForTrack returns the jobs of trackID, oldest first.
func (s *ChopService) JobsForTrack(ctx context.Context, trackID string) ([]*Job, error) {
	return s.repo.FindByTrack(ctx, trackID)
}

// ProcessExistingJob runs the pipeline for a job created by CreateJob and
// stores its outcome. The returned error is the pipeline error, if any;
// the job itself records it as FAILED, CANCELLED or TIMED_OUT.
func (s *ChopService) ProcessExistingJob(ctx context.Context, jobID string) error {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	log := s.logger.With(slog.String("job_id", job.ID), slog.String("track_id", job.TrackID))

	if err := job.Start(); err != nil {
		return fmt.Errorf("start job %s: %w", job.ID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, runErr := s.runner.Run(runCtx, job.TrackID, job.Params)
	switch {
	case runErr == nil:
		_ = job.Complete(result)
		log.Info("chop job completed",
			slog.Int("segments", result.TotalSegments),
			slog.Int("representatives", len(result.Representatives)),
		)
	case errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() == nil:
		_ = job.Timeout()
		log.Warn("chop job timed out", slog.Duration("timeout", s.timeout))
	case errors.Is(runErr, context.Canceled):
		_ = job.Cancel()
		log.Warn("chop job cancelled")
	default:
		_ = job.Fail(runErr.Error())
		log.Error("chop job failed", slog.String("error", runErr.Error()))
	}

	// Persist the outcome even if the caller's context is gone.
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		return err
	}
	return runErr
}

// Process creates a job and runs it synchronously, returning the final job.
func (s *ChopService) Process(ctx context.Context, trackID string, params chop.Params) (*Job, error) {
	job, err := s.CreateJob(ctx, trackID, params)
	if err != nil {
		return nil, err
	}
	runErr := s.ProcessExistingJob(ctx, job.ID)

	final, err := s.repo.FindByID(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, err
	}
	return final, runErr
}

// Cleanup deletes terminal jobs that finished more than maxAge ago and
// returns their ids.
func (s *ChopService) Cleanup(ctx context.Context, maxAge time.Duration) ([]string, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)

	var removed []string
	for _, j := range jobs {
		if !j.IsTerminal() || j.CompletedAt.After(cutoff) {
			continue
		}
		if err := s.repo.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return removed, err
		}
		removed = append(removed, j.ID)
	}
	return removed, nil
}
