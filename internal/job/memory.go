package job

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in a map guarded by an RWMutex, with a
// secondary index from track id to job ids. Jobs are lost on restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	byTrack map[string]map[string]struct{}
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:    make(map[string]*Job),
		byTrack: make(map[string]map[string]struct{}),
	}
}

// Save stores a clone of job.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	stored := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[stored.ID] = stored
	ids, ok := r.byTrack[stored.TrackID]
	if !ok {
		ids = make(map[string]struct{})
		r.byTrack[stored.TrackID] = ids
	}
	ids[stored.ID] = struct{}{}
	return nil
}

// FindByID returns a clone of the job.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// FindByTrack returns clones of the jobs of trackID, oldest first.
func (r *MemoryRepository) FindByTrack(_ context.Context, trackID string) ([]*Job, error) {
	r.mu.RLock()
	ids := r.byTrack[trackID]
	out := make([]*Job, 0, len(ids))
	for id := range ids {
		out = append(out, r.jobs[id].Clone())
	}
	r.mu.RUnlock()

	sortByCreation(out)
	return out, nil
}

// List returns clones of all jobs, oldest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	r.mu.RUnlock()

	sortByCreation(out)
	return out, nil
}

// Delete removes a job and its track index entry.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	if ids := r.byTrack[job.TrackID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byTrack, job.TrackID)
		}
	}
	return nil
}

func sortByCreation(jobs []*Job) {
	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
