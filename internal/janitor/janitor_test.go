package janitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
	ids    []string
	err    error
}

func (c *countingCleaner) Cleanup(_ context.Context, maxAge time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.maxAge = maxAge
	return c.ids, c.err
}

func (c *countingCleaner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type mockForgetter struct {
	mock.Mock
}

func (m *mockForgetter) Forget(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func TestRunOnce_ForwardsRemovedIDs(t *testing.T) {
	cleaner := &countingCleaner{ids: []string{"a", "b"}}
	forgetter := &mockForgetter{}
	forgetter.On("Forget", mock.Anything, []string{"a", "b"}).Return(int64(4), nil)

	j := New(cleaner, forgetter, 2*time.Hour, time.Hour, nil)
	removed, err := j.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Equal(t, 2*time.Hour, cleaner.maxAge)
	forgetter.AssertExpectations(t)
}

func TestRunOnce_NothingRemoved(t *testing.T) {
	forgetter := &mockForgetter{}
	j := New(&countingCleaner{}, forgetter, time.Hour, time.Hour, nil)

	removed, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
	forgetter.AssertNotCalled(t, "Forget", mock.Anything, mock.Anything)
}

func TestRunOnce_ErrorsAreReturned(t *testing.T) {
	boom := errors.New("disk full")
	j := New(&countingCleaner{err: boom}, nil, time.Hour, time.Hour, nil)

	_, err := j.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStartStop(t *testing.T) {
	cleaner := &countingCleaner{}
	j := New(cleaner, nil, time.Hour, 5*time.Millisecond, nil)

	j.Start(context.Background())
	j.Start(context.Background())

	assert.Eventually(t, func() bool { return cleaner.Calls() >= 3 }, time.Second, time.Millisecond)

	j.Stop()
	after := cleaner.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, cleaner.Calls(), "janitor kept running after Stop")

	// Stop is idempotent.
	j.Stop()
}

func TestStart_ContextCancellation(t *testing.T) {
	cleaner := &countingCleaner{}
	j := New(cleaner, nil, time.Hour, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	assert.Eventually(t, func() bool { return cleaner.Calls() == 1 }, time.Second, time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
