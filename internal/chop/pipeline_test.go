package chop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/chopper/internal/audio"
)

type memStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	meta    map[string]map[string]any
	names   map[string]string
	next    int
	failAt  int
	putErr  error
	getErrs map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		blobs:   make(map[string][]byte),
		meta:    make(map[string]map[string]any),
		names:   make(map[string]string),
		failAt:  -1,
		getErrs: make(map[string]error),
	}
}

func (s *memStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErrs[id]; err != nil {
		return nil, err
	}
	data, ok := s.blobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, data []byte, filename string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt >= 0 && s.next == s.failAt {
		return "", s.putErr
	}
	id := fmt.Sprintf("id-%03d", s.next)
	s.next++
	s.blobs[id] = data
	s.meta[id] = metadata
	s.names[id] = filename
	return id, nil
}

type passthroughSeparator struct {
	err error
}

func (p passthroughSeparator) SeparateHarmonic(_ context.Context, wf *audio.Waveform) (*audio.Waveform, error) {
	if p.err != nil {
		return nil, p.err
	}
	return wf, nil
}

type fixedOnsets struct {
	times []float64
	err   error
}

func (f fixedOnsets) DetectOnsets(context.Context, *audio.Waveform, OnsetParams) ([]float64, error) {
	return f.times, f.err
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordChops(ctx context.Context, sourceID string, chops []Segment, selected []int) error {
	args := m.Called(ctx, sourceID, chops, selected)
	return args.Error(0)
}

// testTrack alternates a quiet low tone and a loud high tone every half second.
func testTrack(t *testing.T) *audio.Waveform {
	t.Helper()
	sr := 22050
	var samples []float64
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			samples = append(samples, sine(220, sr, 0.5, 0.1+0.01*float64(i))...)
		} else {
			samples = append(samples, sine(3520, sr, 0.5, 0.6+0.01*float64(i))...)
		}
	}
	wf, err := audio.NewWaveform(samples, sr)
	require.NoError(t, err)
	return wf
}

func halfSecondOnsets() fixedOnsets {
	return fixedOnsets{times: []float64{0, 0.5, 1.0, 1.5, 2.0, 2.5}}
}

func testParams() Params {
	p := DefaultParams()
	p.DefaultLength = 0.5
	p.NClusters = 2
	p.MaxChops = 4
	return p
}

func TestPipeline_Chop(t *testing.T) {
	store := newMemStore()
	rec := &mockRecorder{}
	rec.On("RecordChops", mock.Anything, "track-1", mock.Anything, mock.Anything).Return(nil)

	p := NewPipeline(store, audio.NewAutoDecoder(nil), passthroughSeparator{}, halfSecondOnsets(),
		WithRecorder(rec), WithWorkers(3))

	res, err := p.Chop(context.Background(), testTrack(t), "track-1", testParams())
	require.NoError(t, err)

	assert.Equal(t, "track-1", res.SourceID)
	assert.Equal(t, 6, res.TotalSegments)
	assert.Equal(t, ClusterStatusClustered, res.ClusterStatus)
	require.Len(t, res.Segments, 6)
	require.Len(t, res.Representatives, 4)

	// Every computed chop is stored, not only the representatives.
	assert.Len(t, store.blobs, 6)
	for i, s := range res.Segments {
		require.NotEmpty(t, s.ID)
		assert.Equal(t, i, s.Index)
		assert.Equal(t, s.Name+".wav", store.names[s.ID])
		assert.Equal(t, "track-1", store.meta[s.ID]["source_track_id"])
		assert.Equal(t, ProcessingChop, store.meta[s.ID]["processing_type"])
	}

	// Quiet low chops and loud high chops form the two groups.
	for _, s := range res.Segments {
		assert.Equal(t, res.Segments[s.Index%2].Cluster, s.Cluster)
	}
	assert.NotEqual(t, res.Segments[0].Cluster, res.Segments[1].Cluster)

	clusters := make(map[int]int)
	for _, r := range res.Representatives {
		assert.NotEmpty(t, r.ID)
		clusters[r.Cluster]++
	}
	assert.Equal(t, map[int]int{0: 2, 1: 2}, clusters)

	rec.AssertCalled(t, "RecordChops", mock.Anything, "track-1", mock.Anything, res.Selection.Indices)
}

func TestPipeline_NoOnsets(t *testing.T) {
	store := newMemStore()
	p := NewPipeline(store, audio.NewAutoDecoder(nil), passthroughSeparator{}, fixedOnsets{})

	wf := testTrack(t)
	res, err := p.Chop(context.Background(), wf, "track-2", testParams())
	require.NoError(t, err)

	require.Len(t, res.Segments, 1)
	assert.Equal(t, 0.0, res.Segments[0].Start)
	assert.InDelta(t, wf.Duration(), res.Segments[0].End, 1e-9)
	assert.Equal(t, []int{0}, res.Selection.Indices)
	assert.Equal(t, ClusterStatusSingle, res.ClusterStatus)
}

func TestPipeline_WorkerCountDoesNotChangeResult(t *testing.T) {
	run := func(workers int) *Result {
		p := NewPipeline(newMemStore(), audio.NewAutoDecoder(nil), passthroughSeparator{}, halfSecondOnsets(),
			WithWorkers(workers))
		res, err := p.Chop(context.Background(), testTrack(t), "track", testParams())
		require.NoError(t, err)
		return res
	}
	assert.Equal(t, run(1), run(8))
}

func TestPipeline_Run(t *testing.T) {
	store := newMemStore()
	wf := testTrack(t)
	data, err := audio.EncodeWAVBytes(wf.Samples, wf.SampleRate)
	require.NoError(t, err)
	store.blobs["source"] = data

	p := NewPipeline(store, audio.NewAutoDecoder(nil), passthroughSeparator{}, halfSecondOnsets())
	res, err := p.Run(context.Background(), "source", testParams())
	require.NoError(t, err)
	assert.Equal(t, 6, res.TotalSegments)
	assert.Len(t, store.blobs, 7)
}

func TestPipeline_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		store   func() *memStore
		sep     Separator
		onsets  OnsetDetector
		params  func() Params
		run     bool
		wantErr error
	}{
		{
			name:    "separation failure",
			store:   newMemStore,
			sep:     passthroughSeparator{err: boom},
			onsets:  halfSecondOnsets(),
			params:  testParams,
			wantErr: ErrSeparation,
		},
		{
			name:    "onset failure",
			store:   newMemStore,
			sep:     passthroughSeparator{},
			onsets:  fixedOnsets{err: boom},
			params:  testParams,
			wantErr: ErrOnsetDetection,
		},
		{
			name: "store failure",
			store: func() *memStore {
				s := newMemStore()
				s.failAt = 2
				s.putErr = boom
				return s
			},
			sep:     passthroughSeparator{},
			onsets:  halfSecondOnsets(),
			params:  testParams,
			wantErr: ErrStore,
		},
		{
			name:   "invalid params",
			store:  newMemStore,
			sep:    passthroughSeparator{},
			onsets: halfSecondOnsets(),
			params: func() Params {
				p := testParams()
				p.MaxChops = 0
				return p
			},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "unknown track",
			store:   newMemStore,
			sep:     passthroughSeparator{},
			onsets:  halfSecondOnsets(),
			params:  testParams,
			run:     true,
			wantErr: ErrStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.store(), audio.NewAutoDecoder(nil), tt.sep, tt.onsets)

			var (
				res *Result
				err error
			)
			if tt.run {
				res, err = p.Run(context.Background(), "missing", tt.params())
			} else {
				res, err = p.Chop(context.Background(), testTrack(t), "track", tt.params())
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
		})
	}
}

func TestPipeline_RecorderFailureIsNotFatal(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("RecordChops", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db locked"))

	p := NewPipeline(newMemStore(), audio.NewAutoDecoder(nil), passthroughSeparator{}, halfSecondOnsets(), WithRecorder(rec))
	res, err := p.Chop(context.Background(), testTrack(t), "track", testParams())

	require.NoError(t, err)
	assert.Len(t, res.Representatives, 4)
	rec.AssertExpectations(t)
}

func TestPipeline_ExtractHarmonic(t *testing.T) {
	store := newMemStore()
	wf := testTrack(t)
	data, err := audio.EncodeWAVBytes(wf.Samples, wf.SampleRate)
	require.NoError(t, err)
	store.blobs["source"] = data

	p := NewPipeline(store, audio.NewAutoDecoder(nil), passthroughSeparator{}, halfSecondOnsets())
	id, err := p.ExtractHarmonic(context.Background(), "source")
	require.NoError(t, err)

	assert.Equal(t, "source_harmonic.wav", store.names[id])
	assert.Equal(t, ProcessingHarmonic, store.meta[id]["processing_type"])

	_, err = NewPipeline(store, audio.NewAutoDecoder(nil), passthroughSeparator{err: errors.New("down")}, halfSecondOnsets()).
		ExtractHarmonic(context.Background(), "source")
	assert.ErrorIs(t, err, ErrSeparation)
}
