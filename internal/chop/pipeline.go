package chop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/chopper/internal/audio"
)

// Sentinel errors returned by the pipeline. Each is wrapped with the cause.
var (
	ErrInvalidParams  = errors.New("invalid chop parameters")
	ErrDecode         = errors.New("decode track")
	ErrSeparation     = errors.New("harmonic separation failed")
	ErrOnsetDetection = errors.New("onset detection failed")
	ErrStore          = errors.New("store failed")
)

// ProcessingType values written to stored metadata.
const (
	ProcessingHarmonic = "harmonic"
	ProcessingChop     = "harmonic_chop"
)

// Separator extracts the harmonic component of a waveform.
type Separator interface {
	SeparateHarmonic(ctx context.Context, wf *audio.Waveform) (*audio.Waveform, error)
}

// OnsetDetector returns ascending onset times in seconds.
type OnsetDetector interface {
	DetectOnsets(ctx context.Context, wf *audio.Waveform, p OnsetParams) ([]float64, error)
}

// Store is the blob store the pipeline reads tracks from and writes chops to.
type Store interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, data []byte, filename string, metadata map[string]any) (string, error)
}

// Recorder indexes the chops produced by a run. Failures are logged and do
// not fail the run.
type Recorder interface {
	RecordChops(ctx context.Context, sourceID string, chops []Segment, selected []int) error
}

// ChopSummary is the lightweight description of a representative chop.
type ChopSummary struct {
	ID           string  `json:"chop_id"`
	Name         string  `json:"name"`
	Index        int     `json:"index"`
	Start        float64 `json:"start_time"`
	End          float64 `json:"end_time"`
	Duration     float64 `json:"duration"`
	Cluster      int     `json:"cluster"`
	Rank         int     `json:"rank"`
	RMS          float64 `json:"rms"`
	DominantNote string  `json:"dominant_note,omitempty"`
	Descriptor   string  `json:"descriptor"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	SourceID        string        `json:"source_track_id"`
	Representatives []ChopSummary `json:"representatives"`
	Selection       Selection     `json:"selection"`
	TotalSegments   int           `json:"total_segments"`
	ClusterStatus   ClusterStatus `json:"cluster_status"`
	ClusterReason   string        `json:"cluster_reason,omitempty"`
	// Segments holds every computed chop. It is not serialised.
	Segments []Segment `json:"-"`
}

// Pipeline cuts tracks into representative chops.
type Pipeline struct {
	store     Store
	decoder   audio.Decoder
	separator Separator
	onsets    OnsetDetector
	recorder  Recorder
	extractor *Extractor
	assigner  *Assigner
	workers   int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the chop index updated after every run.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithWorkers bounds the number of segments analysed concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithAssigner replaces the default clustering configuration.
func WithAssigner(a *Assigner) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.assigner = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(store Store, decoder audio.Decoder, separator Separator, onsets OnsetDetector, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		decoder:   decoder,
		separator: separator,
		onsets:    onsets,
		extractor: NewExtractor(),
		assigner:  NewAssigner(),
		workers:   1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loads trackID from the store and chops it.
func (p *Pipeline) Run(ctx context.Context, trackID string, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	wf, err := p.load(ctx, trackID)
	if err != nil {
		return nil, err
	}
	return p.Chop(ctx, wf, trackID, params)
}

// ExtractHarmonic stores the harmonic component of trackID as a new track
// and returns its id.
func (p *Pipeline) ExtractHarmonic(ctx context.Context, trackID string) (string, error) {
	wf, err := p.load(ctx, trackID)
	if err != nil {
		return "", err
	}
	harmonic, err := p.separator.SeparateHarmonic(ctx, wf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSeparation, err)
	}

	data, err := audio.EncodeWAVBytes(harmonic.Samples, harmonic.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encode harmonic: %w", err)
	}
	id, err := p.store.Put(ctx, data, trackID+"_harmonic.wav", map[string]any{
		"source_track_id":  trackID,
		"processing_type":  ProcessingHarmonic,
		"sample_rate":      harmonic.SampleRate,
		"channels":         1,
		"duration_seconds": harmonic.Duration(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}
	p.logger.Info("harmonic component stored",
		slog.String("source_track_id", trackID),
		slog.String("track_id", id),
	)
	return id, nil
}

// Chop runs the pipeline on an in-memory waveform. sourceID is recorded in
// the metadata of every stored chop.
//
// Every computed chop is stored; only the representatives are summarised in
// the result. A store failure aborts the run and no identifiers are returned.
func (p *Pipeline) Chop(ctx context.Context, wf *audio.Waveform, sourceID string, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if wf == nil || wf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrDecode, audio.ErrInvalidSampleRate)
	}
	started := time.Now()
	log := p.logger.With(slog.String("source_track_id", sourceID))

	harmonic, err := p.separator.SeparateHarmonic(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSeparation, err)
	}
	onsets, err := p.onsets.DetectOnsets(ctx, harmonic, params.Onset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOnsetDetection, err)
	}
	log.Debug("onsets detected", slog.Int("count", len(onsets)))

	intervals := SegmentOnsets(onsets, harmonic.Duration(), params.MinDuration, params.DefaultLength)
	segments, err := p.extract(ctx, harmonic, intervals)
	if err != nil {
		return nil, err
	}

	vectors := make([]Vector, len(segments))
	for i := range segments {
		vectors[i] = segments[i].Vector
	}
	assignment := p.assigner.Assign(vectors, params.NClusters)
	if assignment.Status == ClusterStatusDegraded {
		log.Warn("clustering degraded to a single group", slog.String("reason", assignment.Reason))
	}
	candidates := make([]Candidate, len(segments))
	for i := range segments {
		segments[i].Cluster = assignment.Labels[i]
		candidates[i] = Candidate{Index: i, Cluster: segments[i].Cluster, Energy: segments[i].Bundle.RMS}
	}

	selection := Select(candidates, params.MaxChops)
	selected := make(map[int]Pick, len(selection.Picks))
	for _, pick := range selection.Picks {
		selected[pick.Index] = pick
	}

	if err := p.persist(ctx, harmonic, sourceID, segments, selected); err != nil {
		return nil, err
	}

	if p.recorder != nil {
		if err := p.recorder.RecordChops(ctx, sourceID, segments, selection.Indices); err != nil {
			log.Warn("failed to index chops", slog.String("error", err.Error()))
		}
	}

	result := &Result{
		SourceID:        sourceID,
		Representatives: make([]ChopSummary, 0, len(selection.Picks)),
		Selection:       selection,
		TotalSegments:   len(segments),
		ClusterStatus:   assignment.Status,
		ClusterReason:   assignment.Reason,
		Segments:        segments,
	}
	for _, pick := range selection.Picks {
		s := &segments[pick.Index]
		result.Representatives = append(result.Representatives, ChopSummary{
			ID:           s.ID,
			Name:         s.Name,
			Index:        s.Index,
			Start:        s.Start,
			End:          s.End,
			Duration:     s.Duration(),
			Cluster:      s.Cluster,
			Rank:         pick.Rank,
			RMS:          s.Bundle.RMS,
			DominantNote: s.Bundle.DominantNote,
			Descriptor:   s.Descriptor(),
		})
	}

	log.Info("track chopped",
		slog.Int("segments", len(segments)),
		slog.Int("representatives", len(result.Representatives)),
		slog.Int("clusters", assignment.K),
		slog.String("cluster_status", string(assignment.Status)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (p *Pipeline) load(ctx context.Context, trackID string) (*audio.Waveform, error) {
	data, err := p.store.Get(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrStore, trackID, err)
	}
	wf, err := p.decoder.Decode(ctx, data, trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return wf, nil
}

// extract describes every interval. Results are written by index, so the
// output does not depend on the number of workers.
func (p *Pipeline) extract(ctx context.Context, wf *audio.Waveform, intervals []Interval) ([]Segment, error) {
	segments := make([]Segment, len(intervals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, iv := range intervals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bundle := p.extractor.Extract(wf.Slice(iv.Start, iv.End), wf.SampleRate)
			segments[i] = Segment{
				Interval: iv,
				Index:    i,
				Name:     chopName(i),
				Bundle:   bundle,
				Vector:   bundle.Vector(),
				Cluster:  Unclustered,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	empty := 0
	for i := range segments {
		if segments[i].Bundle.Empty {
			empty++
		}
	}
	if empty > 0 {
		p.logger.Debug("segments outside the track got zero features", slog.Int("count", empty))
	}
	return segments, nil
}

// persist stores every segment as a mono WAV chop and sets its ID.
func (p *Pipeline) persist(ctx context.Context, wf *audio.Waveform, sourceID string, segments []Segment, selected map[int]Pick) error {
	for i := range segments {
		s := &segments[i]
		data, err := audio.EncodeWAVBytes(wf.Slice(s.Start, s.End), wf.SampleRate)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", ErrStore, s.Name, err)
		}

		_, isRep := selected[i]
		id, err := p.store.Put(ctx, data, s.Name+".wav", map[string]any{
			"source_track_id":  sourceID,
			"processing_type":  ProcessingChop,
			"chop_index":       s.Index,
			"chop_name":        s.Name,
			"start_time":       s.Start,
			"end_time":         s.End,
			"duration":         s.Duration(),
			"duration_seconds": s.Duration(),
			"sample_rate":      wf.SampleRate,
			"channels":         1,
			"cluster":          s.Cluster,
			"selected":         isRep,
			"descriptor":       s.Descriptor(),
			"features":         s.Bundle,
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStore, s.Name, err)
		}
		s.ID = id
	}
	return nil
}
