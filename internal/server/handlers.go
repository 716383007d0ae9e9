package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/chopper/internal/catalog"
	"github.com/maauso/chopper/internal/chop"
	"github.com/maauso/chopper/internal/job"
	jobid "github.com/maauso/chopper/internal/job/id"
	"github.com/maauso/chopper/internal/storage"
)

const defaultListLimit = 100

// audioContentTypes covers the accepted extensions, which the builtin mime
// table does not know about.
var audioContentTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

// JobService is the subset of job.ChopService used by the handlers.
type JobService interface {
	CreateJob(ctx context.Context, trackID string, params chop.Params) (*job.Job, error)
	ProcessExistingJob(ctx context.Context, jobID string) error
	GetJob(ctx context.Context, id string) (*job.Job, error)
	JobsForTrack(ctx context.Context, trackID string) ([]*job.Job, error)
}

// HarmonicExtractor stores the harmonic component of a track as a new track.
type HarmonicExtractor interface {
	ExtractHarmonic(ctx context.Context, trackID string) (string, error)
}

// Catalog lists and forgets indexed chops.
type Catalog interface {
	ListBySource(ctx context.Context, sourceID string) ([]catalog.Entry, error)
	Forget(ctx context.Context, ids []string) (int64, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	store              storage.Storage
	jobs               JobService
	harmonic           HarmonicExtractor
	catalog            Catalog
	defaults           chop.Params
	maxUpload          int64
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateChops only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithCatalog enables the chop listing endpoint and catalog cleanup on delete.
func WithCatalog(c Catalog) HandlerOption {
	return func(h *Handlers) {
		h.catalog = c
	}
}

// WithDefaultParams sets the parameters used for omitted request fields.
func WithDefaultParams(p chop.Params) HandlerOption {
	return func(h *Handlers) {
		h.defaults = p
	}
}

// WithMaxUploadSize bounds the multipart request body in bytes.
func WithMaxUploadSize(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store storage.Storage, jobs JobService, harmonic HarmonicExtractor, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		store:              store,
		jobs:               jobs,
		harmonic:           harmonic,
		defaults:           chop.DefaultParams(),
		maxUpload:          100 * 1024 * 1024,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// UploadTrack handles POST /tracks requests.
func (h *Handlers) UploadTrack(w http.ResponseWriter, r *http.Request) {
	// Allow some headroom over the file limit for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "FILE_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required", "MISSING_FILE")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", "INVALID_UPLOAD")
		return
	}

	metadata := map[string]any{}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeError(w, http.StatusBadRequest, "metadata must be a JSON object", "INVALID_METADATA")
			return
		}
	}

	trackID, err := h.store.Put(r.Context(), data, header.Filename, metadata)
	if err != nil {
		h.writeStorageError(w, err, "failed to store track")
		return
	}

	h.logger.Info("track uploaded",
		slog.String("track_id", trackID),
		slog.String("filename", header.Filename),
		slog.Int("size", len(data)),
	)
	writeJSON(w, http.StatusCreated, TrackResponse{TrackID: trackID})
}

// ListTracks handles GET /tracks requests.
func (h *Handlers) ListTracks(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_LIMIT")
			return
		}
		limit = n
	}

	tracks, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.writeStorageError(w, err, "failed to list tracks")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrack handles GET /tracks/{id} requests.
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Record(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStorageError(w, err, "failed to get track")
		return
	}
	writeJSON(w, http.StatusOK, rec.Summary())
}

// GetTrackAudio handles GET /tracks/{id}/audio requests.
func (h *Handlers) GetTrackAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.store.Record(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, err, "failed to get track")
		return
	}
	data, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, err, "failed to read track")
		return
	}

	contentType, ok := audioContentTypes[rec.Extension]
	if !ok {
		contentType = mime.TypeByExtension(rec.Extension)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(rec.Filename),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeleteTrack handles DELETE /tracks/{id} requests.
func (h *Handlers) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStorageError(w, err, "failed to delete track")
		return
	}
	if h.catalog != nil {
		if _, err := h.catalog.Forget(r.Context(), []string{id}); err != nil {
			h.logger.Warn("failed to forget catalog entries",
				slog.String("track_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExtractHarmonic handles POST /tracks/{id}/harmonic requests.
func (h *Handlers) ExtractHarmonic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	harmonicID, err := h.harmonic.ExtractHarmonic(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "track not found", "TRACK_NOT_FOUND")
		case errors.Is(err, chop.ErrDecode):
			writeError(w, http.StatusUnprocessableEntity, "track could not be decoded", "DECODE_FAILED")
		default:
			h.logger.Error("harmonic extraction failed",
				slog.String("track_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "harmonic extraction failed", "SEPARATION_FAILED")
		}
		return
	}
	writeJSON(w, http.StatusCreated, TrackResponse{TrackID: harmonicID})
}

// CreateChops handles POST /tracks/{id}/chops requests.
func (h *Handlers) CreateChops(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("id")

	var req CreateChopsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.logger.Warn("failed to decode request body",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return
		}
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if _, err := h.store.Record(r.Context(), trackID); err != nil {
		h.writeStorageError(w, err, "failed to get track")
		return
	}

	createdJob, err := h.jobs.CreateJob(r.Context(), trackID, req.apply(h.defaults))
	if err != nil {
		if errors.Is(err, chop.ErrInvalidParams) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if err := h.jobs.ProcessExistingJob(ctx, jobID); err != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("chop job created",
		slog.String("job_id", createdJob.ID),
		slog.String("track_id", trackID),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// ListChops handles GET /tracks/{id}/chops requests.
func (h *Handlers) ListChops(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusNotImplemented, "chop catalog is disabled", "CATALOG_DISABLED")
		return
	}
	entries, err := h.catalog.ListBySource(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to list chops", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list chops", "CATALOG_FAILED")
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}
	if !jobid.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	foundJob, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(foundJob))
}

// ListTrackJobs handles GET /tracks/{id}/jobs requests.
func (h *Handlers) ListTrackJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.JobsForTrack(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}
	resp := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = newJobResponse(j)
	}
	writeJSON(w, http.StatusOK, resp)
}

func newJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:      j.ID,
		TrackID: j.TrackID,
		Status:  string(j.Status),
		Error:   j.Error,
		Result:  j.Result,
	}
}

// StorageStats handles GET /storage/stats requests.
func (h *Handlers) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeStorageError(w, err, "failed to read storage stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeStorageError maps storage sentinels to HTTP statuses.
func (h *Handlers) writeStorageError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "track not found", "TRACK_NOT_FOUND")
	case errors.Is(err, storage.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "FILE_TOO_LARGE")
	case errors.Is(err, storage.ErrEmptyData), errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, "STORAGE_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
