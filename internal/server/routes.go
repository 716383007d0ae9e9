package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// RateLimitRPS is the sustained request rate. Zero disables rate limiting.
	RateLimitRPS float64
	// RateLimitBurst is the token bucket size.
	RateLimitBurst int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /tracks", h.UploadTrack)
	mux.HandleFunc("GET /tracks", h.ListTracks)
	mux.HandleFunc("GET /tracks/{id}", h.GetTrack)
	mux.HandleFunc("GET /tracks/{id}/audio", h.GetTrackAudio)
	mux.HandleFunc("DELETE /tracks/{id}", h.DeleteTrack)
	mux.HandleFunc("POST /tracks/{id}/harmonic", h.ExtractHarmonic)
	mux.HandleFunc("POST /tracks/{id}/chops", h.CreateChops)
	mux.HandleFunc("GET /tracks/{id}/chops", h.ListChops)
	mux.HandleFunc("GET /tracks/{id}/jobs", h.ListTrackJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /storage/stats", h.StorageStats)

	middlewares := []func(http.Handler) http.Handler{
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	}
	if cfg.RateLimitRPS > 0 {
		burst := max(cfg.RateLimitBurst, 1)
		middlewares = append(middlewares, RateLimitMiddleware(cfg.RateLimitRPS, burst))
	}

	return ChainMiddleware(middlewares...)(mux)
}
