// Package server provides the HTTP server for the chopper API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/chopper/internal/chop"
)

// CreateChopsRequest is the HTTP request body for chopping a stored track.
// Omitted fields fall back to the configured defaults.
type CreateChopsRequest struct {
	// MinDuration is the shortest gap, in seconds, that ends a chop at the next onset.
	MinDuration *float64 `json:"min_duration,omitempty" validate:"omitempty,gt=0,lte=60"`
	// DefaultLength is the length, in seconds, of the last and of too-short chops.
	DefaultLength *float64 `json:"default_length,omitempty" validate:"omitempty,gt=0,lte=60"`
	// NClusters is the requested number of timbral groups.
	NClusters *int `json:"n_clusters,omitempty" validate:"omitempty,min=1,max=64"`
	// MaxChops is the maximum number of representatives.
	MaxChops *int `json:"max_chops,omitempty" validate:"omitempty,min=1,max=256"`
}

// apply overlays the request on base.
func (r CreateChopsRequest) apply(base chop.Params) chop.Params {
	if r.MinDuration != nil {
		base.MinDuration = *r.MinDuration
	}
	if r.DefaultLength != nil {
		base.DefaultLength = *r.DefaultLength
	}
	if r.NClusters != nil {
		base.NClusters = *r.NClusters
	}
	if r.MaxChops != nil {
		base.MaxChops = *r.MaxChops
	}
	return base
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// TrackResponse is returned after a track is stored.
type TrackResponse struct {
	TrackID string `json:"track_id"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// TrackID is the source track being chopped.
	TrackID string `json:"track_id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Result holds the representatives once the job completed.
	Result *chop.Result `json:"result,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
