package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/maauso/chopper/internal/audio"
	"github.com/maauso/chopper/internal/chop"
)

// Errors returned by RemoteSeparator.
var (
	// ErrBaseURLRequired is returned when no service URL is configured.
	ErrBaseURLRequired = errors.New("separator: base URL is required")
	// ErrServerError is returned when the service answers with a 5xx status.
	ErrServerError = errors.New("separator: server error")
	// ErrRateLimited is returned when the service answers with 429.
	ErrRateLimited = errors.New("separator: rate limited")
	// ErrRequestFailed is returned for any other non-2xx status.
	ErrRequestFailed = errors.New("separator: request failed")
)

// RemoteSeparator delegates harmonic separation to an HTTP service that
// accepts a multipart WAV upload and answers with the harmonic WAV.
type RemoteSeparator struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// RemoteOption configures a RemoteSeparator.
type RemoteOption func(*RemoteSeparator)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) RemoteOption {
	return func(r *RemoteSeparator) {
		r.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteSeparator) {
		r.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) RemoteOption {
	return func(r *RemoteSeparator) {
		r.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) RemoteOption {
	return func(r *RemoteSeparator) {
		r.baseBackoff = d
	}
}

// NewRemoteSeparator creates a client for the service at baseURL.
func NewRemoteSeparator(baseURL string, opts ...RemoteOption) (*RemoteSeparator, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	r := &RemoteSeparator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SeparateHarmonic uploads wf and decodes the returned harmonic component.
func (r *RemoteSeparator) SeparateHarmonic(ctx context.Context, wf *audio.Waveform) (*audio.Waveform, error) {
	if wf == nil {
		return nil, audio.ErrEmptyInput
	}
	wav, err := audio.EncodeWAVBytes(wf.Samples, wf.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("separator: encode upload: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "track.wav")
	if err != nil {
		return nil, fmt.Errorf("separator: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("separator: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("separator: close form: %w", err)
	}

	out, err := r.doRequestWithRetry(ctx, r.baseURL+"/api/extract_harmonic", body.Bytes(), mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	harmonic, err := audio.DecodeWAVBytes(out)
	if err != nil {
		return nil, fmt.Errorf("separator: decode response: %w", err)
	}
	return harmonic, nil
}

// doRequestWithRetry posts body with exponential backoff on retryable failures.
func (r *RemoteSeparator) doRequestWithRetry(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	var lastErr error
	backoff := r.baseBackoff

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("separator: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		out, err := r.doRequest(ctx, url, body, contentType)
		if err == nil {
			return out, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("separator: max retries exceeded: %w", lastErr)
}

func (r *RemoteSeparator) doRequest(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("separator: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("separator: request failed: %w", err)
		}
		return nil, &retryableError{err: fmt.Errorf("separator: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("separator: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ chop.Separator = (*RemoteSeparator)(nil)
