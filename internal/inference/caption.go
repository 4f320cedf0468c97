package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/raine/image-analysis-app/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCaptionModel is the hosted image captioning model.
	DefaultCaptionModel = "Salesforce/blip-image-captioning-base"
	// DefaultCaptionAttempts is the number of caption attempts before giving up.
	DefaultCaptionAttempts = 5
	// DefaultCaptionRetryDelay is the fixed wait between caption attempts.
	DefaultCaptionRetryDelay = 2 * time.Second
	// CaptionUnavailable is returned instead of an error once every attempt has failed.
	CaptionUnavailable = "Unable to generate caption"
)

// AttemptResult is the outcome of one caption attempt. Err is nil on success.
// Retryable separates failures a later attempt may fix (model still loading, rate
// limited, no response) from terminal ones (bad input, unexpected payload).
type AttemptResult struct {
	Text      string
	Err       error
	Retryable bool
}

func (r AttemptResult) outcome() string {
	switch {
	case r.Err == nil:
		return "ok"
	case r.Retryable:
		return "retryable"
	default:
		return "terminal"
	}
}

// CaptionSource performs a single caption attempt.
type CaptionSource interface {
	CaptionAttempt(ctx context.Context, imageData []byte) AttemptResult
}

// CaptionFetcher asks a CaptionSource for a caption, retrying a fixed number of times with
// a fixed delay. It always returns something displayable.
type CaptionFetcher struct {
	source   CaptionSource
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	metrics  *metrics.Collector
}

// NewCaptionFetcher creates a fetcher with the default attempt budget and delay.
func NewCaptionFetcher(source CaptionSource) *CaptionFetcher {
	return &CaptionFetcher{
		source:   source,
		attempts: DefaultCaptionAttempts,
		delay:    DefaultCaptionRetryDelay,
		sleep:    sleepContext,
	}
}

// WithAttempts sets the attempt budget. Values below 1 are ignored.
func (f *CaptionFetcher) WithAttempts(n int) *CaptionFetcher {
	if n >= 1 {
		f.attempts = n
	}
	return f
}

// WithRetryDelay sets the wait between attempts.
func (f *CaptionFetcher) WithRetryDelay(d time.Duration) *CaptionFetcher {
	f.delay = d
	return f
}

// WithSleep replaces the function used to wait between attempts.
func (f *CaptionFetcher) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *CaptionFetcher {
	f.sleep = sleep
	return f
}

// WithMetrics records attempt outcomes in m.
func (f *CaptionFetcher) WithMetrics(m *metrics.Collector) *CaptionFetcher {
	f.metrics = m
	return f
}

// Caption returns the caption for imageData, or CaptionUnavailable once every attempt has
// failed. Every failure is retried the same way, whether it was classified retryable
// or terminal.
func (f *CaptionFetcher) Caption(ctx context.Context, imageData []byte) string {
	for attempt := 1; attempt <= f.attempts; attempt++ {
		result := f.source.CaptionAttempt(ctx, imageData)
		f.metrics.RecordCaptionAttempt(result.outcome())

		if result.Err == nil {
			f.metrics.RecordCaptionResult("ok")
			log.Info().Int("attempt", attempt).Str("caption", result.Text).Msg("caption generated")
			return result.Text
		}

		log.Warn().
			Err(result.Err).
			Int("attempt", attempt).
			Int("maxAttempts", f.attempts).
			Bool("retryable", result.Retryable).
			Msg("caption attempt failed")

		if attempt == f.attempts {
			break
		}
		if err := f.sleep(ctx, f.delay); err != nil {
			log.Warn().Err(err).Msg("caption retry wait interrupted")
			break
		}
	}

	f.metrics.RecordCaptionResult("exhausted")
	log.Error().Err(ErrRetryExhausted).Int("attempts", f.attempts).Msg("giving up on caption")
	return CaptionUnavailable
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HuggingFaceCaptioner captions images with a hosted image-to-text model.
type HuggingFaceCaptioner struct {
	client *Client
	model  string
}

// NewHuggingFaceCaptioner creates a caption source for model. An empty model selects
// the default.
func NewHuggingFaceCaptioner(client *Client, model string) *HuggingFaceCaptioner {
	if model == "" {
		model = DefaultCaptionModel
	}
	return &HuggingFaceCaptioner{client: client, model: model}
}

type captionResponse []struct {
	GeneratedText *string `json:"generated_text"`
}

// CaptionAttempt sends the raw image bytes once. A response without an "error" field
// whose first element has generated_text is a success.
func (h *HuggingFaceCaptioner) CaptionAttempt(ctx context.Context, imageData []byte) AttemptResult {
	res, err := h.client.post(ctx, h.model, imageData, "application/octet-stream")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return AttemptResult{Err: err}
		}
		return AttemptResult{Err: err, Retryable: true}
	}

	body := res.Body()
	if e, ok := parseErrorBody(body); ok {
		status := res.StatusCode()
		return AttemptResult{
			Err: &RemoteServiceError{Endpoint: h.model, StatusCode: status, Message: e.message()},
			Retryable: e.EstimatedTime != nil ||
				status == http.StatusServiceUnavailable ||
				status == http.StatusTooManyRequests,
		}
	}

	if res.IsError() {
		status := res.StatusCode()
		return AttemptResult{
			Err: &RemoteServiceError{
				Endpoint:   h.model,
				StatusCode: status,
				Message:    truncate(string(body), 200),
			},
			Retryable: status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
		}
	}

	var out captionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return AttemptResult{Err: &RemoteServiceError{
			Endpoint:   h.model,
			StatusCode: res.StatusCode(),
			Message:    "malformed caption response",
			Err:        err,
		}}
	}
	if len(out) == 0 || out[0].GeneratedText == nil {
		return AttemptResult{Err: &RemoteServiceError{
			Endpoint:   h.model,
			StatusCode: res.StatusCode(),
			Message:    "caption response has no generated_text",
		}}
	}

	return AttemptResult{Text: *out[0].GeneratedText}
}
