// Package inference talks to hosted inference endpoints: text-to-image generation,
// image captioning, and object detection.
package inference

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/image-analysis-app/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Hugging Face serverless inference API.
	DefaultBaseURL = "https://api-inference.huggingface.co"
	// DefaultTimeout bounds a single inference request.
	DefaultTimeout = 120 * time.Second
)

// Client is the shared HTTP plumbing for all hosted models. Every request carries the
// bearer token it was created with.
type Client struct {
	http    *resty.Client
	metrics *metrics.Collector
}

// NewClient creates a client for the inference API at baseURL.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: resty.New().
			SetDebug(false).
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(DefaultTimeout).
			SetAuthToken(token),
	}
}

// WithTimeout sets a custom per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.http.SetTimeout(timeout)
	return c
}

// WithMetrics records every request in m.
func (c *Client) WithMetrics(m *metrics.Collector) *Client {
	c.metrics = m
	return c
}

// post sends body to the model endpoint. A non-nil error is always a *RemoteServiceError
// for a request that got no response; HTTP error statuses are left to the caller.
func (c *Client) post(ctx context.Context, model string, body any, contentType string) (*resty.Response, error) {
	start := time.Now()
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post("/models/" + model)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordInference(model, "transport_error", elapsed)
		log.Warn().Err(err).Str("model", model).Dur("elapsed", elapsed).Msg("inference request failed")
		return nil, &RemoteServiceError{Endpoint: model, Message: "request failed", Err: err}
	}

	status := "ok"
	if res.IsError() {
		status = "error"
	}
	c.metrics.RecordInference(model, status, elapsed)
	log.Debug().
		Str("model", model).
		Int("status", res.StatusCode()).
		Int("bytes", len(res.Body())).
		Dur("elapsed", elapsed).
		Msg("inference response")

	return res, nil
}

// errorBody is the shape hosted models use to report failures, e.g.
// {"error": "Model is currently loading", "estimated_time": 20.0}.
type errorBody struct {
	Error         json.RawMessage `json:"error"`
	EstimatedTime *float64        `json:"estimated_time"`
}

// parseErrorBody reports whether body is a JSON object carrying an "error" field.
func parseErrorBody(body []byte) (*errorBody, bool) {
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, false
	}
	if len(e.Error) == 0 || string(e.Error) == "null" {
		return nil, false
	}
	return &e, true
}

// message returns the error text whether the service sent a string or a list of strings.
func (e *errorBody) message() string {
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(e.Error, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(e.Error)
}

// checkResponse converts an HTTP error status or an error payload into a
// *RemoteServiceError.
func checkResponse(model string, res *resty.Response) error {
	if e, ok := parseErrorBody(res.Body()); ok {
		return &RemoteServiceError{Endpoint: model, StatusCode: res.StatusCode(), Message: e.message()}
	}
	if res.IsError() {
		return &RemoteServiceError{
			Endpoint:   model,
			StatusCode: res.StatusCode(),
			Message:    strings.TrimSpace(truncate(string(res.Body()), 200)),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
