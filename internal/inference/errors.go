package inference

import (
	"errors"
	"fmt"
)

// RemoteServiceError is returned when a hosted endpoint is unreachable, answers with a
// non-2xx status, or sends a payload that cannot be interpreted.
type RemoteServiceError struct {
	Endpoint   string // Model identifier the request was sent to
	StatusCode int    // HTTP status, 0 if no response was received
	Message    string // Error text reported by the service or the client
	Err        error  // Underlying error, if any
}

func (e *RemoteServiceError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, msg)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// IsRemoteServiceError reports whether err is or wraps a RemoteServiceError.
func IsRemoteServiceError(err error) bool {
	var rse *RemoteServiceError
	return errors.As(err, &rse)
}

// ErrRetryExhausted marks a caption request whose every attempt failed. Caption never
// returns it; it is used to label logs and metrics.
var ErrRetryExhausted = errors.New("caption retries exhausted")
