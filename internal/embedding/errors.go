package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrConfigurationMissing is returned when a remote provider is selected without credentials.
var ErrConfigurationMissing = errors.New("embedding: configuration missing")

// RemoteError is a failed call to a remote embedding provider.
// StatusCode is 0 when the request never produced an HTTP response.
type RemoteError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding: %s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding: %s request failed: %v", e.Provider, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later: transport failures,
// rate limiting and server errors are; auth and validation failures are not.
func (e *RemoteError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRetryable reports whether err wraps a retryable RemoteError.
func IsRetryable(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Retryable()
}
