package connectors

import "fmt"

// APIError is a non-2xx response (or an application-level failure such as
// Slack's ok=false) from an external system.
type APIError struct {
	System     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: request failed with status %d", e.System, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed with status %d: %s", e.System, e.StatusCode, e.Message)
}

// IsAuthError reports whether the system rejected our credentials.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
