package apiclient

import (
	"fmt"
	"strings"
)

// StatusError is returned for any non-2xx response. The caller decides whether
// the run can continue; the client never retries.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// UnsupportedMethodError reports a request built with a verb other than GET or
// POST. It indicates a programming error and is raised before any I/O.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method %q (only GET and POST are allowed)", e.Method)
}
