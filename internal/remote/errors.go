package remote

import (
	"fmt"
	"net/http"
)

// RequestError is a failed call: transport error or non-2xx status.
type RequestError struct {
	Op     string
	Status int // 0 when no response arrived
	Body   string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		msg := fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Unauthorized reports a 401/403 from the server.
func (e *RequestError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// MalformedResponseError is a 2xx response whose body does not match the
// expected schema.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}
