package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// maxBodySnippet bounds how much of an upstream body is kept for diagnostics.
const maxBodySnippet = 512

// HTTPError means the upstream answered with a non-2xx status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Body)
}

// MalformedResponseError means a 2xx answer whose body is not usable JSON.
type MalformedResponseError struct {
	Status      int
	ContentType string
	Body        string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("upstream returned malformed response (HTTP %d, content-type %q): %s",
		e.Status, e.ContentType, e.Body)
}

// NetworkError means the request never produced a response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("upstream unreachable: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an upstream 404, which callers render
// as "not yet available" rather than a failure.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// StatusOf extracts the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return malformed.Status
	}
	return 0
}

// truncate cuts b to maxBodySnippet bytes without splitting a rune.
func truncate(b []byte) string {
	if len(b) <= maxBodySnippet {
		return string(b)
	}
	cut := maxBodySnippet
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "…"
}
