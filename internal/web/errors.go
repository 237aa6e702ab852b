package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrFetchFailed marks every failed page or resource fetch: transport
// errors, timeouts and non-2xx responses alike.
var ErrFetchFailed = errors.New("fetch failed")

// ErrStalled marks a download whose body stopped arriving
var ErrStalled = errors.New("transfer stalled")

// StatusError reports a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func newStatusError(rawURL string, resp *http.Response) *StatusError {
	return &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch failed: %s returned %s", e.URL, e.Status)
}

// Unwrap lets errors.Is(err, ErrFetchFailed) match status failures
func (e *StatusError) Unwrap() error {
	return ErrFetchFailed
}

// Categorize maps a fetch error to a short category for logs and the catalog
func Categorize(err error) string {
	if err == nil {
		return "none"
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 500:
			return "http_5xx"
		case statusErr.StatusCode >= 400:
			return "http_4xx"
		default:
			return "http_other"
		}
	}

	if errors.Is(err, ErrStalled) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	if errors.Is(err, ErrFetchFailed) {
		return "network"
	}
	return "other"
}
