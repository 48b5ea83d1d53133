package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrConnectionUnavailable = errors.New("connection is in error state")
	ErrResponseTooLarge      = errors.New("response body exceeds size limit")
)

// ExternalAPIError is a non-2xx response from the remote service.
type ExternalAPIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *ExternalAPIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}

	return fmt.Sprintf("external api returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// Retryable reports whether the status is worth another attempt.
func (e *ExternalAPIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Unauthorized reports whether the remote service rejected the credentials.
func (e *ExternalAPIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsExternalAPIError reports whether err carries an ExternalAPIError.
func IsExternalAPIError(err error) bool {
	var apiErr *ExternalAPIError

	return errors.As(err, &apiErr)
}

// parseRetryAfter reads delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}

		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}
