package climate

import (
	"context"
	"errors"
)

var (
	// ErrNoCredentials is returned by a source whose credentials are not configured.
	ErrNoCredentials = errors.New("credentials not configured")
	// ErrMalformedResponse is returned when a source answers with an unusable payload.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrJobFailed is returned when a remote retrieval job ends in a failed state.
	ErrJobFailed = errors.New("retrieval job failed")
	// ErrNoData is returned when a source answers successfully but with no usable years.
	ErrNoData = errors.New("no data for requested window")
	// ErrNotFound is returned by stores when no snapshot exists for a location.
	ErrNotFound = errors.New("no climate data for location")
)

// FailureReason maps an error to a short, low-cardinality label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrJobFailed):
		return "job_failed"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
