package capability

import (
	"errors"
	"fmt"
	"io/fs"
)

// APIError is the error shape surfaced by operation bindings for non-2xx
// responses from the platform.
type APIError struct {
	StatusCode int
	TrackingID string
	Message    string
}

func (e *APIError) Error() string {
	if e.TrackingID != "" {
		return fmt.Sprintf("api status %d: %s (tracking %s)", e.StatusCode, e.Message, e.TrackingID)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// ErrOperationNotFound is returned when an artifact names an operation the
// registry does not know.
var ErrOperationNotFound = errors.New("operation not registered")

// Result is the outcome classification for one attempted call.
type Result string

const (
	ResultOK        Result = "ok"
	ResultForbidden Result = "forbidden"
	ResultNotFound  Result = "not_found"
	ResultError     Result = "error"
)

// Classify maps a call error to a coarse outcome and, when derivable, the
// HTTP status behind it. The mapping never distinguishes transient from
// permanent failures.
func Classify(err error) (Result, int) {
	if err == nil {
		return ResultOK, 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return ResultForbidden, apiErr.StatusCode
		case 404:
			return ResultNotFound, apiErr.StatusCode
		default:
			return ResultError, apiErr.StatusCode
		}
	}
	if errors.Is(err, ErrOperationNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ResultNotFound, 0
	}
	if errors.Is(err, fs.ErrPermission) {
		return ResultForbidden, 0
	}
	return ResultError, 0
}

// StatusOf extracts the HTTP status from an error chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// TrackingIDOf extracts the platform tracking id from an error chain, or "".
func TrackingIDOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.TrackingID
	}
	return ""
}
