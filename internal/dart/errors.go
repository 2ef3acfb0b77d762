package dart

import (
	"errors"
	"fmt"
)

// OpenDART status codes.
const (
	StatusOK          = "000"
	StatusInvalidKey  = "010"
	StatusNoData      = "013"
	StatusRateLimited = "020"
	StatusSystemCheck = "800"
)

// ErrRateLimited is returned when OpenDART reports the request limit was exceeded.
var ErrRateLimited = errors.New("opendart rate limit exceeded")

// APIError is a non-success response from OpenDART.
type APIError struct {
	Endpoint   string
	HTTPStatus int
	Status     string // OpenDART status field, empty when the HTTP layer failed
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("opendart %s: status %s: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("opendart %s: http %d: %s", e.Endpoint, e.HTTPStatus, e.Message)
}

// Is matches ErrRateLimited for the rate limit status and HTTP 429.
func (e *APIError) Is(target error) bool {
	if target != ErrRateLimited {
		return false
	}
	return e.Status == StatusRateLimited || e.HTTPStatus == 429
}

// IsInvalidKey reports whether err is OpenDART rejecting the API key.
// Every further call fails the same way until the key is fixed.
func IsInvalidKey(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == StatusInvalidKey
}
