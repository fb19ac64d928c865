package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an HTTP-level rejection from the remote API. Network and
// transport failures are returned as plain wrapped errors, not *Error.
type Error struct {
	StatusCode int
	Message    string

	// Current carries the server's copy of the entity when a version
	// conflict response includes one.
	Current *Record
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote API %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote API %d", e.StatusCode)
}

// IsVersionConflict reports whether err is the server refusing a
// mutation because the entity changed since the client last saw it.
func IsVersionConflict(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusConflict || re.StatusCode == http.StatusPreconditionFailed
}

// IsRejection reports whether err is an authoritative refusal: the
// server understood the request and said no. Retrying will not help.
func IsRejection(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	if re.StatusCode == http.StatusRequestTimeout || re.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return re.StatusCode >= 400 && re.StatusCode < 500
}

// IsTransient reports whether err is worth retrying later: network
// failures, 5xx responses, timeouts and throttling.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	if !errors.As(err, &re) {
		// Transport-level failure
		return true
	}
	switch {
	case re.StatusCode >= 500:
		return true
	case re.StatusCode == http.StatusRequestTimeout, re.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}
