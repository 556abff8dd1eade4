package providers

import (
	"errors"
	"fmt"
)

// TransientAPIError covers 429s, 5xx responses and network timeouts. Work that
// hits one is safe to retry after a backoff.
type TransientAPIError struct {
	StatusCode int
	Message    string
}

func (e *TransientAPIError) Error() string {
	return fmt.Sprintf("transient upstream error (status %d): %s", e.StatusCode, e.Message)
}

// AuthError means the upstream rejected our credential. Never retried
// automatically; the session is parked pending out-of-band reauthorization.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream auth rejected: %s", e.Message)
}

// PartialDataError marks one malformed or unavailable activity inside an
// enrichment chunk. It is isolated to that activity.
type PartialDataError struct {
	ActivityID int64
	Message    string
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("activity %d unavailable: %s", e.ActivityID, e.Message)
}

// IsTransient reports whether err should be retried with backoff
func IsTransient(err error) bool {
	var t *TransientAPIError
	return errors.As(err, &t)
}

// IsAuth reports whether err is a terminal credential failure
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}
