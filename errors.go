package haven

import (
	"context"
	"errors"
	"net"

	"github.com/sony/gobreaker"
)

// Sentinel errors surfaced by the stores before any network call is made.
var (
	// ErrNoSession is returned when a store operation requires an
	// authenticated session and none has been set on the client.
	ErrNoSession = errors.New("haven: no session")

	// ErrEmptyContent is returned when a write is attempted with empty or
	// whitespace-only content. No placeholder is created and no request is sent.
	ErrEmptyContent = errors.New("haven: empty content")

	// ErrCooldown is returned when the cooldown gate denies a write.
	ErrCooldown = errors.New("haven: cooldown active")

	// ErrAlreadyCheckedIn is returned when a second check-in is attempted on
	// the same day.
	ErrAlreadyCheckedIn = errors.New("haven: already checked in today")
)

// Backend error codes that mark a write as permanently rejected. Anything the
// backend would reject again on replay must not enter the offline queue.
var permanentCodes = map[string]bool{
	"INVALID_INPUT": true,
	"VALIDATION":    true,
	"UNAUTHORIZED":  true,
	"FORBIDDEN":     true,
	"NOT_FOUND":     true,
	"CONFLICT":      true,
	"RATE_LIMITED":  true,
}

// IsPermanent reports whether err is a permanent rejection: one that retrying
// can never fix. Permanent failures are surfaced to the caller and never
// queued; everything else (connectivity loss, timeouts, 5xx, an open circuit
// breaker) is treated as retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrCooldown),
		errors.Is(err, ErrNoSession),
		errors.Is(err, ErrAlreadyCheckedIn):
		return true
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return permanentCodes[ae.Code]
	}
	// Unknown failures default to retryable: dropping a user's write on a
	// misclassified error is worse than one extra replay attempt.
	return false
}

// IsRetryable is the complement of IsPermanent for non-nil errors.
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}
