package domain

import (
	"github.com/allisson/capvault/internal/errors"
)

// Dispatch errors. Vault errors (locked, corrupt, missing credential) and
// capability lookups pass through Dispatch unchanged and are never retried.
var (
	// ErrTimeout indicates the dispatch deadline expired. The credential session, if any,
	// was wiped before the error was returned.
	ErrTimeout = errors.Wrap(errors.ErrUnavailable, "dispatch timed out")

	// ErrTransientFailure indicates an attempt failed in a way that may succeed on retry:
	// a network error, an attempt timeout, an HTTP 5xx or 429, or a worker killed by a signal.
	ErrTransientFailure = errors.Wrap(errors.ErrUnavailable, "transient capability failure")

	// ErrPermanentFailure indicates the capability rejected the request, or every attempt
	// failed transiently.
	ErrPermanentFailure = errors.New("capability failed")

	// ErrUnsupportedTarget indicates an invocation target scheme no invoker handles.
	ErrUnsupportedTarget = errors.Wrap(errors.ErrInvalidInput, "unsupported invocation target")
)

// IsTransient reports whether a failed attempt may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientFailure)
}
