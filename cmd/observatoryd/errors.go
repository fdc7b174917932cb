package main

import (
	"errors"

	"github.com/srgg/bleobservatory/internal/query"
)

// ErrStoreUnavailable indicates the persistent store could not be
// opened at startup (a StorageFatal-class error per §7).
var ErrStoreUnavailable = errors.New("store unavailable")

// FormatUserError renders err for a terminal user as its Error() text.
// Validation failures from the query surface are passed through
// verbatim, per §7's "surface to the caller verbatim; do not log as
// error"; other errors are printed with their full wrapped message, the
// wrapping chain is not shortened.
func FormatUserError(err error) string {
	if errors.Is(err, query.ErrInvalidParameter) {
		return err.Error()
	}
	return err.Error()
}
