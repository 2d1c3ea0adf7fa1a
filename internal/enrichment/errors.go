package enrichment

import (
	"context"
	"errors"

	"rosterlink/internal/provider"
	dErrors "rosterlink/pkg/domain-errors"
)

// translate maps run failures onto domain codes. A plan that does not fit
// its sources is a server fault; an unreachable source is retryable. A
// cancelled caller is never reported as an outage.
func translate(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled before resolution finished")
	case errors.Is(err, provider.ErrProviderUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "directory source unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "resolution timed out")
	case IsConfigurationError(err):
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolution plan does not match its sources")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolution failed")
	}
}
