package discount

import (
	"fmt"

	"github.com/go-faster/errors"
)

// FailureKind identifies why a discount cannot be used. Kinds are stable
// wire values: the HTTP layer returns them verbatim.
type FailureKind string

const (
	FailNotFound              FailureKind = "NOT_FOUND"
	FailNotYetActive          FailureKind = "NOT_YET_ACTIVE"
	FailExpired               FailureKind = "EXPIRED"
	FailPaused                FailureKind = "PAUSED"
	FailUsageLimitReached     FailureKind = "USAGE_LIMIT_REACHED"
	FailUserUsageLimitReached FailureKind = "USER_USAGE_LIMIT_REACHED"
	FailNotEligible           FailureKind = "NOT_ELIGIBLE"
	FailBelowMinimumOrder     FailureKind = "BELOW_MINIMUM_ORDER"
	FailAboveMaximumOrder     FailureKind = "ABOVE_MAXIMUM_ORDER"
	FailScopeMismatch         FailureKind = "SCOPE_MISMATCH"
	// FailInvalidStackingConfig rejects an experiment whose variant
	// traffic percentages do not sum to 100. Raised at creation time only.
	FailInvalidStackingConfig FailureKind = "INVALID_STACKING_CONFIGURATION"
)

// ErrNotFound is the canonical not-found failure stores return when a
// discount id or code does not exist.
var ErrNotFound = Fail(FailNotFound)

// ValidationError is a recoverable business failure, as opposed to a store
// outage. Reason carries the user-facing detail for kinds that need one.
type ValidationError struct {
	Kind   FailureKind
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Fail returns a ValidationError with the given kind and no detail.
func Fail(kind FailureKind) *ValidationError {
	return &ValidationError{Kind: kind}
}

// Failf returns a ValidationError carrying a formatted reason.
func Failf(kind FailureKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err, unwrapping as needed.
// The second return is false for infrastructure errors.
func KindOf(err error) (FailureKind, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return "", false
}
