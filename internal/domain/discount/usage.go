package discount

import (
	"context"
	"time"
)

// UsageRecord is the append-only trace of one successful apply. Records
// are never mutated or deleted by the engine.
type UsageRecord struct {
	ID         string
	DiscountID string
	UserID     string
	OrderID    string
	UsedAt     time.Time
}

// Usage holds the counters the read-only limit check needs. Zero limits
// mean unlimited.
type Usage struct {
	UsedCount     int
	UserUsedCount int
	LimitGlobal   int
	LimitPerUser  int
}

// Check returns FailUsageLimitReached or FailUserUsageLimitReached when a
// cap is exhausted. This is advisory: only Reserve decides under
// concurrency.
func (u Usage) Check() error {
	if u.LimitGlobal > 0 && u.UsedCount >= u.LimitGlobal {
		return Fail(FailUsageLimitReached)
	}
	if u.LimitPerUser > 0 && u.UserUsedCount >= u.LimitPerUser {
		return Fail(FailUserUsageLimitReached)
	}
	return nil
}

// Remaining returns how many global uses are left; -1 means unlimited.
func (u Usage) Remaining() int {
	if u.LimitGlobal <= 0 {
		return -1
	}
	if r := u.LimitGlobal - u.UsedCount; r > 0 {
		return r
	}
	return 0
}

// ReserveResult reports the outcome of an atomic reservation.
type ReserveResult struct {
	// AlreadyApplied is set when the order had already reserved this
	// discount and the prior result was returned instead of a second
	// reservation.
	AlreadyApplied bool
}

// UsageStore enforces usage caps against the backing store. Reserve must
// be atomic with respect to concurrent callers: under N simultaneous
// reservations of a discount with limit L, at most L succeed. It is the
// engine's only mutating entry point into discount state.
type UsageStore interface {
	CheckUsage(ctx context.Context, discountID, userID string) (Usage, error)
	Reserve(ctx context.Context, discountID, userID, orderID string) (ReserveResult, error)
}
