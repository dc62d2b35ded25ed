// Package user exposes the shopper profile facts the engine needs for
// eligibility checks: segment memberships, order history and account age.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no profile exists for a user id.
var ErrNotFound = errors.New("user profile not found")

// Profile is the engine's read-only view of a shopper.
type Profile struct {
	ID              string
	SegmentIDs      []string
	CompletedOrders int
	LifetimeSpend   decimal.Decimal
	CreatedAt       time.Time
}

// InAnySegment reports whether the profile belongs to at least one of the
// given segments.
func (p *Profile) InAnySegment(segmentIDs []string) bool {
	for _, want := range segmentIDs {
		for _, have := range p.SegmentIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Repository loads shopper profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
}
