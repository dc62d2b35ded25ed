// Package discount holds the discount model and the pure rule engine built
// on top of it: temporal windows, eligibility, promotion conditions,
// stacking resolution and amount calculation. Everything here is
// side-effect-free; persistence and atomic usage reservation live behind
// the Repository and UsageStore interfaces.
package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind separates user-entered coupons from automatically applied promotions.
type Kind string

const (
	// KindCoupon is a discount redeemed by entering its code.
	KindCoupon Kind = "coupon"
	// KindPromotion is an always-on discount gated by its conditions.
	KindPromotion Kind = "promotion"
)

// Type enumerates the supported discount strategies. The set is closed:
// calculation dispatches over exactly these values and nothing else.
type Type string

const (
	// TypePercentage reduces the scoped amount by Value percent.
	TypePercentage Type = "percentage"
	// TypeFixedAmount subtracts Value once cart-wide, or Value per matching
	// unit when scoped.
	TypeFixedAmount Type = "fixed_amount"
	// TypeBuyXGetY discounts the cheapest Y matching units in every full
	// group of BuyQuantity+GetQuantity matching units by Value percent.
	TypeBuyXGetY Type = "buy_x_get_y"
	// TypeFreeShipping refunds the caller-supplied shipping cost.
	TypeFreeShipping Type = "free_shipping"
)

// Scope names the subset of the cart a discount can reduce.
type Scope string

const (
	ScopeCart     Scope = "cart"
	ScopeProduct  Scope = "product"
	ScopeCategory Scope = "category"
	ScopeBrand    Scope = "brand"
	// ScopeUser restricts redemption to the users listed in ScopeIDs;
	// the amount itself is computed cart-wide.
	ScopeUser Scope = "user"
)

// Status is derived from the active window and the pause flag, never stored
// independently.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusExpired   Status = "expired"
)

// HourRange is a daily activity window in the engine's reference clock.
// From is inclusive, To exclusive; From == To never matches.
type HourRange struct {
	From int
	To   int
}

// Window bounds when a discount is live. Nil timestamps leave that edge
// open; empty Weekdays allows every day; a nil Hours allows the whole day.
type Window struct {
	StartsAt *time.Time
	EndsAt   *time.Time
	Weekdays []time.Weekday
	Hours    *HourRange
}

// Eligibility restricts who may redeem a discount. Zero values mean
// unrestricted.
type Eligibility struct {
	FirstOrderOnly   bool
	NewCustomersOnly bool
	MinOrders        int
	MinTotalSpent    decimal.Decimal
	UserSegmentIDs   []string
}

// Discount is a coupon or promotion. Coupons carry a Code, promotions carry
// Conditions and a Priority; the remaining shape is shared. Optional decimal
// bounds use zero as "unset", optional limits use zero as "unlimited".
type Discount struct {
	ID          string
	Kind        Kind
	Code        string
	Name        string
	Description string

	Type  Type
	Value decimal.Decimal

	Scope    Scope
	ScopeIDs []string

	// BuyQuantity and GetQuantity are only meaningful for TypeBuyXGetY.
	BuyQuantity int
	GetQuantity int

	MinOrderAmount    decimal.Decimal
	MaxOrderAmount    decimal.Decimal
	MaxDiscountAmount decimal.Decimal

	Window Window
	Paused bool

	Eligibility Eligibility

	UsageLimitGlobal  int
	UsageLimitPerUser int
	UsedCount         int

	Stackable bool
	Priority  int

	Conditions []Condition

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCoupon reports whether the discount is redeemed by code.
func (d *Discount) IsCoupon() bool {
	return d.Kind == KindCoupon
}

// Repository provides read access to persisted discounts. Mutation of usage
// counters goes through UsageStore, nothing else in the engine writes.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Discount, error)
	GetByCode(ctx context.Context, code string) (*Discount, error)
	// ListPromotions returns promotions whose date range covers the given
	// instant, pause flag included. Weekday and hour windows are not
	// filtered here; the engine applies them itself.
	ListPromotions(ctx context.Context, at time.Time) ([]Discount, error)
}
