package discount

import (
	"time"

	"github.com/cartloom/promo-engine/internal/domain/cart"
	"github.com/cartloom/promo-engine/internal/domain/user"
)

// newCustomerMaxAge is the account-age ceiling for NewCustomersOnly.
const newCustomerMaxAge = 30 * 24 * time.Hour

// CheckEligibility decides whether the profile may redeem the discount,
// including user-scope targeting. Rules run in a fixed order and the first
// failing rule wins. A nil profile is an anonymous shopper, eligible only
// when the discount has no targeting and no order-history requirement.
func (d *Discount) CheckEligibility(profile *user.Profile, now time.Time) error {
	e := d.Eligibility
	userTargeted := d.Scope == ScopeUser && len(d.ScopeIDs) > 0
	if profile == nil {
		if e.FirstOrderOnly || e.NewCustomersOnly || e.MinOrders > 0 ||
			e.MinTotalSpent.IsPositive() || len(e.UserSegmentIDs) > 0 || userTargeted {
			return Failf(FailNotEligible, "sign in required")
		}
		return nil
	}
	if e.FirstOrderOnly && profile.CompletedOrders >= 1 {
		return Failf(FailNotEligible, "first order only")
	}
	if e.NewCustomersOnly && now.Sub(profile.CreatedAt) > newCustomerMaxAge {
		return Failf(FailNotEligible, "new customers only")
	}
	if e.MinOrders > 0 && profile.CompletedOrders < e.MinOrders {
		return Failf(FailNotEligible, "requires at least %d completed orders", e.MinOrders)
	}
	if e.MinTotalSpent.IsPositive() && profile.LifetimeSpend.LessThan(e.MinTotalSpent) {
		return Failf(FailNotEligible, "requires at least %s in past purchases", e.MinTotalSpent)
	}
	if len(e.UserSegmentIDs) > 0 && !profile.InAnySegment(e.UserSegmentIDs) {
		return Failf(FailNotEligible, "not in a targeted customer segment")
	}
	if userTargeted {
		for _, id := range d.ScopeIDs {
			if id == profile.ID {
				return nil
			}
		}
		return Failf(FailNotEligible, "not available for this account")
	}
	return nil
}

// CheckOrderBounds verifies the cart's merchandise total against the
// discount's optional order-amount bounds.
func (d *Discount) CheckOrderBounds(snap cart.Snapshot) error {
	total := snap.Total()
	if d.MinOrderAmount.IsPositive() && total.LessThan(d.MinOrderAmount) {
		return Failf(FailBelowMinimumOrder, "order minimum is %s", d.MinOrderAmount)
	}
	if d.MaxOrderAmount.IsPositive() && total.GreaterThan(d.MaxOrderAmount) {
		return Failf(FailAboveMaximumOrder, "order maximum is %s", d.MaxOrderAmount)
	}
	return nil
}
