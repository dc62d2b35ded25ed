// Package promo composes the discount rule engine with its stores into the
// engine's public operations: validate, applicable, calculate and apply.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/cartloom/promo-engine/internal/domain/cart"
	"github.com/cartloom/promo-engine/internal/domain/discount"
	"github.com/cartloom/promo-engine/internal/domain/user"
)

// Sentinel errors for malformed apply requests.
var (
	ErrDiscountRequired = errors.New("discount id required")
	ErrOrderRequired    = errors.New("order id required")
)

// Line is one applied discount inside a quote.
type Line struct {
	DiscountID string
	Name       string
	Kind       discount.Kind
	Type       discount.Type
	Amount     decimal.Decimal
}

// Quote is the priced outcome of resolving a cart's discounts. FinalTotal
// covers merchandise plus shipping, so a free-shipping line lands in the
// payable amount the way every other line does.
type Quote struct {
	Lines         []Line
	TotalDiscount decimal.Decimal
	FinalTotal    decimal.Decimal
}

// ApplyResult reports the outcome of a reservation.
type ApplyResult struct {
	Applied        bool
	AlreadyApplied bool
}

// Service is the validation and calculation orchestrator.
type Service struct {
	discounts discount.Repository
	usage     discount.UsageStore
	profiles  user.Repository
	policy    discount.StackingPolicy
	now       func() time.Time
}

// NewService creates the orchestrator with its store dependencies and the
// injected stacking policy.
func NewService(
	discounts discount.Repository,
	usage discount.UsageStore,
	profiles user.Repository,
	policy discount.StackingPolicy,
) *Service {
	return &Service{
		discounts: discounts,
		usage:     usage,
		profiles:  profiles,
		policy:    policy,
		now:       time.Now,
	}
}

// ValidateDiscount runs one discount, referenced by coupon code or id,
// through the full candidate pipeline against the cart. A nil error means
// the discount is applicable as-is.
func (s *Service) ValidateDiscount(ctx context.Context, ref string, snap cart.Snapshot) (*discount.Discount, error) {
	d, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	profile, err := s.profile(ctx, snap.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.validateForCart(ctx, d, profile, snap); err != nil {
		return nil, err
	}
	return d, nil
}

// GetApplicableDiscounts returns every discount that would apply to the
// cart right now: live promotions whose conditions hold plus the coupon
// codes that validate. Codes that fail validation are skipped, not
// reported; store failures abort.
func (s *Service) GetApplicableDiscounts(ctx context.Context, snap cart.Snapshot, codes []string) ([]*discount.Discount, error) {
	profile, err := s.profile(ctx, snap.UserID)
	if err != nil {
		return nil, err
	}

	promotions, err := s.discounts.ListPromotions(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}

	seen := make(map[string]struct{})
	applicable := make([]*discount.Discount, 0, len(promotions)+len(codes))
	for i := range promotions {
		d := &promotions[i]
		if _, dup := seen[d.ID]; dup {
			continue
		}
		if err := s.validateForCart(ctx, d, profile, snap); err != nil {
			if _, business := discount.KindOf(err); business {
				continue
			}
			return nil, err
		}
		seen[d.ID] = struct{}{}
		applicable = append(applicable, d)
	}

	for _, code := range codes {
		if code == "" {
			continue
		}
		d, err := s.discounts.GetByCode(ctx, code)
		if err != nil {
			if _, business := discount.KindOf(err); business {
				continue
			}
			return nil, errors.Wrap(err, "get coupon")
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		if err := s.validateForCart(ctx, d, profile, snap); err != nil {
			if _, business := discount.KindOf(err); business {
				continue
			}
			return nil, err
		}
		seen[d.ID] = struct{}{}
		applicable = append(applicable, d)
	}
	return applicable, nil
}

// CalculateDiscounts resolves stacking over the applicable discounts and
// prices the survivors. Identical inputs always produce identical quotes.
func (s *Service) CalculateDiscounts(ctx context.Context, snap cart.Snapshot, codes []string) (*Quote, error) {
	applicable, err := s.GetApplicableDiscounts(ctx, snap, codes)
	if err != nil {
		return nil, err
	}
	resolved := discount.Resolve(s.policy, applicable)

	payable := snap.Total().Add(snap.ShippingCost)
	quote := &Quote{
		Lines:         make([]Line, 0, len(resolved)),
		TotalDiscount: decimal.Zero,
	}
	for _, d := range resolved {
		amount := discount.Amount(d, snap)
		if amount.IsZero() {
			continue
		}
		quote.Lines = append(quote.Lines, Line{
			DiscountID: d.ID,
			Name:       d.Name,
			Kind:       d.Kind,
			Type:       d.Type,
			Amount:     amount,
		})
		quote.TotalDiscount = quote.TotalDiscount.Add(amount)
	}
	if quote.TotalDiscount.GreaterThan(payable) {
		quote.TotalDiscount = payable
	}
	quote.FinalTotal = payable.Sub(quote.TotalDiscount).Round(2)
	quote.TotalDiscount = quote.TotalDiscount.Round(2)
	return quote, nil
}

// ApplyDiscount re-validates the discount without a cart (existence,
// temporal state, eligibility) and atomically reserves one use, recording
// it against the order. Applying twice for the same order returns the
// prior outcome instead of reserving again. Cart-dependent checks were
// already enforced when the order was priced.
func (s *Service) ApplyDiscount(ctx context.Context, discountID, userID, orderID string) (*ApplyResult, error) {
	if discountID == "" {
		return nil, ErrDiscountRequired
	}
	if orderID == "" {
		return nil, ErrOrderRequired
	}

	d, err := s.discounts.GetByID(ctx, discountID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTemporal(d); err != nil {
		return nil, err
	}
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := d.CheckEligibility(profile, s.now()); err != nil {
		return nil, err
	}

	res, err := s.usage.Reserve(ctx, d.ID, userID, orderID)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{
		Applied:        true,
		AlreadyApplied: res.AlreadyApplied,
	}, nil
}

// validateForCart runs the candidate pipeline in its fixed order. The
// first failing stage decides the reported kind: temporal state, then
// usage, then eligibility, then order bounds and conditions, then scope
// against cart contents.
func (s *Service) validateForCart(ctx context.Context, d *discount.Discount, profile *user.Profile, snap cart.Snapshot) error {
	if err := s.checkTemporal(d); err != nil {
		return err
	}

	usage, err := s.usage.CheckUsage(ctx, d.ID, snap.UserID)
	if err != nil {
		return errors.Wrap(err, "check usage")
	}
	if err := usage.Check(); err != nil {
		return err
	}

	if err := d.CheckEligibility(profile, s.now()); err != nil {
		return err
	}

	if err := d.CheckOrderBounds(snap); err != nil {
		return err
	}
	if !d.ConditionsSatisfied(snap) {
		return discount.Failf(discount.FailNotEligible, "promotion conditions not met")
	}

	if !d.ScopedItemsPresent(snap) {
		return discount.Fail(discount.FailScopeMismatch)
	}
	return nil
}

func (s *Service) checkTemporal(d *discount.Discount) error {
	switch d.StatusAt(s.now()) {
	case discount.StatusScheduled:
		return discount.Fail(discount.FailNotYetActive)
	case discount.StatusExpired:
		return discount.Fail(discount.FailExpired)
	case discount.StatusPaused:
		return discount.Fail(discount.FailPaused)
	}
	return nil
}

// lookup resolves a coupon code first, then falls back to a discount id.
func (s *Service) lookup(ctx context.Context, ref string) (*discount.Discount, error) {
	if ref == "" {
		return nil, discount.ErrNotFound
	}
	d, err := s.discounts.GetByCode(ctx, ref)
	if err == nil {
		return d, nil
	}
	if kind, ok := discount.KindOf(err); !ok || kind != discount.FailNotFound {
		return nil, errors.Wrap(err, "get by code")
	}
	return s.discounts.GetByID(ctx, ref)
}

// profile loads the shopper profile; anonymous carts get nil. A signed-in
// user without a stored profile is treated as a brand-new account with no
// history rather than an error.
func (s *Service) profile(ctx context.Context, userID string) (*user.Profile, error) {
	if userID == "" {
		return nil, nil
	}
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return &user.Profile{
				ID:            userID,
				LifetimeSpend: decimal.Zero,
				CreatedAt:     s.now(),
			}, nil
		}
		return nil, errors.Wrap(err, "get profile")
	}
	return p, nil
}
