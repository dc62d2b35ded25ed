package promo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartloom/promo-engine/internal/domain/cart"
	"github.com/cartloom/promo-engine/internal/domain/discount"
	"github.com/cartloom/promo-engine/internal/domain/user"
)

var testNow = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

type mockDiscountRepo struct {
	discounts []*discount.Discount
	err       error
}

func (m *mockDiscountRepo) GetByID(_ context.Context, id string) (*discount.Discount, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range m.discounts {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, discount.ErrNotFound
}

func (m *mockDiscountRepo) GetByCode(_ context.Context, code string) (*discount.Discount, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range m.discounts {
		if d.Code == code && d.IsCoupon() {
			return d, nil
		}
	}
	return nil, discount.ErrNotFound
}

func (m *mockDiscountRepo) ListPromotions(_ context.Context, _ time.Time) ([]discount.Discount, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []discount.Discount
	for _, d := range m.discounts {
		if !d.IsCoupon() {
			out = append(out, *d)
		}
	}
	return out, nil
}

type mockUsageStore struct {
	usage      map[string]discount.Usage
	reserveErr error
	replay     bool
	reserved   []string
}

func (m *mockUsageStore) CheckUsage(_ context.Context, discountID, _ string) (discount.Usage, error) {
	return m.usage[discountID], nil
}

func (m *mockUsageStore) Reserve(_ context.Context, discountID, _, orderID string) (discount.ReserveResult, error) {
	if m.reserveErr != nil {
		return discount.ReserveResult{}, m.reserveErr
	}
	m.reserved = append(m.reserved, discountID+"|"+orderID)
	return discount.ReserveResult{AlreadyApplied: m.replay}, nil
}

type mockProfileRepo struct {
	profiles map[string]*user.Profile
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (*user.Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return p, nil
}

func testService(repo *mockDiscountRepo, usage *mockUsageStore, profiles *mockProfileRepo, policy discount.StackingPolicy) *Service {
	if usage.usage == nil {
		usage.usage = make(map[string]discount.Usage)
	}
	if profiles.profiles == nil {
		profiles.profiles = make(map[string]*user.Profile)
	}
	s := NewService(repo, usage, profiles, policy)
	s.now = func() time.Time { return testNow }
	return s
}

func saveTen() *discount.Discount {
	return &discount.Discount{
		ID:    "d-save10",
		Kind:  discount.KindCoupon,
		Code:  "SAVE10",
		Name:  "10% off",
		Type:  discount.TypePercentage,
		Value: decimal.NewFromInt(10),
		Scope: discount.ScopeCart,
	}
}

func hundredCart(userID string) cart.Snapshot {
	return cart.Snapshot{
		UserID: userID,
		Items: []cart.Item{
			{ProductID: "p1", CategoryID: "beverages", Quantity: 2, UnitPrice: decimal.NewFromInt(30)},
			{ProductID: "p2", CategoryID: "snacks", Quantity: 4, UnitPrice: decimal.NewFromInt(10)},
		},
	}
}

func requireKind(t *testing.T, err error, want discount.FailureKind) {
	t.Helper()
	require.Error(t, err)
	kind, ok := discount.KindOf(err)
	require.True(t, ok, "expected a validation failure, got %v", err)
	assert.Equal(t, want, kind)
}

func TestValidateDiscount(t *testing.T) {
	past := testNow.Add(-24 * time.Hour)
	future := testNow.Add(24 * time.Hour)

	tests := []struct {
		name     string
		mutate   func(*discount.Discount)
		usage    discount.Usage
		ref      string
		snap     cart.Snapshot
		wantKind discount.FailureKind
	}{
		{
			name: "valid coupon by code",
			ref:  "SAVE10",
			snap: hundredCart("u1"),
		},
		{
			name: "valid coupon by id",
			ref:  "d-save10",
			snap: hundredCart("u1"),
		},
		{
			name:     "unknown reference",
			ref:      "NOPE",
			snap:     hundredCart("u1"),
			wantKind: discount.FailNotFound,
		},
		{
			name:     "scheduled discount",
			mutate:   func(d *discount.Discount) { d.Window.StartsAt = &future },
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailNotYetActive,
		},
		{
			name:     "expired discount",
			mutate:   func(d *discount.Discount) { d.Window.EndsAt = &past },
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailExpired,
		},
		{
			name:     "paused discount",
			mutate:   func(d *discount.Discount) { d.Paused = true },
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailPaused,
		},
		{
			name:     "global usage exhausted",
			mutate:   func(d *discount.Discount) { d.UsageLimitGlobal = 5 },
			usage:    discount.Usage{UsedCount: 5, LimitGlobal: 5},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailUsageLimitReached,
		},
		{
			name:     "per user usage exhausted",
			usage:    discount.Usage{UserUsedCount: 1, LimitPerUser: 1},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailUserUsageLimitReached,
		},
		{
			name: "segment restricted user",
			mutate: func(d *discount.Discount) {
				d.Eligibility.UserSegmentIDs = []string{"vip"}
			},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailNotEligible,
		},
		{
			name:     "below minimum order",
			mutate:   func(d *discount.Discount) { d.MinOrderAmount = decimal.NewFromInt(150) },
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailBelowMinimumOrder,
		},
		{
			name: "promotion conditions unmet",
			mutate: func(d *discount.Discount) {
				d.Conditions = []discount.Condition{{
					Type:     discount.ConditionCartTotal,
					Operator: discount.OpGte,
					Value:    decimal.NewFromInt(500),
				}}
			},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailNotEligible,
		},
		{
			name: "no items in scope",
			mutate: func(d *discount.Discount) {
				d.Scope = discount.ScopeCategory
				d.ScopeIDs = []string{"frozen"}
			},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailScopeMismatch,
		},
		{
			name: "temporal failure reported before usage",
			mutate: func(d *discount.Discount) {
				d.Window.EndsAt = &past
				d.UsageLimitGlobal = 5
			},
			usage:    discount.Usage{UsedCount: 5, LimitGlobal: 5},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailExpired,
		},
		{
			name: "usage failure reported before eligibility",
			mutate: func(d *discount.Discount) {
				d.Eligibility.UserSegmentIDs = []string{"vip"}
			},
			usage:    discount.Usage{UsedCount: 5, LimitGlobal: 5},
			ref:      "SAVE10",
			snap:     hundredCart("u1"),
			wantKind: discount.FailUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := saveTen()
			if tt.mutate != nil {
				tt.mutate(d)
			}
			repo := &mockDiscountRepo{discounts: []*discount.Discount{d}}
			usage := &mockUsageStore{usage: map[string]discount.Usage{d.ID: tt.usage}}
			svc := testService(repo, usage, &mockProfileRepo{}, discount.StackingPolicy{})

			got, err := svc.ValidateDiscount(context.Background(), tt.ref, tt.snap)

			if tt.wantKind != "" {
				requireKind(t, err, tt.wantKind)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, d.ID, got.ID)
		})
	}
}

func TestGetApplicableDiscounts(t *testing.T) {
	freeShip := &discount.Discount{
		ID:    "d-freeship",
		Kind:  discount.KindPromotion,
		Name:  "Free shipping over 50",
		Type:  discount.TypeFreeShipping,
		Scope: discount.ScopeCart,
		Conditions: []discount.Condition{{
			Type:     discount.ConditionCartTotal,
			Operator: discount.OpGte,
			Value:    decimal.NewFromInt(50),
		}},
	}
	bigSpender := &discount.Discount{
		ID:    "d-bigspender",
		Kind:  discount.KindPromotion,
		Name:  "5% over 500",
		Type:  discount.TypePercentage,
		Value: decimal.NewFromInt(5),
		Scope: discount.ScopeCart,
		Conditions: []discount.Condition{{
			Type:     discount.ConditionCartTotal,
			Operator: discount.OpGte,
			Value:    decimal.NewFromInt(500),
		}},
	}
	repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen(), freeShip, bigSpender}}
	svc := testService(repo, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

	got, err := svc.GetApplicableDiscounts(context.Background(), hundredCart("u1"),
		[]string{"SAVE10", "SAVE10", "BOGUS", ""})

	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	// The 500-threshold promotion and the bogus code are dropped; the
	// duplicate code is deduplicated.
	assert.Equal(t, []string{"d-freeship", "d-save10"}, ids)
}

func TestCalculateDiscounts(t *testing.T) {
	t.Run("single percentage coupon", func(t *testing.T) {
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen()}}
		svc := testService(repo, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		quote, err := svc.CalculateDiscounts(context.Background(), hundredCart("u1"), []string{"SAVE10"})

		require.NoError(t, err)
		require.Len(t, quote.Lines, 1)
		assert.Equal(t, "d-save10", quote.Lines[0].DiscountID)
		assert.True(t, decimal.NewFromInt(10).Equal(quote.TotalDiscount),
			"expected discount 10, got %s", quote.TotalDiscount)
		assert.True(t, decimal.NewFromInt(90).Equal(quote.FinalTotal),
			"expected final 90, got %s", quote.FinalTotal)
	})

	t.Run("free shipping stacks with a percentage coupon", func(t *testing.T) {
		freeShip := &discount.Discount{
			ID:    "d-freeship",
			Kind:  discount.KindPromotion,
			Name:  "Free shipping over 50",
			Type:  discount.TypeFreeShipping,
			Scope: discount.ScopeCart,
			Conditions: []discount.Condition{{
				Type:     discount.ConditionCartTotal,
				Operator: discount.OpGte,
				Value:    decimal.NewFromInt(50),
			}},
		}
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen(), freeShip}}
		svc := testService(repo, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		snap := hundredCart("u1")
		snap.ShippingCost = decimal.RequireFromString("8.00")

		quote, err := svc.CalculateDiscounts(context.Background(), snap, []string{"SAVE10"})

		require.NoError(t, err)
		require.Len(t, quote.Lines, 2)
		// Merchandise 100 + shipping 8, minus 10% and the shipping refund.
		assert.True(t, decimal.NewFromInt(18).Equal(quote.TotalDiscount),
			"expected discount 18, got %s", quote.TotalDiscount)
		assert.True(t, decimal.NewFromInt(90).Equal(quote.FinalTotal),
			"expected final 90, got %s", quote.FinalTotal)
	})

	t.Run("competing percentages keep the best", func(t *testing.T) {
		fifteen := saveTen()
		fifteen.ID = "d-save15"
		fifteen.Code = "SAVE15"
		fifteen.Name = "15% off"
		fifteen.Value = decimal.NewFromInt(15)
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen(), fifteen}}
		svc := testService(repo, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		quote, err := svc.CalculateDiscounts(context.Background(), hundredCart("u1"),
			[]string{"SAVE10", "SAVE15"})

		require.NoError(t, err)
		require.Len(t, quote.Lines, 1)
		assert.Equal(t, "d-save15", quote.Lines[0].DiscountID)
		assert.True(t, decimal.NewFromInt(85).Equal(quote.FinalTotal),
			"expected final 85, got %s", quote.FinalTotal)
	})

	t.Run("total discount never exceeds the payable amount", func(t *testing.T) {
		huge := &discount.Discount{
			ID:    "d-huge",
			Kind:  discount.KindCoupon,
			Code:  "HUGE",
			Name:  "500 off",
			Type:  discount.TypeFixedAmount,
			Value: decimal.NewFromInt(500),
			Scope: discount.ScopeCart,
		}
		repo := &mockDiscountRepo{discounts: []*discount.Discount{huge}}
		svc := testService(repo, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		quote, err := svc.CalculateDiscounts(context.Background(), hundredCart("u1"), []string{"HUGE"})

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(quote.TotalDiscount),
			"expected discount clamped to 100, got %s", quote.TotalDiscount)
		assert.True(t, quote.FinalTotal.IsZero(),
			"expected final 0, got %s", quote.FinalTotal)
	})

	t.Run("identical inputs produce identical quotes", func(t *testing.T) {
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen()}}
		svc := testService(repo, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		first, err := svc.CalculateDiscounts(context.Background(), hundredCart("u1"), []string{"SAVE10"})
		require.NoError(t, err)
		second, err := svc.CalculateDiscounts(context.Background(), hundredCart("u1"), []string{"SAVE10"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestApplyDiscount(t *testing.T) {
	t.Run("reserves and records", func(t *testing.T) {
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen()}}
		usage := &mockUsageStore{}
		svc := testService(repo, usage, &mockProfileRepo{}, discount.StackingPolicy{})

		res, err := svc.ApplyDiscount(context.Background(), "d-save10", "u1", "order-1")

		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.False(t, res.AlreadyApplied)
		assert.Equal(t, []string{"d-save10|order-1"}, usage.reserved)
	})

	t.Run("replay returns the prior outcome", func(t *testing.T) {
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen()}}
		usage := &mockUsageStore{replay: true}
		svc := testService(repo, usage, &mockProfileRepo{}, discount.StackingPolicy{})

		res, err := svc.ApplyDiscount(context.Background(), "d-save10", "u1", "order-1")

		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.True(t, res.AlreadyApplied)
	})

	t.Run("missing order id", func(t *testing.T) {
		svc := testService(&mockDiscountRepo{}, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		_, err := svc.ApplyDiscount(context.Background(), "d-save10", "u1", "")
		require.ErrorIs(t, err, ErrOrderRequired)
	})

	t.Run("unknown discount", func(t *testing.T) {
		svc := testService(&mockDiscountRepo{}, &mockUsageStore{}, &mockProfileRepo{}, discount.StackingPolicy{})

		_, err := svc.ApplyDiscount(context.Background(), "d-gone", "u1", "order-1")
		requireKind(t, err, discount.FailNotFound)
	})

	t.Run("expired discount is not reserved", func(t *testing.T) {
		past := testNow.Add(-time.Hour)
		d := saveTen()
		d.Window.EndsAt = &past
		repo := &mockDiscountRepo{discounts: []*discount.Discount{d}}
		usage := &mockUsageStore{}
		svc := testService(repo, usage, &mockProfileRepo{}, discount.StackingPolicy{})

		_, err := svc.ApplyDiscount(context.Background(), "d-save10", "u1", "order-1")

		requireKind(t, err, discount.FailExpired)
		assert.Empty(t, usage.reserved)
	})

	t.Run("ineligible user is not reserved", func(t *testing.T) {
		d := saveTen()
		d.Eligibility.UserSegmentIDs = []string{"vip"}
		repo := &mockDiscountRepo{discounts: []*discount.Discount{d}}
		usage := &mockUsageStore{}
		svc := testService(repo, usage, &mockProfileRepo{}, discount.StackingPolicy{})

		_, err := svc.ApplyDiscount(context.Background(), "d-save10", "u1", "order-1")

		requireKind(t, err, discount.FailNotEligible)
		assert.Empty(t, usage.reserved)
	})

	t.Run("limit reached surfaces from the reservation", func(t *testing.T) {
		repo := &mockDiscountRepo{discounts: []*discount.Discount{saveTen()}}
		usage := &mockUsageStore{reserveErr: discount.Fail(discount.FailUsageLimitReached)}
		svc := testService(repo, usage, &mockProfileRepo{}, discount.StackingPolicy{})

		_, err := svc.ApplyDiscount(context.Background(), "d-save10", "u1", "order-1")
		requireKind(t, err, discount.FailUsageLimitReached)
	})
}
