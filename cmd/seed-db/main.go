package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cartloom/promo-engine/internal/domain/auth"
	"github.com/cartloom/promo-engine/internal/domain/discount"
	"github.com/cartloom/promo-engine/internal/repository"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedProfiles(ctx, pool); err != nil {
		return errors.Wrap(err, "seed profiles")
	}
	if err := seedABTest(ctx, pool); err != nil {
		return errors.Wrap(err, "seed ab test")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// demoDiscounts covers each discount type, scope, temporal window and
// eligibility rule at least once so a fresh database exercises the whole
// engine.
func demoDiscounts() []*discount.Discount {
	hours := &discount.HourRange{From: 16, To: 19}
	return []*discount.Discount{
		{
			ID:    "d-save10",
			Kind:  discount.KindCoupon,
			Code:  "SAVE10",
			Name:  "10% off",
			Type:  discount.TypePercentage,
			Value: decimal.NewFromInt(10),
			Scope: discount.ScopeCart,
		},
		{
			ID:                "d-welcome15",
			Kind:              discount.KindCoupon,
			Code:              "WELCOME15",
			Name:              "Welcome 15% off",
			Description:       "First order only",
			Type:              discount.TypePercentage,
			Value:             decimal.NewFromInt(15),
			Scope:             discount.ScopeCart,
			Eligibility:       discount.Eligibility{FirstOrderOnly: true},
			UsageLimitPerUser: 1,
		},
		{
			ID:               "d-fiver",
			Kind:             discount.KindCoupon,
			Code:             "FIVER",
			Name:             "5 off orders over 25",
			Type:             discount.TypeFixedAmount,
			Value:            decimal.NewFromInt(5),
			Scope:            discount.ScopeCart,
			MinOrderAmount:   decimal.NewFromInt(25),
			UsageLimitGlobal: 1000,
		},
		{
			ID:                "d-vip25",
			Kind:              discount.KindCoupon,
			Code:              "VIP25",
			Name:              "VIP 25% off",
			Type:              discount.TypePercentage,
			Value:             decimal.NewFromInt(25),
			Scope:             discount.ScopeCart,
			MaxDiscountAmount: decimal.NewFromInt(50),
			Eligibility:       discount.Eligibility{UserSegmentIDs: []string{"vip"}},
		},
		{
			ID:          "d-bulktea",
			Kind:        discount.KindCoupon,
			Code:        "BULKTEA",
			Name:        "Beverages: buy 2 get 1 free",
			Type:        discount.TypeBuyXGetY,
			Value:       decimal.NewFromInt(100),
			Scope:       discount.ScopeCategory,
			ScopeIDs:    []string{"beverages"},
			BuyQuantity: 2,
			GetQuantity: 1,
		},
		{
			ID:          "p-free-shipping",
			Kind:        discount.KindPromotion,
			Name:        "Free shipping over 50",
			Type:        discount.TypeFreeShipping,
			Scope:       discount.ScopeCart,
			Stackable:   true,
			Priority:    10,
			Conditions: []discount.Condition{
				{Type: discount.ConditionCartTotal, Operator: discount.OpGte, Value: decimal.NewFromInt(50)},
			},
		},
		{
			ID:       "p-weekend-snacks",
			Kind:     discount.KindPromotion,
			Name:     "Weekend snacks 20% off",
			Type:     discount.TypePercentage,
			Value:    decimal.NewFromInt(20),
			Scope:    discount.ScopeCategory,
			ScopeIDs: []string{"snacks"},
			Window:   discount.Window{Weekdays: []time.Weekday{time.Saturday, time.Sunday}},
			Priority: 5,
			Conditions: []discount.Condition{
				{Type: discount.ConditionCategoryQuantity, Operator: discount.OpGte, Value: decimal.NewFromInt(2), ScopeID: "snacks"},
			},
		},
		{
			ID:     "p-happy-hour",
			Kind:   discount.KindPromotion,
			Name:   "Happy hour 18% off",
			Type:   discount.TypePercentage,
			Value:  decimal.NewFromInt(18),
			Scope:  discount.ScopeCart,
			Window: discount.Window{Hours: hours},
		},
	}
}

const upsertDiscountSQL = `
INSERT INTO discounts (
	id, kind, code, name, description, discount_type, value, scope, scope_ids,
	buy_quantity, get_quantity, min_order_amount, max_order_amount, max_discount_amount,
	starts_at, ends_at, weekdays, hour_from, hour_to,
	first_order_only, new_customers_only, min_orders, min_total_spent, segment_ids,
	usage_limit_global, usage_limit_per_user, stackable, priority
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9,
	$10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19,
	$20, $21, $22, $23, $24,
	$25, $26, $27, $28
)
ON CONFLICT (id) DO UPDATE SET
	code = EXCLUDED.code,
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	discount_type = EXCLUDED.discount_type,
	value = EXCLUDED.value,
	scope = EXCLUDED.scope,
	scope_ids = EXCLUDED.scope_ids,
	buy_quantity = EXCLUDED.buy_quantity,
	get_quantity = EXCLUDED.get_quantity,
	min_order_amount = EXCLUDED.min_order_amount,
	max_order_amount = EXCLUDED.max_order_amount,
	max_discount_amount = EXCLUDED.max_discount_amount,
	starts_at = EXCLUDED.starts_at,
	ends_at = EXCLUDED.ends_at,
	weekdays = EXCLUDED.weekdays,
	hour_from = EXCLUDED.hour_from,
	hour_to = EXCLUDED.hour_to,
	first_order_only = EXCLUDED.first_order_only,
	new_customers_only = EXCLUDED.new_customers_only,
	min_orders = EXCLUDED.min_orders,
	min_total_spent = EXCLUDED.min_total_spent,
	segment_ids = EXCLUDED.segment_ids,
	usage_limit_global = EXCLUDED.usage_limit_global,
	usage_limit_per_user = EXCLUDED.usage_limit_per_user,
	stackable = EXCLUDED.stackable,
	priority = EXCLUDED.priority,
	updated_at = NOW()`

const deleteConditionsSQL = `DELETE FROM discount_conditions WHERE discount_id = $1`

const insertConditionSQL = `
INSERT INTO discount_conditions (discount_id, condition_type, operator, value, scope_id, position)
VALUES ($1, $2, $3, $4, $5, $6)`

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	discounts := demoDiscounts()
	slog.Info("upserting discounts", slog.Int("count", len(discounts)))

	for _, d := range discounts {
		weekdays := make([]int16, len(d.Window.Weekdays))
		for i, wd := range d.Window.Weekdays {
			weekdays[i] = int16(wd)
		}
		var hourFrom, hourTo *int16
		if d.Window.Hours != nil {
			from, to := int16(d.Window.Hours.From), int16(d.Window.Hours.To)
			hourFrom, hourTo = &from, &to
		}

		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			d.ID, string(d.Kind), d.Code, d.Name, d.Description, string(d.Type), d.Value, string(d.Scope), d.ScopeIDs,
			d.BuyQuantity, d.GetQuantity, d.MinOrderAmount, d.MaxOrderAmount, d.MaxDiscountAmount,
			d.Window.StartsAt, d.Window.EndsAt, weekdays, hourFrom, hourTo,
			d.Eligibility.FirstOrderOnly, d.Eligibility.NewCustomersOnly, d.Eligibility.MinOrders, d.Eligibility.MinTotalSpent, d.Eligibility.UserSegmentIDs,
			d.UsageLimitGlobal, d.UsageLimitPerUser, d.Stackable, d.Priority,
		); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.ID)
		}

		if _, err := pool.Exec(ctx, deleteConditionsSQL, d.ID); err != nil {
			return errors.Wrapf(err, "clear conditions for %s", d.ID)
		}
		for i, c := range d.Conditions {
			if _, err := pool.Exec(ctx, insertConditionSQL,
				d.ID, string(c.Type), string(c.Operator), c.Value, c.ScopeID, i,
			); err != nil {
				return errors.Wrapf(err, "insert condition %d for %s", i, d.ID)
			}
		}

		slog.Info("upserted discount", slog.String("id", d.ID), slog.String("name", d.Name))
	}

	return nil
}

const upsertProfileSQL = `
INSERT INTO user_profiles (id, completed_orders, lifetime_spend)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	completed_orders = EXCLUDED.completed_orders,
	lifetime_spend = EXCLUDED.lifetime_spend`

const upsertSegmentSQL = `
INSERT INTO user_segments (user_id, segment_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`

func seedProfiles(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo user profiles")

	profiles := []struct {
		id       string
		orders   int
		spend    decimal.Decimal
		segments []string
	}{
		{id: "u-alice", orders: 7, spend: decimal.RequireFromString("640.00"), segments: []string{"vip"}},
		{id: "u-bob", orders: 1, spend: decimal.RequireFromString("42.50")},
		{id: "u-newbie"},
	}

	for _, p := range profiles {
		if _, err := pool.Exec(ctx, upsertProfileSQL, p.id, p.orders, p.spend); err != nil {
			return errors.Wrapf(err, "upsert profile %s", p.id)
		}
		for _, seg := range p.segments {
			if _, err := pool.Exec(ctx, upsertSegmentSQL, p.id, seg); err != nil {
				return errors.Wrapf(err, "upsert segment %s for %s", seg, p.id)
			}
		}

		slog.Info("upserted profile", slog.String("id", p.id), slog.Int("orders", p.orders))
	}

	return nil
}

const upsertTestSQL = `
INSERT INTO ab_tests (id, name, description)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`

const upsertVariantSQL = `
INSERT INTO ab_test_variants (id, test_id, name, discount_id, traffic_percentage, position)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	discount_id = EXCLUDED.discount_id,
	traffic_percentage = EXCLUDED.traffic_percentage,
	position = EXCLUDED.position`

func seedABTest(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo ab test")

	if _, err := pool.Exec(ctx, upsertTestSQL,
		"t-welcome-offer", "Welcome offer", "Does the welcome coupon lift first orders?",
	); err != nil {
		return errors.Wrap(err, "upsert ab test")
	}

	variants := []struct {
		id, name, discountID string
		traffic, position    int
	}{
		{id: "v-control", name: "control", traffic: 50, position: 0},
		{id: "v-welcome15", name: "welcome15", discountID: "d-welcome15", traffic: 50, position: 1},
	}
	for _, v := range variants {
		if _, err := pool.Exec(ctx, upsertVariantSQL,
			v.id, "t-welcome-offer", v.name, v.discountID, v.traffic, v.position,
		); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.id)
		}
	}

	slog.Info("upserted ab test", slog.String("id", "t-welcome-offer"), slog.Int("variants", len(variants)))

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	key_hash = EXCLUDED.key_hash,
	name = EXCLUDED.name,
	scopes = EXCLUDED.scopes,
	active = EXCLUDED.active`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	keyHash := auth.HashKey([]byte(pepper), apiKey)

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default admin key", []string{"discounts:apply", "abtests:create"}, true,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
