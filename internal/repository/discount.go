package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartloom/promo-engine/internal/domain/discount"
)

const discountColumns = `id, kind, code, name, description, discount_type, value,
	scope, scope_ids, buy_quantity, get_quantity,
	min_order_amount, max_order_amount, max_discount_amount,
	starts_at, ends_at, weekdays, hour_from, hour_to, paused,
	first_order_only, new_customers_only, min_orders, min_total_spent, segment_ids,
	usage_limit_global, usage_limit_per_user, used_count,
	stackable, priority, created_at, updated_at`

const (
	getDiscountByIDSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discounts
		WHERE UPPER(code) = UPPER($1) AND code <> '' AND kind = 'coupon'`

	listPromotionsSQL = `SELECT ` + discountColumns + ` FROM discounts
		WHERE kind = 'promotion' AND NOT paused
		AND (starts_at IS NULL OR starts_at <= $1)
		AND (ends_at IS NULL OR ends_at >= $1)
		ORDER BY priority DESC, id`

	listConditionsSQL = `SELECT id, discount_id, condition_type, operator, value, scope_id
		FROM discount_conditions WHERE discount_id = ANY($1)
		ORDER BY discount_id, position`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// GetByID returns a single discount with its conditions loaded.
// Returns discount.ErrNotFound when no such discount exists.
func (r *DiscountRepository) GetByID(ctx context.Context, id string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	if err := r.attachConditions(ctx, []*discount.Discount{&d}); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByCode looks up a coupon by its code (case-insensitive).
// Returns discount.ErrNotFound when no coupon carries the code.
func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", code, err)
	}

	if err := r.attachConditions(ctx, []*discount.Discount{&d}); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListPromotions returns unpaused promotions whose date range covers the
// given instant. Weekday and hour windows are left for the engine to apply.
func (r *DiscountRepository) ListPromotions(ctx context.Context, at time.Time) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL, at)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}

	promos, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	if len(promos) == 0 {
		return nil, nil
	}

	refs := make([]*discount.Discount, len(promos))
	for i := range promos {
		refs[i] = &promos[i]
	}
	if err := r.attachConditions(ctx, refs); err != nil {
		return nil, err
	}
	return promos, nil
}

// attachConditions loads the conditions for every given discount in one query.
func (r *DiscountRepository) attachConditions(ctx context.Context, discounts []*discount.Discount) error {
	ids := make([]string, len(discounts))
	byID := make(map[string]*discount.Discount, len(discounts))
	for i, d := range discounts {
		ids[i] = d.ID
		byID[d.ID] = d
	}

	rows, err := r.pool.Query(ctx, listConditionsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading discount conditions: %w", err)
	}

	conds, err := pgx.CollectRows(rows, scanCondition)
	if err != nil {
		return fmt.Errorf("loading discount conditions: %w", err)
	}
	for _, c := range conds {
		if d, ok := byID[c.discountID]; ok {
			d.Conditions = append(d.Conditions, c.cond)
		}
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d            discount.Discount
		kind         string
		discountType string
		scope        string
		weekdays     []int16
		hourFrom     *int16
		hourTo       *int16
		buyQty       int32
		getQty       int32
		minOrders    int32
		limitGlobal  int32
		limitPerUser int32
		usedCount    int32
		priority     int32
	)
	err := row.Scan(
		&d.ID, &kind, &d.Code, &d.Name, &d.Description, &discountType, &d.Value,
		&scope, &d.ScopeIDs, &buyQty, &getQty,
		&d.MinOrderAmount, &d.MaxOrderAmount, &d.MaxDiscountAmount,
		&d.Window.StartsAt, &d.Window.EndsAt, &weekdays, &hourFrom, &hourTo, &d.Paused,
		&d.Eligibility.FirstOrderOnly, &d.Eligibility.NewCustomersOnly,
		&minOrders, &d.Eligibility.MinTotalSpent, &d.Eligibility.UserSegmentIDs,
		&limitGlobal, &limitPerUser, &usedCount,
		&d.Stackable, &priority, &d.CreatedAt, &d.UpdatedAt,
	)
	d.Kind = discount.Kind(kind)
	d.Type = discount.Type(discountType)
	d.Scope = discount.Scope(scope)
	for _, wd := range weekdays {
		d.Window.Weekdays = append(d.Window.Weekdays, time.Weekday(wd))
	}
	if hourFrom != nil && hourTo != nil {
		d.Window.Hours = &discount.HourRange{From: int(*hourFrom), To: int(*hourTo)}
	}
	d.BuyQuantity = int(buyQty)
	d.GetQuantity = int(getQty)
	d.Eligibility.MinOrders = int(minOrders)
	d.UsageLimitGlobal = int(limitGlobal)
	d.UsageLimitPerUser = int(limitPerUser)
	d.UsedCount = int(usedCount)
	d.Priority = int(priority)
	return d, err
}

type conditionRow struct {
	discountID string
	cond       discount.Condition
}

func scanCondition(row pgx.CollectableRow) (conditionRow, error) {
	var (
		c             conditionRow
		conditionType string
		operator      string
	)
	err := row.Scan(
		&c.cond.ID, &c.discountID, &conditionType, &operator,
		&c.cond.Value, &c.cond.ScopeID,
	)
	c.cond.Type = discount.ConditionType(conditionType)
	c.cond.Operator = discount.Operator(operator)
	return c, err
}
