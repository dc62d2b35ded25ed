package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartloom/promo-engine/internal/domain/discount"
)

const (
	checkUsageSQL = `SELECT d.usage_limit_global, d.usage_limit_per_user, d.used_count,
		(SELECT COUNT(*) FROM usage_records u WHERE u.discount_id = d.id AND u.user_id = $2)
		FROM discounts d WHERE d.id = $1`

	lockDiscountSQL = `SELECT usage_limit_global, usage_limit_per_user, used_count
		FROM discounts WHERE id = $1 FOR UPDATE`

	usageExistsForOrderSQL = `SELECT EXISTS (
		SELECT 1 FROM usage_records WHERE discount_id = $1 AND order_id = $2)`

	countUserUsageSQL = `SELECT COUNT(*) FROM usage_records
		WHERE discount_id = $1 AND user_id = $2`

	incrementUsedCountSQL = `UPDATE discounts
		SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1`

	insertUsageRecordSQL = `INSERT INTO usage_records (discount_id, user_id, order_id)
		VALUES ($1, $2, $3)`
)

var _ discount.UsageStore = (*UsageRepository)(nil)

// UsageRepository implements discount.UsageStore backed by PostgreSQL.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a UsageRepository that uses the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// CheckUsage reads the current usage counters for a discount alongside the
// given user's redemption count. Returns discount.ErrNotFound when the
// discount does not exist.
func (r *UsageRepository) CheckUsage(ctx context.Context, discountID, userID string) (discount.Usage, error) {
	var (
		u            discount.Usage
		limitGlobal  int32
		limitPerUser int32
		usedCount    int32
		userUsed     int64
	)
	err := r.pool.QueryRow(ctx, checkUsageSQL, discountID, userID).Scan(
		&limitGlobal, &limitPerUser, &usedCount, &userUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.Usage{}, discount.ErrNotFound
		}
		return discount.Usage{}, fmt.Errorf("checking usage for discount %q: %w", discountID, err)
	}
	u.LimitGlobal = int(limitGlobal)
	u.LimitPerUser = int(limitPerUser)
	u.UsedCount = int(usedCount)
	u.UserUsedCount = int(userUsed)
	return u, nil
}

// Reserve consumes one use of the discount for the given order in a single
// transaction. The row lock on the discount serializes concurrent
// reservations so limits are never oversubscribed; replaying an order that
// already holds a reservation reports AlreadyApplied instead of consuming
// another use.
func (r *UsageRepository) Reserve(ctx context.Context, discountID, userID, orderID string) (discount.ReserveResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return discount.ReserveResult{}, fmt.Errorf("beginning reservation: %w", err)
	}
	defer tx.Rollback(ctx)

	var limitGlobal, limitPerUser, usedCount int32
	err = tx.QueryRow(ctx, lockDiscountSQL, discountID).Scan(&limitGlobal, &limitPerUser, &usedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.ReserveResult{}, discount.ErrNotFound
		}
		return discount.ReserveResult{}, fmt.Errorf("locking discount %q: %w", discountID, err)
	}

	var alreadyApplied bool
	if err := tx.QueryRow(ctx, usageExistsForOrderSQL, discountID, orderID).Scan(&alreadyApplied); err != nil {
		return discount.ReserveResult{}, fmt.Errorf("checking order %q replay: %w", orderID, err)
	}
	if alreadyApplied {
		if err := tx.Commit(ctx); err != nil {
			return discount.ReserveResult{}, fmt.Errorf("committing reservation: %w", err)
		}
		return discount.ReserveResult{AlreadyApplied: true}, nil
	}

	if limitGlobal > 0 && usedCount >= limitGlobal {
		return discount.ReserveResult{}, discount.Fail(discount.FailUsageLimitReached)
	}
	if limitPerUser > 0 {
		var userUsed int64
		if err := tx.QueryRow(ctx, countUserUsageSQL, discountID, userID).Scan(&userUsed); err != nil {
			return discount.ReserveResult{}, fmt.Errorf("counting usage for user %q: %w", userID, err)
		}
		if userUsed >= int64(limitPerUser) {
			return discount.ReserveResult{}, discount.Fail(discount.FailUserUsageLimitReached)
		}
	}

	if _, err := tx.Exec(ctx, incrementUsedCountSQL, discountID); err != nil {
		return discount.ReserveResult{}, fmt.Errorf("incrementing used count: %w", err)
	}
	if _, err := tx.Exec(ctx, insertUsageRecordSQL, discountID, userID, orderID); err != nil {
		return discount.ReserveResult{}, fmt.Errorf("recording usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return discount.ReserveResult{}, fmt.Errorf("committing reservation: %w", err)
	}
	return discount.ReserveResult{}, nil
}
