package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartloom/promo-engine/internal/domain/abtest"
)

const (
	getTestSQL = `SELECT id, name, description, created_at FROM ab_tests WHERE id = $1`

	listVariantsSQL = `SELECT id, test_id, name, COALESCE(discount_id, ''), traffic_percentage, position
		FROM ab_test_variants WHERE test_id = $1 ORDER BY position`

	insertTestSQL = `INSERT INTO ab_tests (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)`

	insertVariantSQL = `INSERT INTO ab_test_variants (id, test_id, name, discount_id, traffic_percentage, position)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`

	getAssignmentSQL = `SELECT id, test_id, user_id, variant_id, assigned_at
		FROM ab_test_assignments WHERE test_id = $1 AND user_id = $2`

	insertAssignmentSQL = `INSERT INTO ab_test_assignments (id, test_id, user_id, variant_id, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (test_id, user_id) DO NOTHING`
)

var _ abtest.Repository = (*ABTestRepository)(nil)

// ABTestRepository implements abtest.Repository backed by PostgreSQL.
type ABTestRepository struct {
	pool *pgxpool.Pool
}

// NewABTestRepository returns an ABTestRepository that uses the given pool.
func NewABTestRepository(pool *pgxpool.Pool) *ABTestRepository {
	return &ABTestRepository{pool: pool}
}

// GetTest returns a test with its variants ordered by position.
// Returns abtest.ErrTestNotFound when no such test exists.
func (r *ABTestRepository) GetTest(ctx context.Context, id string) (*abtest.Test, error) {
	var t abtest.Test
	err := r.pool.QueryRow(ctx, getTestSQL, id).Scan(
		&t.ID, &t.Name, &t.Description, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, abtest.ErrTestNotFound
		}
		return nil, fmt.Errorf("getting ab test %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, listVariantsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing variants for test %q: %w", id, err)
	}
	t.Variants, err = pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("listing variants for test %q: %w", id, err)
	}
	return &t, nil
}

// CreateTest persists a test and its variants in one transaction.
func (r *ABTestRepository) CreateTest(ctx context.Context, t *abtest.Test) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning test creation: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertTestSQL, t.ID, t.Name, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating ab test %q: %w", t.ID, err)
	}
	for _, v := range t.Variants {
		_, err = tx.Exec(ctx, insertVariantSQL,
			v.ID, t.ID, v.Name, v.DiscountID, v.TrafficPercentage, v.Position,
		)
		if err != nil {
			return fmt.Errorf("creating variant %q: %w", v.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing test creation: %w", err)
	}
	return nil
}

// GetAssignment returns the persisted assignment for a (test, user) pair.
// Returns abtest.ErrNoAssignment when the user has not been bucketed yet.
func (r *ABTestRepository) GetAssignment(ctx context.Context, testID, userID string) (*abtest.Assignment, error) {
	a, err := r.queryAssignment(ctx, testID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, abtest.ErrNoAssignment
		}
		return nil, fmt.Errorf("getting assignment for test %q user %q: %w", testID, userID, err)
	}
	return a, nil
}

// SaveAssignment inserts an assignment unless the (test, user) pair already
// holds one, and returns the row that won. Concurrent first assignments for
// the same user therefore converge on a single variant.
func (r *ABTestRepository) SaveAssignment(ctx context.Context, a *abtest.Assignment) (*abtest.Assignment, error) {
	tag, err := r.pool.Exec(ctx, insertAssignmentSQL,
		a.ID, a.TestID, a.UserID, a.VariantID, a.AssignedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("saving assignment for test %q user %q: %w", a.TestID, a.UserID, err)
	}
	if tag.RowsAffected() == 1 {
		return a, nil
	}

	won, err := r.queryAssignment(ctx, a.TestID, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("reloading assignment for test %q user %q: %w", a.TestID, a.UserID, err)
	}
	return won, nil
}

func (r *ABTestRepository) queryAssignment(ctx context.Context, testID, userID string) (*abtest.Assignment, error) {
	var a abtest.Assignment
	err := r.pool.QueryRow(ctx, getAssignmentSQL, testID, userID).Scan(
		&a.ID, &a.TestID, &a.UserID, &a.VariantID, &a.AssignedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanVariant(row pgx.CollectableRow) (abtest.Variant, error) {
	var (
		v       abtest.Variant
		traffic int32
		pos     int32
	)
	err := row.Scan(&v.ID, &v.TestID, &v.Name, &v.DiscountID, &traffic, &pos)
	v.TrafficPercentage = int(traffic)
	v.Position = int(pos)
	return v, err
}
