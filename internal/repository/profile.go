package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartloom/promo-engine/internal/domain/user"
)

const (
	getProfileSQL = `SELECT id, completed_orders, lifetime_spend, created_at
		FROM user_profiles WHERE id = $1`

	listSegmentsSQL = `SELECT segment_id FROM user_segments
		WHERE user_id = $1 ORDER BY segment_id`
)

var _ user.Repository = (*ProfileRepository)(nil)

// ProfileRepository implements user.Repository backed by PostgreSQL.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a ProfileRepository that uses the given pool.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetByID returns a profile with its segment memberships loaded.
// Returns user.ErrNotFound when no profile row exists.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*user.Profile, error) {
	var (
		p               user.Profile
		completedOrders int32
	)
	err := r.pool.QueryRow(ctx, getProfileSQL, id).Scan(
		&p.ID, &completedOrders, &p.LifetimeSpend, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting profile %q: %w", id, err)
	}
	p.CompletedOrders = int(completedOrders)

	rows, err := r.pool.Query(ctx, listSegmentsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing segments for %q: %w", id, err)
	}
	p.SegmentIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing segments for %q: %w", id, err)
	}
	return &p, nil
}
