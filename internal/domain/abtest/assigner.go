package abtest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Bucket maps a user to a stable spot in [0, 100) for one test. The test
// id salts the hash so one user's buckets are independent across tests.
func Bucket(testID, userID string) int {
	sum := sha256.Sum256([]byte(testID + ":" + userID))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}

// VariantFor walks the variants in order, accumulating traffic share, and
// returns the first variant whose cumulative share exceeds the user's
// bucket. With traffic summing to 100 a variant always matches.
func (t *Test) VariantFor(userID string) (*Variant, error) {
	bucket := Bucket(t.ID, userID)
	cum := 0
	for i := range t.Variants {
		cum += t.Variants[i].TrafficPercentage
		if bucket < cum {
			return &t.Variants[i], nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidTrafficSplit, "test %s covers %d%%", t.ID, cum)
}

// Assigner resolves and persists variant assignments.
type Assigner struct {
	repo Repository
	now  func() time.Time
}

// NewAssigner returns an Assigner backed by repo.
func NewAssigner(repo Repository) *Assigner {
	return &Assigner{
		repo: repo,
		now:  time.Now,
	}
}

// Assign returns the variant assignment for (testID, userID), creating and
// persisting it on first call. Re-assignment is idempotent: the persisted
// row always wins, including against concurrent first calls.
func (a *Assigner) Assign(ctx context.Context, testID, userID string) (*Assignment, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	existing, err := a.repo.GetAssignment(ctx, testID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNoAssignment) {
		return nil, errors.Wrap(err, "get assignment")
	}

	test, err := a.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, errors.Wrap(err, "get test")
	}
	variant, err := test.VariantFor(userID)
	if err != nil {
		return nil, err
	}

	saved, err := a.repo.SaveAssignment(ctx, &Assignment{
		ID:         uuid.NewString(),
		TestID:     testID,
		UserID:     userID,
		VariantID:  variant.ID,
		AssignedAt: a.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "save assignment")
	}
	return saved, nil
}
