// Package abtest buckets users into promotion experiment variants. The
// bucket is a stable hash of the user, not a random draw, so assignment
// needs no synchronized random state and survives process restarts.
package abtest

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrTestNotFound is returned when a test id does not exist.
	ErrTestNotFound = errors.New("ab test not found")
	// ErrNoAssignment is returned when a (test, user) pair has no
	// persisted assignment yet.
	ErrNoAssignment = errors.New("no assignment")
	// ErrInvalidTrafficSplit rejects a test whose variant traffic
	// percentages do not sum to exactly 100. Enforced at creation,
	// never at assignment time.
	ErrInvalidTrafficSplit = errors.New("variant traffic percentages must sum to 100")
	// ErrUserRequired is returned when assignment is attempted for an
	// anonymous user.
	ErrUserRequired = errors.New("user id required for assignment")
)

// Test is a promotion experiment owning an ordered list of variants.
type Test struct {
	ID          string
	Name        string
	Description string
	Variants    []Variant
	CreatedAt   time.Time
}

// Variant is one arm of a test. DiscountID optionally links the arm to the
// promotion it turns on. Position fixes the walk order used for bucketing.
type Variant struct {
	ID                string
	TestID            string
	Name              string
	DiscountID        string
	TrafficPercentage int
	Position          int
}

// Assignment binds a user to a variant. Once written it is immutable for
// that (test, user) pair.
type Assignment struct {
	ID         string
	TestID     string
	UserID     string
	VariantID  string
	AssignedAt time.Time
}

// ValidateTraffic checks the creation-time invariant: percentages are
// non-negative and sum to exactly 100.
func (t *Test) ValidateTraffic() error {
	sum := 0
	for _, v := range t.Variants {
		if v.TrafficPercentage < 0 {
			return ErrInvalidTrafficSplit
		}
		sum += v.TrafficPercentage
	}
	if sum != 100 {
		return ErrInvalidTrafficSplit
	}
	return nil
}

// Repository persists tests and assignments. SaveAssignment must treat a
// duplicate (test, user) insert as success and return the row that won,
// so concurrent first assignments converge on one variant.
type Repository interface {
	GetTest(ctx context.Context, id string) (*Test, error)
	CreateTest(ctx context.Context, t *Test) error
	GetAssignment(ctx context.Context, testID, userID string) (*Assignment, error)
	SaveAssignment(ctx context.Context, a *Assignment) (*Assignment, error)
}
