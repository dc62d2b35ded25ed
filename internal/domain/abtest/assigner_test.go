package abtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	test        *Test
	testErr     error
	assignments map[string]*Assignment
	// missOnGet simulates a concurrent first assignment: GetAssignment
	// reports no row even though SaveAssignment will hit a conflict.
	missOnGet bool
	saveCalls int
}

func newMockRepo(test *Test) *mockRepo {
	return &mockRepo{
		test:        test,
		assignments: make(map[string]*Assignment),
	}
}

func (m *mockRepo) GetTest(_ context.Context, id string) (*Test, error) {
	if m.testErr != nil {
		return nil, m.testErr
	}
	if m.test == nil || m.test.ID != id {
		return nil, ErrTestNotFound
	}
	return m.test, nil
}

func (m *mockRepo) CreateTest(_ context.Context, t *Test) error {
	m.test = t
	return nil
}

func (m *mockRepo) GetAssignment(_ context.Context, testID, userID string) (*Assignment, error) {
	if m.missOnGet {
		return nil, ErrNoAssignment
	}
	a, ok := m.assignments[testID+"|"+userID]
	if !ok {
		return nil, ErrNoAssignment
	}
	return a, nil
}

func (m *mockRepo) SaveAssignment(_ context.Context, a *Assignment) (*Assignment, error) {
	m.saveCalls++
	key := a.TestID + "|" + a.UserID
	if existing, ok := m.assignments[key]; ok {
		return existing, nil
	}
	m.assignments[key] = a
	return a, nil
}

func fiftyFiftyTest() *Test {
	return &Test{
		ID:   "t1",
		Name: "hero banner",
		Variants: []Variant{
			{ID: "v-control", TestID: "t1", Name: "control", TrafficPercentage: 50, Position: 0},
			{ID: "v-promo", TestID: "t1", Name: "promo", TrafficPercentage: 50, Position: 1},
		},
	}
}

func TestAssignerIdempotent(t *testing.T) {
	repo := newMockRepo(fiftyFiftyTest())
	assigner := NewAssigner(repo)
	assigner.now = func() time.Time { return time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC) }

	first, err := assigner.Assign(context.Background(), "t1", "user-42")
	require.NoError(t, err)

	second, err := assigner.Assign(context.Background(), "t1", "user-42")
	require.NoError(t, err)

	assert.Equal(t, first.VariantID, second.VariantID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.saveCalls)
}

func TestAssignerDeterministicAcrossProcesses(t *testing.T) {
	// Two independent repos stand in for two process lifetimes.
	a1, err := NewAssigner(newMockRepo(fiftyFiftyTest())).Assign(context.Background(), "t1", "user-42")
	require.NoError(t, err)
	a2, err := NewAssigner(newMockRepo(fiftyFiftyTest())).Assign(context.Background(), "t1", "user-42")
	require.NoError(t, err)

	assert.Equal(t, a1.VariantID, a2.VariantID)
}

func TestAssignerConcurrentFirstCallLosesToPersistedRow(t *testing.T) {
	repo := newMockRepo(fiftyFiftyTest())
	repo.missOnGet = true
	repo.assignments["t1|user-42"] = &Assignment{
		ID:        "a-existing",
		TestID:    "t1",
		UserID:    "user-42",
		VariantID: "v-other",
	}

	got, err := NewAssigner(repo).Assign(context.Background(), "t1", "user-42")
	require.NoError(t, err)

	assert.Equal(t, "a-existing", got.ID)
	assert.Equal(t, "v-other", got.VariantID)
}

func TestAssignerRequiresUser(t *testing.T) {
	_, err := NewAssigner(newMockRepo(fiftyFiftyTest())).Assign(context.Background(), "t1", "")
	require.ErrorIs(t, err, ErrUserRequired)
}

func TestAssignerUnknownTest(t *testing.T) {
	_, err := NewAssigner(newMockRepo(fiftyFiftyTest())).Assign(context.Background(), "t9", "user-42")
	require.ErrorIs(t, err, ErrTestNotFound)
}

func TestValidateTraffic(t *testing.T) {
	variants := func(shares ...int) []Variant {
		out := make([]Variant, len(shares))
		for i, s := range shares {
			out[i] = Variant{ID: fmt.Sprintf("v%d", i), TrafficPercentage: s, Position: i}
		}
		return out
	}

	tests := []struct {
		name    string
		shares  []Variant
		wantErr bool
	}{
		{"fifty fifty", variants(50, 50), false},
		{"single full variant", variants(100), false},
		{"three way split", variants(50, 30, 20), false},
		{"sums below one hundred", variants(50, 49), true},
		{"sums above one hundred", variants(60, 50), true},
		{"negative share", variants(-10, 110), true},
		{"no variants", variants(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := &Test{ID: "t1", Variants: tt.shares}
			err := test.ValidateTraffic()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTrafficSplit)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBucketStableAndSalted(t *testing.T) {
	assert.Equal(t, Bucket("t1", "user-42"), Bucket("t1", "user-42"))

	// Salting by test id must decorrelate buckets across tests for at
	// least some users.
	var differs bool
	for i := 0; i < 32; i++ {
		u := fmt.Sprintf("user-%d", i)
		if Bucket("t1", u) != Bucket("t2", u) {
			differs = true
			break
		}
	}
	assert.True(t, differs)
}

func TestVariantForTrafficPartition(t *testing.T) {
	test := &Test{
		ID: "t-split",
		Variants: []Variant{
			{ID: "v-a", TrafficPercentage: 50, Position: 0},
			{ID: "v-b", TrafficPercentage: 30, Position: 1},
			{ID: "v-c", TrafficPercentage: 20, Position: 2},
		},
	}

	const sample = 20000
	counts := make(map[string]int)
	for i := 0; i < sample; i++ {
		v, err := test.VariantFor(fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		counts[v.ID]++
	}

	assert.Equal(t, sample, counts["v-a"]+counts["v-b"]+counts["v-c"])
	assert.InDelta(t, 0.50, float64(counts["v-a"])/sample, 0.02)
	assert.InDelta(t, 0.30, float64(counts["v-b"])/sample, 0.02)
	assert.InDelta(t, 0.20, float64(counts["v-c"])/sample, 0.02)
}
