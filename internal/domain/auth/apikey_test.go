package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	keys map[string]*APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, ErrUnauthorized
	}
	return info, nil
}

func TestVerifierVerify(t *testing.T) {
	pepper := []byte("test-pepper")
	validHash := HashKey(pepper, "sk-valid")
	repo := &mockKeyRepo{keys: map[string]*APIKeyInfo{
		validHash: {ID: "default", KeyHash: validHash, Name: "Default key", Scopes: []string{"manage_tests"}},
		HashKey(pepper, "sk-corrupt"): {ID: "corrupt", KeyHash: "not-hex"},
	}}

	v := NewVerifier(repo, pepper)

	t.Run("valid key", func(t *testing.T) {
		info, err := v.Verify(context.Background(), "sk-valid")
		require.NoError(t, err)
		assert.Equal(t, "default", info.ID)
		assert.Equal(t, []string{"manage_tests"}, info.Scopes)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "sk-unknown")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("pepper mismatch", func(t *testing.T) {
		other := NewVerifier(repo, []byte("other-pepper"))
		_, err := other.Verify(context.Background(), "sk-valid")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("corrupt stored hash", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "sk-corrupt")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
