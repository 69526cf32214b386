package auth_test

import (
	"crypto/rand"
	"testing"

	"github.com/pilab-dev/shadow-auth/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	hasher := auth.NewBcryptPasswordHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)

	assert.True(t, hasher.Verify(hash, "secret1"))
	assert.False(t, hasher.Verify(hash, "secret2"))
	assert.False(t, hasher.Verify(hash, ""))

	t.Run("SaltedHashesDiffer", func(t *testing.T) {
		other, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.NotEqual(t, hash, other)
		assert.True(t, hasher.Verify(other, "secret1"))
	})

	t.Run("MalformedStoredHash", func(t *testing.T) {
		assert.False(t, hasher.Verify("not-a-bcrypt-hash", "secret1"))
		assert.False(t, hasher.Verify("", "secret1"))
	})

	t.Run("TestTooLongPassword", func(t *testing.T) {
		tooLongPass := make([]byte, 73)
		_, _ = rand.Read(tooLongPass)

		_, err := hasher.Hash(string(tooLongPass))
		assert.Error(t, err)
	})
}

func TestNewBcryptPasswordHasher_DefaultCost(t *testing.T) {
	assert.Equal(t, auth.DefaultCost, auth.NewBcryptPasswordHasher(0).Cost)
	assert.Equal(t, auth.DefaultCost, auth.NewBcryptPasswordHasher(99).Cost)
	assert.Equal(t, 12, auth.NewBcryptPasswordHasher(12).Cost)

	hash, err := auth.NewBcryptPasswordHasher(0).Hash("secret1")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultCost, cost)
}
