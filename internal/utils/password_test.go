package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "s3cret-password", hash)

	assert.True(t, CheckPassword("s3cret-password", hash))
	assert.False(t, CheckPassword("wrong-password", hash))
	assert.False(t, CheckPassword("s3cret-password", "not-a-hash"))
}

func TestPasswordHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same-password")
	require.NoError(t, err)
	h2, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, CheckPassword("same-password", h1))
	assert.True(t, CheckPassword("same-password", h2))
}
