package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShadowUser(t *testing.T) {
	u, err := NewShadowUser("Buyer@Example.com", "")
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.com", u.Email)
	assert.Equal(t, "Buyer", u.Name)
	assert.Equal(t, ROLE_USER, u.Role)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.NotEmpty(t, u.Password)
	require.NoError(t, u.Validate())

	// The random password must not be guessable as the empty string.
	assert.False(t, CheckPasswordHash("", u.Password))
}

func TestNewShadowUserKeepsProvidedName(t *testing.T) {
	u, err := NewShadowUser("buyer@example.com", "Morten Holst")
	require.NoError(t, err)
	assert.Equal(t, "Morten Holst", u.Name)
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
