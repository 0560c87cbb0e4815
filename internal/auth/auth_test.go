package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/internal/auth"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, auth.CheckPassword(hash, "hunter2"))
	assert.ErrorIs(t, auth.CheckPassword(hash, "wrong"), auth.ErrBadCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue(7, "alice", true)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret-a", time.Hour)
	other := auth.NewTokenIssuer("secret-b", time.Hour)

	token, err := issuer.Issue(7, "alice", false)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, auth.ErrBadCredentials)
}

func TestTokenExpired(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Millisecond)
	token, err := issuer.Issue(7, "alice", false)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrBadCredentials)
}

func TestVerifyGarbage(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	_, err := issuer.Verify("not-a-token")
	assert.ErrorIs(t, err, auth.ErrBadCredentials)
}
