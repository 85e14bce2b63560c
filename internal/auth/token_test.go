package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", 24*time.Hour)
	userID, pharmacyID := uuid.New(), uuid.New()

	token, exp, err := issuer.Issue(userID, pharmacyID, "owner")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, pharmacyID, claims.PharmacyID)
	assert.Equal(t, "owner", claims.Role)
}

func TestTokenForAdminWithoutPharmacy(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)

	token, _, err := issuer.Issue(uuid.New(), uuid.Nil, "admin")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, claims.PharmacyID)
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenExpiry(t *testing.T) {
	start := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("unit-test-secret", time.Hour).
		WithClock(func() time.Time { return start })

	token, _, err := issuer.Issue(uuid.New(), uuid.New(), "owner")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.NoError(t, err)

	issuer.WithClock(func() time.Time { return start.Add(2 * time.Hour) })
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)
	other := NewTokenIssuer("a-different-secret", time.Hour)

	token, _, err := other.Issue(uuid.New(), uuid.New(), "owner")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenGarbage(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		_, err := issuer.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-password", 4)
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "s3cret-password"))
	assert.False(t, VerifyPassword(hash, "wrong-password"))
	assert.False(t, VerifyPassword("not-a-hash", "s3cret-password"))
}
