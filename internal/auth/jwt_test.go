package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// issueToken signs an admin token the way the platform's auth service does
func issueToken(v *TokenVerifier, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret", "lms")
	token, err := issueToken(v, "ops@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenVerifierExpired(t *testing.T) {
	v := NewTokenVerifier("secret", "lms")
	token, err := issueToken(v, "ops@example.com", -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenVerifierRejectsWrongIssuer(t *testing.T) {
	token, err := issueToken(NewTokenVerifier("secret", "someone-else"), "ops@example.com", time.Hour)
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret", "lms").Validate(token)
	assert.Error(t, err)
}

func TestTokenVerifierRequiresAdminRole(t *testing.T) {
	claims := AdminClaims{
		Role: "student",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "lms",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret", "lms").Validate(token)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestTokenVerifierRejectsNoneAlgorithm(t *testing.T) {
	claims := AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: "lms"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret", "lms").Validate(token)
	assert.Error(t, err)
}

func TestNewTokenVerifierDisabled(t *testing.T) {
	assert.Nil(t, NewTokenVerifier("", "lms"))
}
