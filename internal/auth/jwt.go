package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNotAdmin     = errors.New("token does not carry the admin role")
)

// AdminClaims are the claims of an admin access token issued by the
// platform's auth service.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 admin tokens signed with a shared secret
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier returns nil when no secret is configured, which disables
// token authentication.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Validate parses tokenString and checks signature, expiry, issuer and role.
func (v *TokenVerifier) Validate(tokenString string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != "admin" {
		return nil, ErrNotAdmin
	}
	return claims, nil
}
