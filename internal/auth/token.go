package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail parsing, signature
// verification, or expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenClaims are the facts a bearer credential carries. The credential
// authenticates the user; it never authorizes license state on its own.
type TokenClaims struct {
	UserID     uuid.UUID
	PharmacyID uuid.UUID
	Role       string
	ExpiresAt  time.Time
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration

	// now is injectable for tests.
	now func() time.Time
}

// NewTokenIssuer creates an issuer with the given signing secret and
// fixed token lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the issuer clock. Intended for tests.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// Issue signs a bearer token for the given user.
func (i *TokenIssuer) Issue(userID, pharmacyID uuid.UUID, role string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)

	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if pharmacyID != uuid.Nil {
		claims["pharmacy_id"] = pharmacyID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a bearer token, returning its claims.
func (i *TokenIssuer) Verify(token string) (*TokenClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	out := &TokenClaims{}
	sub, ok := mapClaims["sub"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	if out.UserID, err = uuid.Parse(sub); err != nil {
		return nil, ErrInvalidToken
	}
	if role, ok := mapClaims["role"].(string); ok {
		out.Role = role
	}
	if pid, ok := mapClaims["pharmacy_id"].(string); ok {
		if out.PharmacyID, err = uuid.Parse(pid); err != nil {
			return nil, ErrInvalidToken
		}
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}
