// Package auth verifies the HS256 access tokens the identity service issues
// to marketplace callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

var (
	ErrNoSecret    = errors.New("jwt secret not configured")
	ErrMissingUser = errors.New("token has no user id")
)

// Claims is the token body. Subject mirrors UserID.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the standard time and issuer checks.
func (c *Claims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

// CanSettle reports whether the caller may refund or retry transactions.
func (c *Claims) CanSettle() bool {
	return c != nil && (c.Role == enums.UserRoleAdmin || c.Role == enums.UserRoleFinance)
}

// Issue signs a token for userID. Production tokens come from the identity
// service; this serves local tooling and tests.
func Issue(cfg config.JWTConfig, now time.Time, userID uuid.UUID, role enums.UserRole) (string, error) {
	if cfg.Secret == "" {
		return "", ErrNoSecret
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration must be positive")
	}
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// Verify checks signature, algorithm, issuer and expiry, then the claims
// themselves.
func Verify(cfg config.JWTConfig, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
