package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "s3cret", Issuer: "homeserve", ExpirationMinutes: 15}

func TestIssueAndVerify(t *testing.T) {
	userID := uuid.New()
	raw, err := Issue(testCfg, time.Now(), userID, enums.UserRoleFinance)
	require.NoError(t, err)

	claims, err := Verify(testCfg, raw)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, enums.UserRoleFinance, claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.CanSettle())
}

func TestVerifyRejects(t *testing.T) {
	userID := uuid.New()
	valid, err := Issue(testCfg, time.Now(), userID, enums.UserRoleCustomer)
	require.NoError(t, err)
	expired, err := Issue(testCfg, time.Now().Add(-time.Hour), userID, enums.UserRoleCustomer)
	require.NoError(t, err)

	// a token whose role the service does not know, signed with the right key
	unknownRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: userID,
		Role:   "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"
	otherSecret := testCfg
	otherSecret.Secret = "different"

	cases := map[string]struct {
		cfg config.JWTConfig
		raw string
	}{
		"expired":       {testCfg, expired},
		"issuer":        {otherIssuer, valid},
		"signature":     {otherSecret, valid},
		"tampered":      {testCfg, valid[:strings.LastIndex(valid, ".")] + ".AAAA"},
		"garbage":       {testCfg, "not-a-jwt"},
		"unknown role":  {testCfg, unknownRole},
		"no secret set": {config.JWTConfig{Issuer: "homeserve"}, valid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Verify(tc.cfg, tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestIssueValidates(t *testing.T) {
	_, err := Issue(testCfg, time.Now(), uuid.Nil, enums.UserRoleAdmin)
	assert.True(t, errors.Is(err, ErrMissingUser))

	_, err = Issue(testCfg, time.Now(), uuid.New(), "root")
	assert.Error(t, err)

	_, err = Issue(config.JWTConfig{Secret: "x"}, time.Now(), uuid.New(), enums.UserRoleAdmin)
	assert.Error(t, err, "expiration must be configured")

	assert.False(t, (&Claims{Role: enums.UserRoleCustomer}).CanSettle())
	assert.False(t, (*Claims)(nil).CanSettle())
}
