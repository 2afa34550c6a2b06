package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
)

func TestService_RoundTrip(t *testing.T) {
	s := NewService("test-secret-key", 15*time.Minute)
	actor := models.Actor{Username: "tech-1", Role: models.RoleDevice, DeviceID: "tablet-1"}

	token, expiresIn, err := s.GenerateAccessToken("u-1", actor)
	require.NoError(t, err)
	assert.Equal(t, int64(900), expiresIn)

	claims, err := s.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, actor, claims.Actor())
	assert.Equal(t, "fieldsync", claims.Issuer)
}

func TestService_GenerateRejectsBadActors(t *testing.T) {
	s := NewService("test-secret-key", time.Minute)

	tests := []struct {
		name  string
		actor models.Actor
	}{
		{name: "no username", actor: models.Actor{Role: models.RoleAdmin}},
		{name: "short username", actor: models.Actor{Username: "al", Role: models.RoleAdmin}},
		{name: "username with spaces", actor: models.Actor{Username: "tech one", Role: models.RoleAdmin}},
		{name: "unknown role", actor: models.Actor{Username: "tech-1", Role: "root"}},
		{name: "device without id", actor: models.Actor{Username: "tech-1", Role: models.RoleDevice}},
		{name: "malformed device id", actor: models.Actor{Username: "tech-1", Role: models.RoleDevice, DeviceID: "tablet 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.GenerateAccessToken("u-1", tt.actor)
			assert.ErrorIs(t, err, ErrInvalidClaims)
		})
	}
}

func TestService_ValidateFailures(t *testing.T) {
	s := NewService("test-secret-key", time.Minute)
	admin := models.Actor{Username: "admin", Role: models.RoleAdmin}
	valid, _, err := s.GenerateAccessToken("u-1", admin)
	require.NoError(t, err)

	other := NewService("another-secret", time.Minute)
	foreign, _, err := other.GenerateAccessToken("u-1", admin)
	require.NoError(t, err)

	past := NewService("test-secret-key", time.Minute)
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := past.GenerateAccessToken("u-1", admin)
	require.NoError(t, err)

	forged, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		Username:         "ghost",
		Role:             models.RoleAdmin,
		RegisteredClaims: gojwt.RegisteredClaims{Issuer: "someone-else"},
	}).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	noRole, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		Username:         "ghost",
		RegisteredClaims: gojwt.RegisteredClaims{Issuer: "fieldsync"},
	}).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "malformed", token: "invalid.token.here"},
		{name: "empty", token: ""},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: expired},
		{name: "wrong issuer", token: forged},
		{name: "no role", token: noRole},
		{name: "tampered", token: valid + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ValidateAccessToken(tt.token)
			assert.Error(t, err)
		})
	}
}
