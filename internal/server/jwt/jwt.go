// Package jwt issues and validates the bearer tokens that carry an Actor.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/validation"
)

const issuer = "fieldsync"

// ErrInvalidClaims is returned for a well-signed token whose claims do not
// describe a usable actor.
var ErrInvalidClaims = errors.New("invalid token claims")

// Claims is the token payload.
type Claims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	DeviceID string      `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the engine's request identity.
func (c *Claims) Actor() models.Actor {
	return models.Actor{Username: c.Username, Role: c.Role, DeviceID: c.DeviceID}
}

// Service provides token generation and validation
type Service struct {
	now    func() time.Time
	secret []byte
	ttl    time.Duration
}

// NewService creates a service signing with HS256.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateAccessToken signs a token for actor. It returns the token and its
// lifetime in seconds.
func (s *Service) GenerateAccessToken(userID string, actor models.Actor) (string, int64, error) {
	if !actor.Role.Valid() {
		return "", 0, fmt.Errorf("%w: role %q", ErrInvalidClaims, actor.Role)
	}
	if err := validation.ValidateUsername(actor.Username); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	if actor.Role == models.RoleDevice && actor.DeviceID == "" {
		return "", 0, fmt.Errorf("%w: device token without device id", ErrInvalidClaims)
	}
	if actor.DeviceID != "" {
		if err := validation.ValidateDeviceID(actor.DeviceID); err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
		}
	}

	now := s.now()
	claims := Claims{
		UserID:   userID,
		Username: actor.Username,
		Role:     actor.Role,
		DeviceID: actor.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, int64(s.ttl.Seconds()), nil
}

// ValidateAccessToken parses token and checks signature, expiry, issuer and
// role.
func (s *Service) ValidateAccessToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !claims.Role.Valid() || claims.Username == "" {
		return nil, ErrInvalidClaims
	}
	if claims.Role == models.RoleDevice && claims.DeviceID == "" {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}
