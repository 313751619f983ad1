// Package adminauth issues and verifies the bearer tokens guarding the admin
// API.
package adminauth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
)

// RoleAdmin is the only role the admin API accepts.
const RoleAdmin = "admin"

// MinKeyBytes is the shortest accepted HS256 signing key.
const MinKeyBytes = 32

// DefaultIssuer names tokens minted by this service.
const DefaultIssuer = "docwatch"

// ErrKeyTooShort indicates a signing key under MinKeyBytes.
var ErrKeyTooShort = fmt.Errorf("admin signing key must be at least %d bytes", MinKeyBytes)

// Claims are the admin token claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 admin tokens.
type Authenticator struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source used for issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// New builds an Authenticator for key.
func New(key []byte, issuer string, opts ...Option) (*Authenticator, error) {
	if len(key) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}
	a := &Authenticator{key: append([]byte(nil), key...), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ParseKey decodes a hex-encoded signing key.
func ParseKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("decode admin signing key: %w", err)
	}
	if len(key) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	return key, nil
}

// Issue mints an admin token for subject valid for ttl.
func (a *Authenticator) Issue(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and checks signature, issuer, expiry and role.
func (a *Authenticator) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token is required")
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "token has expired", err)
		}
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid token", err)
	}
	if !token.Valid {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "invalid token")
	}
	if claims.Role != RoleAdmin {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "admin role required")
	}
	return claims, nil
}
