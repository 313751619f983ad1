package adminauth

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
)

var testKey = bytes.Repeat([]byte{0x42}, MinKeyBytes)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short"), ""); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("err = %v, want key too short", err)
	}
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey(" " + hex.EncodeToString(testKey) + "\n")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if !bytes.Equal(key, testKey) {
		t.Fatal("key mismatch")
	}
	if _, err := ParseKey("zz"); err == nil {
		t.Fatal("expected hex error")
	}
	if _, err := ParseKey("abcd"); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("err = %v, want key too short", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	auth, err := New(testKey, "", WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	token, err := auth.Issue("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ops@example.com" || claims.Role != RoleAdmin || claims.Issuer != DefaultIssuer {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	auth, err := New(testKey, "", WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	valid, err := auth.Issue("ops", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later, err := New(testKey, "", WithClock(fixedClock(now.Add(2*time.Hour))))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	otherKey, err := New(bytes.Repeat([]byte{0x07}, MinKeyBytes), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	otherIssuer, err := New(testKey, "someone-else", WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	userToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	user, err := userToken.SignedString(testKey)
	if err != nil {
		t.Fatalf("sign user token: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer},
	}).SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name  string
		auth  *Authenticator
		token string
	}{
		{name: "empty", auth: auth, token: " "},
		{name: "garbage", auth: auth, token: "not.a.token"},
		{name: "expired", auth: later, token: valid},
		{name: "wrong key", auth: otherKey, token: valid},
		{name: "wrong issuer", auth: otherIssuer, token: valid},
		{name: "wrong role", auth: auth, token: user},
		{name: "no expiry", auth: auth, token: noExpiry},
		{name: "alg none", auth: auth, token: strings.Split(valid, ".")[0] + ".e30."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.auth.Verify(tc.token)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
				t.Fatalf("code = %s, want unauthenticated", apperrors.CodeOf(err))
			}
		})
	}
}

func TestIssueValidation(t *testing.T) {
	auth, err := New(testKey, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := auth.Issue(" ", time.Hour); err == nil {
		t.Fatal("expected subject error")
	}
	if _, err := auth.Issue("ops", 0); err == nil {
		t.Fatal("expected ttl error")
	}
}
