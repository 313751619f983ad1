package admintoken

import (
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/docwatch/internal/platform/adminauth"
)

var testKeyHex = hex.EncodeToString(bytes.Repeat([]byte{0x11}, adminauth.MinKeyBytes))

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("admintoken", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, func(key string) (string, bool) {
		if key == KeyEnv {
			return "from-env", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Bytes != adminauth.MinKeyBytes || cfg.Key != "from-env" || cfg.Subject != "admin" || cfg.TTL != 24*time.Hour || cfg.NewKey {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseConfigOverride(t *testing.T) {
	fs := flag.NewFlagSet("admintoken", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-new-key", "-bytes", "64", "-key", "abc", "-subject", "ops", "-ttl", "1h"}, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if !cfg.NewKey || cfg.Bytes != 64 || cfg.Key != "abc" || cfg.Subject != "ops" || cfg.TTL != time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestRunWritesKey(t *testing.T) {
	buf := &bytes.Buffer{}
	reader := bytes.NewReader(bytes.Repeat([]byte{0xab}, 32))
	if err := Run(Config{NewKey: true, Bytes: 32}, buf, reader, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := KeyEnv + "=" + strings.Repeat("ab", 32)
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunRejectsShortKeySize(t *testing.T) {
	if err := Run(Config{NewKey: true, Bytes: 8}, &bytes.Buffer{}, nil, nil); !errors.Is(err, adminauth.ErrKeyTooShort) {
		t.Fatalf("err = %v, want key too short", err)
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{NewKey: true, Bytes: 32}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("read error") }

func TestRunReaderError(t *testing.T) {
	if err := Run(Config{NewKey: true, Bytes: 32}, &bytes.Buffer{}, errReader{}, nil); err == nil {
		t.Fatal("expected read error")
	}
}

func TestRunIssuesVerifiableToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	buf := &bytes.Buffer{}
	cfg := Config{Key: testKeyHex, Subject: "ops", Issuer: adminauth.DefaultIssuer, TTL: time.Hour}
	if err := Run(cfg, buf, nil, clock); err != nil {
		t.Fatalf("run: %v", err)
	}

	key, err := adminauth.ParseKey(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	auth, err := adminauth.New(key, "", adminauth.WithClock(clock))
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	claims, err := auth.Verify(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestRunRequiresKeyForToken(t *testing.T) {
	if err := Run(Config{Subject: "ops", TTL: time.Hour}, &bytes.Buffer{}, nil, nil); err == nil {
		t.Fatal("expected missing key error")
	}
}
