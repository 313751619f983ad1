// Package admintoken mints admin API credentials: a fresh signing key, or a
// bearer token signed with an existing key.
package admintoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/docwatch/internal/platform/adminauth"
)

// KeyEnv is the variable the runtime reads the signing key from.
const KeyEnv = "DOCWATCH_ADMIN_JWT_KEY"

// Config holds configuration for key or token generation.
type Config struct {
	NewKey  bool
	Bytes   int
	Key     string
	Subject string
	Issuer  string
	TTL     time.Duration
}

// ParseConfig parses flags into a Config. lookupEnv supplies the default key.
func ParseConfig(fs *flag.FlagSet, args []string, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Config{
		Bytes:   adminauth.MinKeyBytes,
		Subject: "admin",
		Issuer:  adminauth.DefaultIssuer,
		TTL:     24 * time.Hour,
	}
	if lookupEnv != nil {
		if key, ok := lookupEnv(KeyEnv); ok {
			cfg.Key = key
		}
	}
	fs.BoolVar(&cfg.NewKey, "new-key", cfg.NewKey, "generate a new signing key instead of a token")
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "signing key size in bytes when -new-key is set")
	fs.StringVar(&cfg.Key, "key", cfg.Key, "hex signing key (default: $"+KeyEnv+")")
	fs.StringVar(&cfg.Subject, "subject", cfg.Subject, "token subject")
	fs.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "token issuer")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes either a KEY=value line or a signed token to out.
func Run(cfg Config, out io.Writer, reader io.Reader, now func() time.Time) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.NewKey {
		return writeKey(cfg.Bytes, out, reader)
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return fmt.Errorf("signing key is required: pass -key, set %s or use -new-key", KeyEnv)
	}
	key, err := adminauth.ParseKey(cfg.Key)
	if err != nil {
		return err
	}
	auth, err := adminauth.New(key, cfg.Issuer, adminauth.WithClock(now))
	if err != nil {
		return err
	}
	token, err := auth.Issue(cfg.Subject, cfg.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func writeKey(size int, out io.Writer, reader io.Reader) error {
	if size < adminauth.MinKeyBytes {
		return adminauth.ErrKeyTooShort
	}
	if reader == nil {
		reader = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	_, err := fmt.Fprintf(out, "%s=%s\n", KeyEnv, hex.EncodeToString(buf))
	return err
}
