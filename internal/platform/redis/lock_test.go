package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewWithoutURLIsDisabled(t *testing.T) {
	client, err := New(context.Background(), Config{URL: "  "})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health nil client: %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(context.Background(), Config{URL: "://nope"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewLockerValidation(t *testing.T) {
	// Construction never dials.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	tests := []struct {
		name   string
		client redis.Cmdable
		key    string
		ttl    time.Duration
		want   error
	}{
		{name: "nil client", key: "k", ttl: time.Second},
		{name: "empty key", client: client, key: " ", ttl: time.Second, want: ErrLockKeyRequired},
		{name: "zero ttl", client: client, key: "k"},
		{name: "sub-millisecond ttl", client: client, key: "k", ttl: time.Microsecond},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLocker(tc.client, tc.key, tc.ttl)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := NewLocker(client, "docwatch:tick", time.Minute); err != nil {
		t.Fatalf("valid locker: %v", err)
	}
}

func TestRenewInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: 10 * time.Minute, want: 200 * time.Second},
		{ttl: 300 * time.Millisecond, want: 100 * time.Millisecond},
		{ttl: 3 * time.Millisecond, want: minRenewInterval},
	}
	for _, tc := range tests {
		if got := renewInterval(tc.ttl); got != tc.want {
			t.Fatalf("renewInterval(%v) = %v, want %v", tc.ttl, got, tc.want)
		}
	}
}
