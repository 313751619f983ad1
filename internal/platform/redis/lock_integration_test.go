//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	client, err := New(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	first, err := NewLocker(client, "docwatch:tick", time.Minute)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	second, err := NewLocker(client, "docwatch:tick", time.Minute)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}

	release, ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	if _, ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire = %v, %v, want held", ok, err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	release, ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release = %v, %v", ok, err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestLockerReleaseKeepsForeignLease(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	short, err := NewLocker(client, "docwatch:tick", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	staleRelease, ok, err := short.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}
	time.Sleep(150 * time.Millisecond)

	long, err := NewLocker(client, "docwatch:tick", time.Minute)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	if _, ok, err := long.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after expiry = %v, %v", ok, err)
	}
	if err := staleRelease(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, ok, err := short.Acquire(ctx); err != nil || ok {
		t.Fatalf("stale release dropped the new lease: ok=%v err=%v", ok, err)
	}
}

func TestLockerRenewsWhileHeld(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	const ttl = 300 * time.Millisecond
	first, err := NewLocker(client, "docwatch:tick", ttl)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	second, err := NewLocker(client, "docwatch:tick", ttl)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}

	release, ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}
	// A tick several times longer than the lease.
	for i := 0; i < 5; i++ {
		time.Sleep(ttl)
		if _, ok, err := second.Acquire(ctx); err != nil || ok {
			t.Fatalf("acquire after %v = %v, %v, want held", time.Duration(i+1)*ttl, ok, err)
		}
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if n, err := client.Exists(ctx, "docwatch:tick").Result(); err != nil || n != 0 {
		t.Fatalf("exists after release = %d, %v", n, err)
	}
}

func TestLockerStopsRenewingForeignLease(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	const ttl = 300 * time.Millisecond
	locker, err := NewLocker(client, "docwatch:tick", ttl)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	release, ok, err := locker.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}
	defer func() { _ = release(ctx) }()

	if err := client.Set(ctx, "docwatch:tick", "other-replica", ttl).Err(); err != nil {
		t.Fatalf("overwrite lease: %v", err)
	}
	time.Sleep(3 * ttl)
	if n, err := client.Exists(ctx, "docwatch:tick").Result(); err != nil || n != 0 {
		t.Fatalf("foreign lease still alive: exists = %d, %v", n, err)
	}
}
