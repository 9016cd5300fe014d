package lock_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/dlt-reports/internal/lock"
)

// These tests need a live Redis and are skipped unless REDIS_URL is set:
//
//	REDIS_URL=redis://localhost:6379/0 go test ./internal/lock/...
func testLocker(t *testing.T) *lock.RedisLocker {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	client, err := lock.Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	l := lock.NewRedisLocker(client)
	if err := l.Ping(context.Background()); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return l
}

func TestRedisLocker_SecondAcquireIsHeld(t *testing.T) {
	l := testLocker(t)
	ctx := context.Background()
	key := "dlt-reports:test:" + uuid.NewString()

	release, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := l.Acquire(ctx, key, time.Minute); !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("second Acquire err = %v, want ErrHeld", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	release2, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = release2(ctx)
}

func TestRedisLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	l := testLocker(t)
	ctx := context.Background()
	key := "dlt-reports:test:" + uuid.NewString()

	staleRelease, err := l.Acquire(ctx, key, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	release, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	defer func() { _ = release(ctx) }()

	// The first holder's token no longer matches, so this must be a no-op.
	if err := staleRelease(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := l.Acquire(ctx, key, time.Minute); !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld: stale release must not free the lock", err)
	}
}

func TestConnect_BadURL(t *testing.T) {
	if _, err := lock.Connect(context.Background(), "redis://localhost:6379/notadb"); err == nil {
		t.Fatal("expected a parse error")
	}
}
