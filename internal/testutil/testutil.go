package testutil

// Package testutil provides shared helpers for package tests: a Redis client
// (real or in-memory) and a fake identity provider.

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Cleanup(func())
	Skip(args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
}

// SetupTestRedis returns a Redis client for tests.
// When TEST_REDIS_ADDR is set and reachable it is used (DB from TEST_REDIS_DB, default 1);
// otherwise an in-memory miniredis instance backs the client.
// The client is closed on test cleanup.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		if client, ok := dialTestRedis(t, addr); ok {
			return client
		}
		if requireRedis() {
			t.Fatalf("Redis not available at %s", addr)
		}
		t.Logf("Redis not available at %s, falling back to miniredis", addr)
	}

	_, client := SetupMiniRedis(t)
	return client
}

// SetupMiniRedis starts an in-memory Redis and returns it with a connected client.
// The server's clock can be advanced with FastForward to exercise TTLs.
func SetupMiniRedis(t TestingTB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client: %v", cerr)
		}
		mr.Close()
	})
	return mr, client
}

func dialTestRedis(t TestingTB, addr string) (*redis.Client, bool) {
	db := 1
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			db = i
		}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client after ping error: %v", cerr)
		}
		return nil, false
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Logf("warning: failed to flush redis test DB %d: %v", db, err)
	}
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client: %v", cerr)
		}
	})
	return client, true
}

func requireRedis() bool {
	v, err := strconv.ParseBool(os.Getenv("TEST_REQUIRE_REDIS"))
	return err == nil && v
}
