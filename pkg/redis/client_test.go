package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	store := newFakeCommands()
	client := &Client{store: store}

	for i := 1; i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "orders:user-1", 2, time.Second)
		if err != nil {
			t.Fatalf("hit %d: unexpected error: %v", i, err)
		}
		if !allowed || count != int64(i) {
			t.Fatalf("hit %d: allowed=%v count=%d", i, allowed, count)
		}
	}
	if got := store.expiries["mk:rate_limit:orders:user-1"]; got != 1000 {
		t.Fatalf("expected window of 1000ms on first hit, got %d", got)
	}

	allowed, count, err := client.FixedWindowAllow(ctx, "orders:user-1", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed || count != 3 {
		t.Fatalf("expected third hit to be refused, allowed=%v count=%d", allowed, count)
	}
}

func TestSetNXOnlyWritesOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeCommands()}

	key := client.WebhookEventKey("stripe", "evt_1")
	first, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to win, got %v %v", first, err)
	}
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || second {
		t.Fatalf("expected second SetNX to lose, got %v %v", second, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestCompareAndDeleteHonoursOwner(t *testing.T) {
	ctx := context.Background()
	store := newFakeCommands()
	client := &Client{store: store}
	key := client.LockKey("maintenance")
	store.values[key] = "owner-a"

	deleted, err := client.CompareAndDelete(ctx, key, "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not release, got %v %v", deleted, err)
	}
	deleted, err = client.CompareAndDelete(ctx, key, "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner release failed: %v %v", deleted, err)
	}
	if _, ok := store.values[key]; ok {
		t.Fatalf("key should be gone")
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err != errNotConnected {
		t.Fatalf("expected errNotConnected, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("scope", "id"):        "mk:idempotency:scope:id",
		client.RateLimitKey("scope"):                "mk:rate_limit:scope",
		client.WebhookEventKey("stripe", "evt_1"):   "mk:webhook:stripe:evt_1",
		client.LockKey("maintenance"):               "mk:lock:maintenance",
		client.IdempotencyKey("scope", ""):          "mk:idempotency:scope",
		client.IdempotencyKey(" padded ", "  key "): "mk:idempotency:padded:key",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s got %s", want, got)
		}
	}
}

func TestBuildOptions(t *testing.T) {
	if _, err := buildOptions(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := buildOptions(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 {
		t.Fatalf("url db should win, got %d", opts.DB)
	}
	if opts.PoolSize != 7 {
		t.Fatalf("pool size should be filled from config, got %d", opts.PoolSize)
	}

	opts, err = buildOptions(config.RedisConfig{Address: "cache:6379", DB: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 2 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

// fakeCommands interprets the two scripts the client sends through Eval.
type fakeCommands struct {
	values   map[string]string
	counters map[string]int64
	expiries map[string]int64
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		values:   map[string]string{},
		counters: map[string]int64{},
		expiries: map[string]int64{},
	}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.values, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case incrWindowScript:
		f.counters[key]++
		if f.counters[key] == 1 {
			f.expiries[key] = args[0].(int64)
		}
		return redis.NewCmdResult(f.counters[key], nil)
	case releaseOwnedScript:
		if f.values[key] == args[0] {
			delete(f.values, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
