package tracking

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCodeStore_RateLimitWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, err := store.Allow(ctx, "client:bob@example.com:SO-000001", 3, time.Hour)
		if err != nil || !allowed {
			t.Fatalf("request %d: expected allowed, got allowed=%v err=%v", i+1, allowed, err)
		}
	}

	allowed, _ := store.Allow(ctx, "client:bob@example.com:SO-000001", 3, time.Hour)
	if allowed {
		t.Error("expected the fourth request to be denied")
	}

	// The window rolls over and the budget comes back.
	now = now.Add(61 * time.Minute)
	allowed, _ = store.Allow(ctx, "client:bob@example.com:SO-000001", 3, time.Hour)
	if !allowed {
		t.Error("expected a fresh window after expiry")
	}
}

// The limit must hold over every rolling hour, not just fixed windows anchored
// at the first request: requests straddling a window reset may not double the
// budget.
func TestMemoryCodeStore_RateLimitRollingWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	key := "client:bob@example.com:SO-000001"
	start := time.Now()
	now := start
	store.now = func() time.Time { return now }

	granted := 0
	grant := func(expect bool) {
		t.Helper()
		allowed, err := store.Allow(ctx, key, 3, time.Hour)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if allowed != expect {
			t.Fatalf("at +%s: expected allowed=%v, got %v", now.Sub(start), expect, allowed)
		}
		if allowed {
			granted++
		}
	}

	grant(true)

	now = start.Add(59 * time.Minute)
	grant(true)
	grant(true)
	grant(false)

	// The first request is exactly an hour old now; one slot frees up, and
	// the hour ending here saw exactly three grants.
	now = start.Add(60 * time.Minute)
	grant(true)
	grant(false)

	if granted != 4 {
		t.Fatalf("expected 4 grants overall, got %d", granted)
	}
}

func TestMemoryCodeStore_EvictsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	_ = store.Put(ctx, "SO-000001:bob@example.com", "111111", 15*time.Minute)
	_, _ = store.Allow(ctx, "client:bob@example.com:SO-000001", 3, time.Hour)

	now = now.Add(2 * time.Hour)
	_ = store.Put(ctx, "SO-000002:eve@example.com", "222222", 15*time.Minute)

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.codes["SO-000001:bob@example.com"]; ok {
		t.Error("expired code must be evicted, not retained until verified")
	}
	if _, ok := store.requests["client:bob@example.com:SO-000001"]; ok {
		t.Error("rolled-out request entries must be evicted")
	}
}

func TestMemoryCodeStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	_ = store.Put(ctx, "SO-000001:bob@example.com", "111111", time.Minute)
	_ = store.Put(ctx, "SO-000001:bob@example.com", "222222", time.Minute)

	if ok, _ := store.VerifyAndDelete(ctx, "SO-000001:bob@example.com", "111111"); ok {
		t.Error("replaced code must not verify")
	}
}
