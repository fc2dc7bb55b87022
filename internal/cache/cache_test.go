package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open("", nil)
	if err != nil {
		t.Fatalf("failed to open in-memory cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

type payload struct {
	Name  string `json:"name"`
	Score float64 `json:"score"`
}

func TestRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	want := payload{Name: "healthcare", Score: 0.75}
	if err := c.Set(ctx, "match:g1:s1", want, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var got payload
	found, err := c.Get(ctx, "match:g1:s1", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected hit before TTL expiry")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGetAbsentKey(t *testing.T) {
	c := newTestCache(t)

	var got payload
	found, err := c.Get(context.Background(), "missing", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Error("expected miss for absent key")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "short", payload{Name: "x"}, 50*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var got payload
	if found, _ := c.Get(ctx, "short", &got); !found {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(80 * time.Millisecond)
	if found, _ := c.Get(ctx, "short", &got); found {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestSetResetsTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", payload{Name: "a"}, 40*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := c.Set(ctx, "k", payload{Name: "b"}, 200*time.Millisecond); err != nil {
		t.Fatalf("second set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	var got payload
	found, _ := c.Get(ctx, "k", &got)
	if !found {
		t.Fatal("expected hit: second set should have reset TTL")
	}
	if got.Name != "b" {
		t.Errorf("got %q, want overwrite value %q", got.Name, "b")
	}
}

func TestDeletePatternIsScopedToPrefix(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	keys := []string{
		"recommendations:U1:abc:1:10",
		"recommendations:U1:abc:2:10",
		"recommendations:U1:def:1:10",
		"recommendations:U2:abc:1:10",
	}
	for _, k := range keys {
		if err := c.Set(ctx, k, payload{Name: k}, 0); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}

	deleted, err := c.DeletePattern(ctx, "recommendations:U1:")
	if err != nil {
		t.Fatalf("delete pattern failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted %d entries, want 3", deleted)
	}

	for _, k := range keys[:3] {
		if found, _ := c.Exists(ctx, k); found {
			t.Errorf("key %s should have been invalidated", k)
		}
	}
	if found, _ := c.Exists(ctx, "recommendations:U2:abc:1:10"); !found {
		t.Error("U2 entry should survive U1 invalidation")
	}
}

func TestUndecodableValueIsMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// Write a raw non-JSON value directly, bypassing Set.
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("corrupt"), []byte("not-json{"))
	})
	if err != nil {
		t.Fatalf("raw write failed: %v", err)
	}

	var got payload
	found, err := c.Get(ctx, "corrupt", &got)
	if err != nil {
		t.Fatalf("get should not error on corrupt value: %v", err)
	}
	if found {
		t.Error("corrupt value should be reported as a miss")
	}
}

func TestDeleteAndExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", payload{Name: "v"}, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if found, _ := c.Exists(ctx, "k"); !found {
		t.Fatal("expected key to exist")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if found, _ := c.Exists(ctx, "k"); found {
		t.Error("expected key to be gone after delete")
	}
}
