package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/media-query-api/internal/config"
)

type backend struct {
	name    string
	store   Storage
	advance func(time.Duration)
}

// backends returns every Storage implementation with a way to move its clock.
func backends(t *testing.T) []backend {
	t.Helper()

	mr := miniredis.RunT(t)
	rs, err := NewRedisStorage(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisStorage: %v", err)
	}
	t.Cleanup(func() { rs.Close() })

	sq, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	sqNow := time.Now()
	sq.now = func() time.Time { return sqNow }

	memNow := time.Now()
	mem := NewMemoryStorage().WithClock(func() time.Time { return memNow })

	return []backend{
		{"redis", rs, mr.FastForward},
		{"sqlite", sq, func(d time.Duration) { sqNow = sqNow.Add(d) }},
		{"memory", mem, func(d time.Duration) { memNow = memNow.Add(d) }},
	}
}

func TestKVSetGetExpire(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			if err := b.store.SetWithTTL(ctx, "k", "v", 3600*time.Second); err != nil {
				t.Fatalf("SetWithTTL: %v", err)
			}

			val, ttl, err := b.store.GetWithTTL(ctx, "k")
			if err != nil {
				t.Fatalf("GetWithTTL: %v", err)
			}
			if val != "v" {
				t.Errorf("value = %q, want v", val)
			}
			if ttl > 3600*time.Second || ttl < 3599*time.Second {
				t.Errorf("ttl = %v, want ~3600s", ttl)
			}

			b.advance(10 * time.Second)
			ttl, err = b.store.TTL(ctx, "k")
			if err != nil {
				t.Fatalf("TTL: %v", err)
			}
			if ttl.Round(time.Second) != 3590*time.Second {
				t.Errorf("ttl after 10s = %v, want 3590s", ttl)
			}

			b.advance(3600 * time.Second)
			if _, err := b.store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after expiry err = %v, want ErrNotFound", err)
			}
			if _, err := b.store.TTL(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("TTL after expiry err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestKVZeroTTLLeavesKeyAbsent(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			if err := b.store.SetWithTTL(ctx, "k", "old", time.Hour); err != nil {
				t.Fatal(err)
			}
			if err := b.store.SetWithTTL(ctx, "k", "new", 0); err != nil {
				t.Fatalf("SetWithTTL(0): %v", err)
			}
			if _, _, err := b.store.GetWithTTL(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestKVDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			if _, err := b.store.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get absent err = %v", err)
			}
			if err := b.store.SetWithTTL(ctx, "k", "v", time.Minute); err != nil {
				t.Fatal(err)
			}
			if err := b.store.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := b.store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get deleted err = %v", err)
			}
			if err := b.store.Delete(ctx, "k"); err != nil {
				t.Errorf("second Delete: %v", err)
			}
		})
	}
}

func TestSetMembership(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			if _, err := b.store.RandomMember(ctx, "proxies"); !errors.Is(err, ErrNotFound) {
				t.Errorf("RandomMember on empty set err = %v", err)
			}

			added, err := b.store.AddMembers(ctx, "proxies", "1.1.1.1:80", "2.2.2.2:8080", "1.1.1.1:80")
			if err != nil {
				t.Fatalf("AddMembers: %v", err)
			}
			if added != 2 {
				t.Errorf("added = %d, want 2", added)
			}

			n, err := b.store.Cardinality(ctx, "proxies")
			if err != nil || n != 2 {
				t.Errorf("Cardinality = %d, %v; want 2", n, err)
			}

			seen := map[string]bool{}
			for i := 0; i < 50; i++ {
				m, err := b.store.RandomMember(ctx, "proxies")
				if err != nil {
					t.Fatalf("RandomMember: %v", err)
				}
				seen[m] = true
			}
			for m := range seen {
				if m != "1.1.1.1:80" && m != "2.2.2.2:8080" {
					t.Errorf("unexpected member %q", m)
				}
			}

			if err := b.store.RemoveMember(ctx, "proxies", "9.9.9.9:1"); err != nil {
				t.Errorf("RemoveMember absent: %v", err)
			}
			if err := b.store.RemoveMember(ctx, "proxies", "1.1.1.1:80"); err != nil {
				t.Fatalf("RemoveMember: %v", err)
			}
			for i := 0; i < 20; i++ {
				m, err := b.store.RandomMember(ctx, "proxies")
				if err != nil {
					t.Fatal(err)
				}
				if m != "2.2.2.2:8080" {
					t.Fatalf("removed member %q still drawn", m)
				}
			}
		})
	}
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
	if _, err := NewStorage(config.StorageConfig{Type: "file"}); err == nil {
		t.Error("expected error for unknown storage type")
	}
	s, err := NewStorage(config.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory storage: %v", err)
	}
	s.Close()
}
