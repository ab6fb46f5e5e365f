package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/media-query-api/internal/storage"
)

func newCache() (*Cache, func(time.Duration)) {
	now := time.Now()
	mem := storage.NewMemoryStorage().WithClock(func() time.Time { return now })
	return New(mem, "media:"), func(d time.Duration) { now = now.Add(d) }
}

func TestPutThenGet(t *testing.T) {
	ctx := context.Background()
	c, advance := newCache()

	if err := c.Put(ctx, "21", `{"id":21}`, 3600); err != nil {
		t.Fatalf("Put: %v", err)
	}

	val, ttl, err := c.Get(ctx, "21")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != `{"id":21}` {
		t.Errorf("value = %q", val)
	}
	if ttl > 3600 || ttl <= 0 {
		t.Errorf("ttl = %d, want (0, 3600]", ttl)
	}

	advance(10 * time.Second)
	ttl, err = c.TTL(ctx, "21")
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl != 3590 {
		t.Errorf("ttl after 10s = %d, want 3590", ttl)
	}

	advance(3590 * time.Second)
	if _, _, err := c.Get(ctx, "21"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after expiry err = %v, want ErrMiss", err)
	}
	if _, err := c.TTL(ctx, "21"); !errors.Is(err, ErrMiss) {
		t.Errorf("TTL after expiry err = %v, want ErrMiss", err)
	}
}

func TestReadsDoNotRenewTTL(t *testing.T) {
	ctx := context.Background()
	c, advance := newCache()

	if err := c.Put(ctx, "1", "v", 100); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		advance(10 * time.Second)
		if _, _, err := c.Get(ctx, "1"); err != nil {
			t.Fatal(err)
		}
	}
	ttl, err := c.TTL(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if ttl != 50 {
		t.Errorf("ttl = %d, want 50", ttl)
	}
}

func TestPutZeroTTLIsImmediatelyExpired(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache()

	if err := c.Put(ctx, "1", "v", 0); err != nil {
		t.Fatalf("Put with zero ttl: %v", err)
	}
	if _, _, err := c.Get(ctx, "1"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss", err)
	}
}

func TestPutRejectsNegativeTTL(t *testing.T) {
	c, _ := newCache()
	if err := c.Put(context.Background(), "1", "v", -5); err == nil {
		t.Error("expected error for negative ttl")
	}
}

func TestJSONRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache()

	type record struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := c.PutJSON(ctx, "5", record{ID: 5, Name: "Bleach"}, 60); err != nil {
		t.Fatal(err)
	}

	var got record
	ttl, err := c.GetJSON(ctx, "5", &got)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Bleach" || ttl != 60 {
		t.Errorf("got %+v ttl %d", got, ttl)
	}

	if err := c.Delete(ctx, "5"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetJSON(ctx, "5", &got); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss", err)
	}
}
