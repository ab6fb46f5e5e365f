// Package cache stores serialized records with an explicit, caller-chosen
// lifetime. Reads never extend a record's lifetime.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/media-query-api/internal/storage"
)

// ErrMiss is returned when a key is absent or has expired.
var ErrMiss = errors.New("cache miss")

// NoExpiry is the remaining TTL reported for records written without one.
const NoExpiry int64 = -1

type Cache struct {
	kv     storage.KV
	prefix string
}

func New(kv storage.KV, prefix string) *Cache {
	return &Cache{kv: kv, prefix: prefix}
}

// Get returns the stored value and its remaining lifetime in whole seconds.
// Value and TTL come from a single observation, so a record expiring
// mid-read is reported as a miss rather than a stale hit.
func (c *Cache) Get(ctx context.Context, key string) (string, int64, error) {
	val, ttl, err := c.kv.GetWithTTL(ctx, c.prefix+key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", 0, ErrMiss
		}
		return "", 0, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, seconds(ttl), nil
}

// Put writes value with a lifetime of ttlSeconds. Zero stores nothing: the
// record is expired on arrival.
func (c *Cache) Put(ctx context.Context, key, value string, ttlSeconds int64) error {
	if ttlSeconds < 0 {
		return fmt.Errorf("cache put %s: negative ttl %d", key, ttlSeconds)
	}
	if err := c.kv.SetWithTTL(ctx, c.prefix+key, value, time.Duration(ttlSeconds)*time.Second); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key in whole seconds.
func (c *Cache) TTL(ctx context.Context, key string) (int64, error) {
	ttl, err := c.kv.TTL(ctx, c.prefix+key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrMiss
		}
		return 0, fmt.Errorf("cache ttl %s: %w", key, err)
	}
	return seconds(ttl), nil
}

// Delete drops key. Deleting an absent key succeeds.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, c.prefix+key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes a cached record into v and returns its remaining TTL.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) (int64, error) {
	val, ttl, err := c.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal([]byte(val), v); err != nil {
		return 0, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return ttl, nil
}

// PutJSON encodes v and stores it for ttlSeconds.
func (c *Cache) PutJSON(ctx context.Context, key string, v interface{}, ttlSeconds int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Put(ctx, key, string(data), ttlSeconds)
}

// seconds rounds a positive remaining lifetime up, so a live record never
// reports zero.
func seconds(ttl time.Duration) int64 {
	if ttl == storage.NoExpiry {
		return NoExpiry
	}
	return int64(math.Ceil(ttl.Seconds()))
}
