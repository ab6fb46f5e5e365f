package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/media-query-api/internal/config"
)

// ErrNotFound is returned when a key or set member is absent or expired.
var ErrNotFound = errors.New("storage: not found")

// NoExpiry is reported by TTL lookups for keys stored without an expiry.
const NoExpiry time.Duration = -1

// KV stores string values with a per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	// GetWithTTL reads a value and its remaining lifetime as one observation.
	GetWithTTL(ctx context.Context, key string) (string, time.Duration, error)
	// SetWithTTL stores value under key; a ttl <= 0 leaves the key absent.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// Set is a durable set of strings.
type Set interface {
	RandomMember(ctx context.Context, key string) (string, error)
	// RemoveMember is a no-op for absent members.
	RemoveMember(ctx context.Context, key, member string) error
	AddMembers(ctx context.Context, key string, members ...string) (int64, error)
	Cardinality(ctx context.Context, key string) (int64, error)
}

type Storage interface {
	KV
	Set
	Close() error
}

func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "redis":
		return NewRedisStorage(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "sqlite":
		return NewSQLiteStorage(cfg.SQLitePath)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
