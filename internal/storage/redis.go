package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(addr, password string, db int) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// GetWithTTL runs GET and TTL inside MULTI so an expiry cannot land between them.
func (r *RedisStorage) GetWithTTL(ctx context.Context, key string) (string, time.Duration, error) {
	var getCmd *redis.StringCmd
	var ttlCmd *redis.DurationCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, key)
		ttlCmd = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, fmt.Errorf("redis get with ttl: %w", err)
	}

	val, err := getCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("redis get: %w", err)
	}

	ttl, err := redisTTL(ttlCmd)
	if err != nil {
		return "", 0, err
	}
	return val, ttl, nil
}

func (r *RedisStorage) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	return redisTTL(r.client.TTL(ctx, key))
}

func redisTTL(cmd *redis.DurationCmd) (time.Duration, error) {
	ttl, err := cmd.Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	switch ttl {
	case -2:
		return 0, ErrNotFound
	case -1:
		return NoExpiry, nil
	}
	return ttl, nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStorage) RandomMember(ctx context.Context, key string) (string, error) {
	member, err := r.client.SRandMember(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis srandmember: %w", err)
	}
	return member, nil
}

func (r *RedisStorage) RemoveMember(ctx context.Context, key, member string) error {
	if err := r.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

func (r *RedisStorage) AddMembers(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	added, err := r.client.SAdd(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis sadd: %w", err)
	}
	return added, nil
}

func (r *RedisStorage) Cardinality(ctx context.Context, key string) (int64, error) {
	n, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return n, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
