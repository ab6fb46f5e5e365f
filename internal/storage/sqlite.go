package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage keeps expiring values and string sets in a single sqlite file.
// Expired rows are treated as absent and purged lazily on read.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS set_members (
		set_key TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (set_key, member)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, error) {
	val, _, err := s.GetWithTTL(ctx, key)
	return val, err
}

func (s *SQLiteStorage) GetWithTTL(ctx context.Context, key string) (string, time.Duration, error) {
	var value string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv WHERE key = ?", key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("query kv: %w", err)
	}

	remaining := time.Unix(0, expiresAt).Sub(s.now())
	if remaining <= 0 {
		s.purge(ctx, key)
		return "", 0, ErrNotFound
	}
	return value, remaining, nil
}

func (s *SQLiteStorage) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	expiresAt := s.now().Add(ttl).UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	_, ttl, err := s.GetWithTTL(ctx, key)
	return ttl, err
}

func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) purge(ctx context.Context, key string) {
	_, _ = s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ? AND expires_at <= ?", key, s.now().UnixNano())
}

func (s *SQLiteStorage) RandomMember(ctx context.Context, key string) (string, error) {
	var member string
	err := s.db.QueryRowContext(ctx,
		"SELECT member FROM set_members WHERE set_key = ? ORDER BY RANDOM() LIMIT 1", key).Scan(&member)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query set member: %w", err)
	}
	return member, nil
}

func (s *SQLiteStorage) RemoveMember(ctx context.Context, key, member string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM set_members WHERE set_key = ? AND member = ?", key, member); err != nil {
		return fmt.Errorf("delete set member: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddMembers(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO set_members (set_key, member) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var added int64
	for _, m := range members {
		res, err := stmt.ExecContext(ctx, key, m)
		if err != nil {
			return 0, fmt.Errorf("insert set member: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		added += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return added, nil
}

func (s *SQLiteStorage) Cardinality(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM set_members WHERE set_key = ?", key).Scan(&n); err != nil {
		return 0, fmt.Errorf("count set members: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
