package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/shopframes/internal/shared"
)

// SQLiteStore is a Store backed by the service's SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates the session tables on db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	query := `
	CREATE TABLE IF NOT EXISTS session_entries (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_entries_expires ON session_entries(expires_at);

	CREATE TABLE IF NOT EXISTS session_markers (
		key TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_markers_expires ON session_markers(expires_at);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return s, nil
}

// Get implements Store. Expiry is compared in milliseconds.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM session_entries WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query session entry: %w", err)
	}
	return data, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	query := `
	INSERT INTO session_entries (key, data, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`

	expiresAt := s.now().Add(ttl).UnixMilli()
	return shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "session put", func() error {
		if _, err := s.db.ExecContext(ctx, query, key, data, expiresAt); err != nil {
			return fmt.Errorf("upsert session entry: %w", err)
		}
		return nil
	})
}

// MarkOnce implements Store. An expired marker is replaced as if absent.
func (s *SQLiteStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	query := `
	INSERT INTO session_markers (key, expires_at) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at
	WHERE session_markers.expires_at <= ?`

	now := s.now()
	var first bool
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "session mark", func() error {
		res, err := s.db.ExecContext(ctx, query, key, now.Add(ttl).UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert session marker: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("session marker rows affected: %w", err)
		}
		first = n > 0
		return nil
	})
	return first, err
}

// DeleteExpired removes expired entries and markers, returning how many rows were deleted.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()
	var total int64
	for _, table := range []string{"session_entries", "session_markers"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, now)
		if err != nil {
			return total, fmt.Errorf("delete expired %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}
