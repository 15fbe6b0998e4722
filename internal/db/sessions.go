package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

func (d *DB) CreateSession(ctx context.Context, id string, now time.Time) error {
	ts := formatTime(now)
	_, err := d.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, last_seen) VALUES (?, ?, ?)`, id, ts, ts)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (d *DB) SessionExists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := d.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *DB) TouchSession(ctx context.Context, id string, now time.Time) error {
	_, err := d.ExecContext(ctx, `UPDATE sessions SET last_seen = ? WHERE id = ?`, formatTime(now), id)
	return err
}

// DeleteSessionsIdleSince removes sessions not seen since cutoff together
// with their cached values. It returns the number of sessions removed.
func (d *DB) DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.ExecContext(ctx, `DELETE FROM sessions WHERE last_seen < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SessionStore is the key/value view of one session's cached values. It
// implements searchcache.Storage.
type SessionStore struct {
	db        *DB
	sessionID string
}

// SessionStorage returns the key/value store of session id.
func (d *DB) SessionStorage(id string) *SessionStore {
	return &SessionStore{db: d, sessionID: id}
}

func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM session_values WHERE session_id = ? AND key = ?`, s.sessionID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_values (session_id, key, value, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.sessionID, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys in a single statement.
func (s *SessionStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM session_values WHERE session_id = ? AND key IN (?)`, s.sessionID, keys)
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}
