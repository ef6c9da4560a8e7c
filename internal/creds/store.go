// Package creds implements the Credential Store Adapter (spec.md §4.3):
// resolves a user's exchange API key/secret, hiding the persistence
// schema from every caller. Grounded on the teacher's
// internal/engine/simple/store_sqlite.go SQLite idiom (WAL mode,
// context-scoped queries).
package creds

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"botsupervisor/internal/core"
	"botsupervisor/internal/model"
	"botsupervisor/pkg/apperrors"
)

// Store resolves user credentials from a SQLite-backed users table.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the users table at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("creds: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("creds: ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("creds: enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creds: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	api_key TEXT NOT NULL DEFAULT '',
	api_secret TEXT NOT NULL DEFAULT '',
	bot_enabled INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Resolve fetches the user and derives Credentials from it. The returned
// Credentials are valid for the duration of the caller's current work
// unit only; callers must not cache them across tick boundaries
// (spec.md §5, property 5).
func (s *Store) Resolve(ctx context.Context, userID string) (core.Credentials, *model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key, api_secret, bot_enabled, created_at, updated_at
		FROM users WHERE id = ?`, userID)

	var u model.User
	var botEnabled int
	var createdAt, updatedAt int64
	err := row.Scan(&u.ID, &u.APIKey, &u.APISecret, &botEnabled, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return core.Credentials{}, nil, apperrors.ErrNotFound
	}
	if err != nil {
		return core.Credentials{}, nil, fmt.Errorf("creds: query user %s: %w", userID, err)
	}
	u.BotEnabled = botEnabled != 0
	u.CreatedAt = time.Unix(0, createdAt)
	u.UpdatedAt = time.Unix(0, updatedAt)

	if !u.BotEnabled {
		return core.Credentials{}, &u, apperrors.ErrUserDisabled
	}
	if !u.HasCredentials() {
		return core.Credentials{}, &u, apperrors.ErrMissingCredentials
	}

	return core.Credentials{APIKey: u.APIKey, APISecret: u.APISecret}, &u, nil
}

// Upsert creates or updates a user's stored credentials and bot-enabled
// flag. Used by the frontend-facing admin surface, not by any strategy
// tick path.
func (s *Store) Upsert(ctx context.Context, u model.User) error {
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, api_key, api_secret, bot_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			bot_enabled = excluded.bot_enabled,
			updated_at = excluded.updated_at`,
		u.ID, u.APIKey, u.APISecret, boolToInt(u.BotEnabled), now, now)
	if err != nil {
		return fmt.Errorf("creds: upsert user %s: %w", u.ID, err)
	}
	return nil
}

// SetBotEnabled flips only the bot_enabled flag for userID, leaving
// api_key/api_secret untouched (spec.md §5 field-scoped update discipline
// between the frontend's intent flag and the supervisor's admission
// control). A missing user is treated as a no-op so that DisableForUser
// on an unknown id never errors.
func (s *Store) SetBotEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET bot_enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("creds: set bot_enabled for user %s: %w", userID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ core.ICredentialStore = (*Store)(nil)
