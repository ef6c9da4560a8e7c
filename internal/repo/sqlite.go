// Package repo implements the Bot Repository (spec.md §4.3): lifecycle-
// aware, field-scoped CRUD over persisted bot documents, plus append-only
// trade and activity log tables. Grounded on the teacher's
// internal/engine/simple/store_sqlite.go SQLite idiom, generalized from a
// single-row blob store into a row-per-bot document store with one
// read-mutate-write transaction per field-scoped update so concurrent
// writers never clobber fields outside the ones they own.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"botsupervisor/internal/core"
	"botsupervisor/internal/model"
)

// Store implements core.IBotRepository against a SQLite database. It
// shares the same on-disk database file as internal/creds.Store (each
// owns disjoint tables, opened through its own *sql.DB handle in WAL
// mode) so CountActiveRunningForEnabledUsers can join bots against users.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the bots/trades/activity_logs tables at
// dbPath. _txlock=immediate makes every transaction (including the
// implicit BEGIN mattn/go-sqlite3 issues for BeginTx) take SQLite's write
// lock up front rather than deferring it to the first write, so two
// concurrent field-scoped updates serialize instead of one losing a
// read-modify-write race; _busy_timeout makes the loser wait for the lock
// instead of failing immediately with SQLITE_BUSY.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", withBusyParams(dbPath))
	if err != nil {
		return nil, fmt.Errorf("repo: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("repo: ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("repo: enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("repo: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// withBusyParams appends the transaction-lock and busy-timeout DSN
// parameters go-sqlite3 reads, unless the caller already supplied its own
// query string (":memory:" and file paths both accept this form).
func withBusyParams(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_txlock=immediate&_busy_timeout=5000"
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	api_key TEXT NOT NULL DEFAULT '',
	api_secret TEXT NOT NULL DEFAULT '',
	bot_enabled INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bots (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	is_running INTEGER NOT NULL DEFAULT 0,
	last_checked_at INTEGER NOT NULL DEFAULT 0,
	last_executed_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0,
	doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bots_kind ON bots(kind);
CREATE INDEX IF NOT EXISTS idx_bots_user ON bots(user_id);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bot_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	doc TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_bot ON trades(bot_id);

CREATE TABLE IF NOT EXISTS activity_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy TEXT NOT NULL,
	bot_id TEXT,
	doc TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_strategy ON activity_logs(strategy, id DESC);
`

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// --- read path ---

// DueBots returns bots matching filter. OnlyDueActive scopes to
// isActive ∧ isRunning ∧ owned by a bot_enabled user (spec.md's
// admission predicate, excluding the per-call credential check which the
// engine still performs via the Credential Store).
func (s *Store) DueBots(ctx context.Context, filter core.BotFilter) ([]*model.BotSpec, error) {
	query := `SELECT b.doc FROM bots b JOIN users u ON u.id = b.user_id WHERE b.kind = ?`
	args := []interface{}{string(filter.Strategy)}

	if filter.UserID != "" {
		query += ` AND b.user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.OnlyDueActive {
		query += ` AND b.is_active = 1 AND b.is_running = 1 AND u.bot_enabled = 1`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo: query due bots: %w", err)
	}
	defer rows.Close()

	var out []*model.BotSpec
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("repo: scan bot row: %w", err)
		}
		bot, err := decodeBot(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, bot)
	}
	return out, rows.Err()
}

// Get fetches one bot by id.
func (s *Store) Get(ctx context.Context, botID string) (*model.BotSpec, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM bots WHERE id = ?`, botID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repo: bot %s: %w", botID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get bot %s: %w", botID, err)
	}
	return decodeBot(doc)
}

// CountActiveRunningForEnabledUsers counts admitted bots of one strategy
// kind, used for supervisor-level boot/health accounting.
func (s *Store) CountActiveRunningForEnabledUsers(ctx context.Context, strategy model.StrategyKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bots b JOIN users u ON u.id = b.user_id
		WHERE b.kind = ? AND b.is_active = 1 AND b.is_running = 1 AND u.bot_enabled = 1`,
		string(strategy)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repo: count active bots: %w", err)
	}
	return n, nil
}

// --- field-scoped write path ---

// withBotTx runs mutate against the bot's current decoded document inside
// a transaction, persisting only the document and the flat columns
// mutate is expected to have changed via the BotSpec fields it touched.
// The connection's _txlock=immediate DSN parameter (set in NewStore) makes
// this BeginTx issue BEGIN IMMEDIATE under the hood, taking the write lock
// up front so concurrent field-scoped updates to the same row serialize
// instead of racing a read-modify-write.
func (s *Store) withBotTx(ctx context.Context, botID string, mutate func(*model.BotSpec) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("repo: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	if err := tx.QueryRowContext(ctx, `SELECT doc FROM bots WHERE id = ?`, botID).Scan(&doc); err != nil {
		return fmt.Errorf("repo: load bot %s for update: %w", botID, err)
	}
	bot, err := decodeBot(doc)
	if err != nil {
		return err
	}

	if err := mutate(bot); err != nil {
		return err
	}

	encoded, err := json.Marshal(bot)
	if err != nil {
		return fmt.Errorf("repo: encode bot %s: %w", botID, err)
	}
	now := time.Now().UnixNano()
	_, err = tx.ExecContext(ctx, `
		UPDATE bots SET doc = ?, is_active = ?, is_running = ?,
			last_checked_at = ?, last_executed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(encoded), boolToInt(bot.IsActive), boolToInt(bot.IsRunning),
		bot.LastCheckedAt.UnixNano(), bot.LastExecutedAt.UnixNano(), now, botID)
	if err != nil {
		return fmt.Errorf("repo: persist bot %s: %w", botID, err)
	}
	return tx.Commit()
}

func (s *Store) SetRunning(ctx context.Context, botID string, running bool) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.IsRunning = running
		return nil
	})
}

func (s *Store) SetLastChecked(ctx context.Context, botID string, at time.Time) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.LastCheckedAt = at
		return nil
	})
}

func (s *Store) SetLastExecuted(ctx context.Context, botID string, at time.Time) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.LastExecutedAt = at
		return nil
	})
}

func (s *Store) UpdateAccumulator(ctx context.Context, botID string, p model.AccumulatorParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.Accumulator = &p
		return nil
	})
}

func (s *Store) UpdateStabilizer(ctx context.Context, botID string, p model.StabilizerParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.Stabilizer = &p
		return nil
	})
}

func (s *Store) UpdateMaker(ctx context.Context, botID string, p model.MakerParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.Maker = &p
		return nil
	})
}

func (s *Store) UpdateBuyWall(ctx context.Context, botID string, p model.BuyWallParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.BuyWall = &p
		return nil
	})
}

func (s *Store) UpdatePriceKeeper(ctx context.Context, botID string, p model.PriceKeeperParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.PriceKeeper = &p
		return nil
	})
}

func (s *Store) UpdateLiquidity(ctx context.Context, botID string, p model.LiquidityParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.Liquidity = &p
		return nil
	})
}

func (s *Store) UpdateConditional(ctx context.Context, botID string, p model.ConditionalParams) error {
	return s.withBotTx(ctx, botID, func(b *model.BotSpec) error {
		b.Conditional = &p
		return nil
	})
}

// --- append-only logs ---

// InsertTrade appends a trade record; trade records are never mutated
// after insert (spec.md §3).
func (s *Store) InsertTrade(ctx context.Context, t model.TradeRecord) error {
	encoded, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("repo: encode trade: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades (bot_id, user_id, symbol, doc, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.BotID, t.UserID, t.Symbol, string(encoded), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("repo: insert trade: %w", err)
	}
	return nil
}

// InsertActivity appends an activity log entry.
func (s *Store) InsertActivity(ctx context.Context, a model.ActivityLog) error {
	encoded, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("repo: encode activity: %w", err)
	}
	var botID interface{}
	if a.BotID != "" {
		botID = a.BotID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (strategy, bot_id, doc, created_at) VALUES (?, ?, ?, ?)`,
		string(a.Strategy), botID, string(encoded), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("repo: insert activity: %w", err)
	}
	return nil
}

// RecentActivity returns the most recent limit activity log entries for
// strategy, newest first. This durable query backs the bounded in-memory
// ring the engine also keeps for fast reads; the two are not required to
// agree bit-for-bit (spec.md §3: the ring is advisory).
func (s *Store) RecentActivity(ctx context.Context, strategy model.StrategyKind, limit int) ([]model.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM activity_logs WHERE strategy = ? ORDER BY id DESC LIMIT ?`,
		string(strategy), limit)
	if err != nil {
		return nil, fmt.Errorf("repo: query recent activity: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityLog
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("repo: scan activity row: %w", err)
		}
		var a model.ActivityLog
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return nil, fmt.Errorf("repo: decode activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- create ---

// Insert persists a brand-new bot document.
func (s *Store) Insert(ctx context.Context, b *model.BotSpec) error {
	encoded, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("repo: encode new bot: %w", err)
	}
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bots (id, user_id, kind, symbol, is_active, is_running,
			last_checked_at, last_executed_at, updated_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, string(b.Kind), b.Symbol, boolToInt(b.IsActive), boolToInt(b.IsRunning),
		b.LastCheckedAt.UnixNano(), b.LastExecutedAt.UnixNano(), now, string(encoded))
	if err != nil {
		return fmt.Errorf("repo: insert bot %s: %w", b.ID, err)
	}
	return nil
}

func decodeBot(doc string) (*model.BotSpec, error) {
	var b model.BotSpec
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, fmt.Errorf("repo: decode bot document: %w", err)
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ core.IBotRepository = (*Store)(nil)
