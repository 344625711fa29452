// Package sqlite provides SQLite-based persistent storage for Routine Minder.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/routine-minder/minder/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "minder.db"

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/minder.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also serializes toggles.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS routines (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			time_categories      TEXT NOT NULL,
			is_active            BOOLEAN NOT NULL DEFAULT 1,
			sort_order           INTEGER NOT NULL DEFAULT 0,
			notification_enabled BOOLEAN NOT NULL DEFAULT 0,
			notification_time    TEXT NOT NULL DEFAULT '',
			created_at           INTEGER NOT NULL,
			updated_at           INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routines_order ON routines(sort_order, name)`,

		// One row per (routine, date, category) slot; toggles upsert.
		`CREATE TABLE IF NOT EXISTS completions (
			id            TEXT PRIMARY KEY,
			routine_id    TEXT NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
			date          TEXT NOT NULL,
			time_category TEXT NOT NULL,
			completed     BOOLEAN NOT NULL,
			completed_at  INTEGER NOT NULL,
			UNIQUE (routine_id, date, time_category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_date ON completions(date)`,

		// Key-value store for engagement state (best streak high-water mark)
		`CREATE TABLE IF NOT EXISTS engagement (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Unlocked achievements; rowid keeps unlock order
		`CREATE TABLE IF NOT EXISTS achievements (
			id          TEXT PRIMARY KEY,
			unlocked_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Snapshot reads routines and completions inside one transaction.
func (d *DB) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	routines, err := listRoutines(ctx, tx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	completions, err := listCompletions(ctx, tx, "", "")
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{Routines: routines, Completions: completions}, tx.Commit()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func joinCategories(cs []domain.TimeCategory) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCategories(s string) []domain.TimeCategory {
	if s == "" {
		return []domain.TimeCategory{}
	}
	parts := strings.Split(s, ",")
	out := make([]domain.TimeCategory, len(parts))
	for i, p := range parts {
		out[i] = domain.TimeCategory(p)
	}
	return out
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func getKV(ctx context.Context, q querier, table, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM `+table+` WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

func setKV(ctx context.Context, q querier, table, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+table+` (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

var _ domain.Store = (*DB)(nil)
