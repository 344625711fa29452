// Package postgres is the PostgreSQL domain.Store backend, built on lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/routine-minder/minder/internal/domain"
)

// ErrInvalidConnectionString is returned by ValidateDSN.
var ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")

// Store is a PostgreSQL-backed domain.Store.
type Store struct {
	db *sql.DB
}

// ValidateDSN checks that dsn parses as a URI or key=value DSN.
func ValidateDSN(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(dsn); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}
	return nil
}

// Open connects, verifies connectivity and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := ValidateDSN(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(dsn) {
			return nil, fmt.Errorf("ping postgres: %w (hint: add sslmode=disable)", err)
		}
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func hasSSLMode(dsn string) bool {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Query().Get("sslmode") != ""
	}
	for _, part := range strings.Fields(dsn) {
		if k, _, ok := strings.Cut(part, "="); ok && strings.EqualFold(k, "sslmode") {
			return true
		}
	}
	return false
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS routines (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			time_categories      TEXT[] NOT NULL,
			is_active            BOOLEAN NOT NULL DEFAULT TRUE,
			sort_order           INTEGER NOT NULL DEFAULT 0,
			notification_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			notification_time    TEXT NOT NULL DEFAULT '',
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS completions (
			id            TEXT PRIMARY KEY,
			routine_id    TEXT NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
			date          TEXT NOT NULL,
			time_category TEXT NOT NULL,
			completed     BOOLEAN NOT NULL,
			completed_at  TIMESTAMPTZ NOT NULL,
			UNIQUE (routine_id, date, time_category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_date ON completions(date)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			seq         BIGSERIAL,
			id          TEXT PRIMARY KEY,
			unlocked_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS engagement (
			key   TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Snapshot reads routines and completions in one repeatable-read,
// read-only transaction.
func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
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

// ─── Routines ───────────────────────────────────────────────────────────────

const routineColumns = `id, name, time_categories, is_active, sort_order,
	notification_enabled, notification_time, created_at, updated_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateRoutine(ctx context.Context, r domain.Routine) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routines (`+routineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Name, pq.Array(categoryStrings(r.TimeCategories)), r.IsActive, r.SortOrder,
		r.NotificationEnabled, r.NotificationTime, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert routine: %w", err)
	}
	return nil
}

func (s *Store) GetRoutine(ctx context.Context, id string) (domain.Routine, error) {
	r, err := scanRoutine(s.db.QueryRowContext(ctx, `SELECT `+routineColumns+` FROM routines WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Routine{}, domain.ErrRoutineNotFound
	}
	return r, err
}

func (s *Store) ListRoutines(ctx context.Context) ([]domain.Routine, error) {
	return listRoutines(ctx, s.db)
}

func (s *Store) UpdateRoutine(ctx context.Context, r domain.Routine) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE routines SET name = $2, time_categories = $3, is_active = $4, sort_order = $5,
			notification_enabled = $6, notification_time = $7, updated_at = $8
		 WHERE id = $1`,
		r.ID, r.Name, pq.Array(categoryStrings(r.TimeCategories)), r.IsActive, r.SortOrder,
		r.NotificationEnabled, r.NotificationTime, r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update routine: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRoutineNotFound
	}
	return nil
}

func (s *Store) DeleteRoutine(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM routines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRoutineNotFound
	}
	return nil
}

func listRoutines(ctx context.Context, q querier) ([]domain.Routine, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+routineColumns+` FROM routines ORDER BY sort_order, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	routines := []domain.Routine{}
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

func scanRoutine(sc scanner) (domain.Routine, error) {
	var r domain.Routine
	var cats []string
	err := sc.Scan(&r.ID, &r.Name, pq.Array(&cats), &r.IsActive, &r.SortOrder,
		&r.NotificationEnabled, &r.NotificationTime, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return domain.Routine{}, err
	}
	r.TimeCategories = make([]domain.TimeCategory, len(cats))
	for i, c := range cats {
		r.TimeCategories[i] = domain.TimeCategory(c)
	}
	return r, nil
}

func categoryStrings(cs []domain.TimeCategory) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// ─── Completions ────────────────────────────────────────────────────────────

const completionColumns = `id, routine_id, date, time_category, completed, completed_at`

func (s *Store) UpsertCompletion(ctx context.Context, c domain.Completion) (domain.Completion, error) {
	stored, err := scanCompletion(s.db.QueryRowContext(ctx,
		`INSERT INTO completions (`+completionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (routine_id, date, time_category) DO UPDATE SET
			completed = EXCLUDED.completed,
			completed_at = EXCLUDED.completed_at
		 RETURNING `+completionColumns,
		c.ID, c.RoutineID, c.Date, string(c.TimeCategory), c.Completed, c.CompletedAt.UTC(),
	))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
		return domain.Completion{}, domain.ErrRoutineNotFound
	}
	if err != nil {
		return domain.Completion{}, fmt.Errorf("upsert completion: %w", err)
	}
	return stored, nil
}

func (s *Store) GetCompletion(ctx context.Context, key domain.SlotKey) (domain.Completion, bool, error) {
	c, err := scanCompletion(s.db.QueryRowContext(ctx,
		`SELECT `+completionColumns+` FROM completions
		 WHERE routine_id = $1 AND date = $2 AND time_category = $3`,
		key.RoutineID, key.Date, string(key.Category),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Completion{}, false, nil
	}
	if err != nil {
		return domain.Completion{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListCompletions(ctx context.Context, from, to string) ([]domain.Completion, error) {
	return listCompletions(ctx, s.db, from, to)
}

func listCompletions(ctx context.Context, q querier, from, to string) ([]domain.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE TRUE`
	var args []any
	if from != "" {
		args = append(args, from)
		query += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if to != "" {
		args = append(args, to)
		query += ` AND date <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY date, routine_id, time_category`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	completions := []domain.Completion{}
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

func scanCompletion(sc scanner) (domain.Completion, error) {
	var c domain.Completion
	var cat string
	if err := sc.Scan(&c.ID, &c.RoutineID, &c.Date, &cat, &c.Completed, &c.CompletedAt); err != nil {
		return domain.Completion{}, err
	}
	c.TimeCategory = domain.TimeCategory(cat)
	return c, nil
}

// ─── Engagement ─────────────────────────────────────────────────────────────

func (s *Store) UnlockAchievement(ctx context.Context, key string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO achievements (id, unlocked_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		key, at.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListUnlockedAchievements(ctx context.Context) ([]domain.UnlockedAchievement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, unlocked_at FROM achievements ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.UnlockedAchievement{}
	for rows.Next() {
		var a domain.UnlockedAchievement
		if err := rows.Scan(&a.Key, &a.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) BestStreak(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM engagement WHERE key = 'best_streak'`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *Store) RaiseBestStreak(ctx context.Context, n int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engagement (key, value) VALUES ('best_streak', $1)
		 ON CONFLICT (key) DO UPDATE SET value = GREATEST(engagement.value, EXCLUDED.value)`,
		n,
	)
	return err
}

// ─── Settings ───────────────────────────────────────────────────────────────

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return domain.Settings{}, err
	}
	defer rows.Close()

	st := domain.DefaultSettings()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.Settings{}, err
		}
		if err := st.Set(key, value); err != nil {
			return domain.Settings{}, err
		}
	}
	return st, rows.Err()
}

func (s *Store) SaveSettings(ctx context.Context, st domain.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, kv := range st.Pairs() {
		if _, err := stmt.ExecContext(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save setting %s: %w", kv[0], err)
		}
	}
	return tx.Commit()
}

var _ domain.Store = (*Store)(nil)
