package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/routine-minder/minder/internal/domain"
)

const keyBestStreak = "best_streak"

// ─── Achievements ───────────────────────────────────────────────────────────

// UnlockAchievement records an achievement as unlocked.
// Returns false if already unlocked (idempotent).
func (d *DB) UnlockAchievement(ctx context.Context, key string, at time.Time) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO achievements (id, unlocked_at) VALUES (?, ?)`,
		key, unixMilli(at),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil // true = newly unlocked
}

// ListUnlockedAchievements returns all unlocked achievements in unlock order.
func (d *DB) ListUnlockedAchievements(ctx context.Context) ([]domain.UnlockedAchievement, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, unlocked_at FROM achievements ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	achievements := []domain.UnlockedAchievement{}
	for rows.Next() {
		var a domain.UnlockedAchievement
		var unlockedAt int64
		if err := rows.Scan(&a.Key, &unlockedAt); err != nil {
			return nil, err
		}
		a.UnlockedAt = fromMilli(unlockedAt)
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

// ─── Best Streak ────────────────────────────────────────────────────────────

// BestStreak returns the saved high-water mark, 0 when never saved.
func (d *DB) BestStreak(ctx context.Context) (int, error) {
	v, ok, err := getKV(ctx, d.db, "engagement", keyBestStreak)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", keyBestStreak, err)
	}
	return n, nil
}

// RaiseBestStreak stores n when it exceeds the saved value.
func (d *DB) RaiseBestStreak(ctx context.Context, n int) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO engagement (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value
		 WHERE CAST(excluded.value AS INTEGER) > CAST(engagement.value AS INTEGER)`,
		keyBestStreak, strconv.Itoa(n),
	)
	return err
}

// ─── Settings ───────────────────────────────────────────────────────────────

// GetSettings returns the saved settings over the defaults.
func (d *DB) GetSettings(ctx context.Context) (domain.Settings, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return domain.Settings{}, err
	}
	defer rows.Close()

	s := domain.DefaultSettings()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.Settings{}, err
		}
		if err := s.Set(key, value); err != nil {
			return domain.Settings{}, err
		}
	}
	return s, rows.Err()
}

// SaveSettings writes every settings field in one transaction.
func (d *DB) SaveSettings(ctx context.Context, s domain.Settings) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, kv := range s.Pairs() {
		if err := setKV(ctx, tx, "settings", kv[0], kv[1]); err != nil {
			return fmt.Errorf("save setting %s: %w", kv[0], err)
		}
	}
	return tx.Commit()
}
