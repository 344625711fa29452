package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/routine-minder/minder/internal/domain"
)

// ─── Completion Repository ──────────────────────────────────────────────────

const completionColumns = `id, routine_id, date, time_category, completed, completed_at`

// UpsertCompletion writes the state of c's slot. An existing row keeps its ID.
func (d *DB) UpsertCompletion(ctx context.Context, c domain.Completion) (domain.Completion, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM routines WHERE id = ?`, c.RoutineID).Scan(&exists)
	if err != nil {
		return domain.Completion{}, err
	}
	if exists == 0 {
		return domain.Completion{}, domain.ErrRoutineNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO completions (`+completionColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(routine_id, date, time_category) DO UPDATE SET
			completed=excluded.completed,
			completed_at=excluded.completed_at`,
		c.ID, c.RoutineID, c.Date, string(c.TimeCategory), c.Completed, unixMilli(c.CompletedAt),
	)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("upsert completion: %w", err)
	}

	stored, err := scanCompletion(tx.QueryRowContext(ctx,
		`SELECT `+completionColumns+` FROM completions
		 WHERE routine_id = ? AND date = ? AND time_category = ?`,
		c.RoutineID, c.Date, string(c.TimeCategory),
	))
	if err != nil {
		return domain.Completion{}, err
	}
	return stored, tx.Commit()
}

// GetCompletion returns the state of one slot.
func (d *DB) GetCompletion(ctx context.Context, key domain.SlotKey) (domain.Completion, bool, error) {
	c, err := scanCompletion(d.db.QueryRowContext(ctx,
		`SELECT `+completionColumns+` FROM completions
		 WHERE routine_id = ? AND date = ? AND time_category = ?`,
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

// ListCompletions returns slots with from <= date <= to. Empty bounds are open.
func (d *DB) ListCompletions(ctx context.Context, from, to string) ([]domain.Completion, error) {
	return listCompletions(ctx, d.db, from, to)
}

func listCompletions(ctx context.Context, q querier, from, to string) ([]domain.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE 1=1`
	var args []any
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
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

func scanCompletion(s scanner) (domain.Completion, error) {
	var c domain.Completion
	var cat string
	var completedAt int64
	if err := s.Scan(&c.ID, &c.RoutineID, &c.Date, &cat, &c.Completed, &completedAt); err != nil {
		return domain.Completion{}, err
	}
	c.TimeCategory = domain.TimeCategory(cat)
	c.CompletedAt = fromMilli(completedAt)
	return c, nil
}
