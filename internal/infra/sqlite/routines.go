package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/routine-minder/minder/internal/domain"
)

// ─── Routine Repository ─────────────────────────────────────────────────────

const routineColumns = `id, name, time_categories, is_active, sort_order,
	notification_enabled, notification_time, created_at, updated_at`

// CreateRoutine inserts a new routine.
func (d *DB) CreateRoutine(ctx context.Context, r domain.Routine) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO routines (`+routineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, joinCategories(r.TimeCategories), r.IsActive, r.SortOrder,
		r.NotificationEnabled, r.NotificationTime, unixMilli(r.CreatedAt), unixMilli(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert routine: %w", err)
	}
	return nil
}

// GetRoutine retrieves a single routine by ID.
func (d *DB) GetRoutine(ctx context.Context, id string) (domain.Routine, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+routineColumns+` FROM routines WHERE id = ?`, id)
	r, err := scanRoutine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Routine{}, domain.ErrRoutineNotFound
	}
	return r, err
}

// ListRoutines returns every routine ordered by sort order, then name.
func (d *DB) ListRoutines(ctx context.Context) ([]domain.Routine, error) {
	return listRoutines(ctx, d.db)
}

// UpdateRoutine overwrites every mutable field of an existing routine.
func (d *DB) UpdateRoutine(ctx context.Context, r domain.Routine) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE routines SET name = ?, time_categories = ?, is_active = ?, sort_order = ?,
			notification_enabled = ?, notification_time = ?, updated_at = ?
		 WHERE id = ?`,
		r.Name, joinCategories(r.TimeCategories), r.IsActive, r.SortOrder,
		r.NotificationEnabled, r.NotificationTime, unixMilli(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update routine: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrRoutineNotFound
	}
	return nil
}

// DeleteRoutine removes a routine; its completions cascade.
func (d *DB) DeleteRoutine(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrRoutineNotFound
	}
	return nil
}

func listRoutines(ctx context.Context, q querier) ([]domain.Routine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+routineColumns+` FROM routines ORDER BY sort_order, name, id`,
	)
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

func scanRoutine(s scanner) (domain.Routine, error) {
	var r domain.Routine
	var cats string
	var createdAt, updatedAt int64
	err := s.Scan(&r.ID, &r.Name, &cats, &r.IsActive, &r.SortOrder,
		&r.NotificationEnabled, &r.NotificationTime, &createdAt, &updatedAt)
	if err != nil {
		return domain.Routine{}, err
	}
	r.TimeCategories = splitCategories(cats)
	r.CreatedAt = fromMilli(createdAt)
	r.UpdatedAt = fromMilli(updatedAt)
	return r, nil
}
