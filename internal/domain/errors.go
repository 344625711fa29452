package domain

import (
	"errors"

	"github.com/routine-minder/minder/internal/dates"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Routine errors
	ErrRoutineNotFound      = errors.New("routine not found")
	ErrRoutineNameEmpty     = errors.New("routine name must not be empty")
	ErrNoTimeCategories     = errors.New("routine needs at least one time category")
	ErrInvalidTimeCategory  = errors.New("invalid time category (want AM, NOON, PM or ALL)")
	ErrInvalidNotifyTime    = errors.New("notification time must be HH:MM")
	ErrCategoryNotScheduled = errors.New("routine is not scheduled for that time category")
	ErrRoutineAmbiguous     = errors.New("more than one routine matches")

	// Completion errors
	ErrInvalidDate = dates.ErrInvalidDate
	ErrFutureDate  = errors.New("cannot complete a routine on a future date")

	// Stats errors
	ErrInvalidPeriod = errors.New("invalid period (want 7d, 30d, 1y, ytd or all)")

	// Settings errors
	ErrInvalidTimezone = errors.New("invalid timezone")
)
