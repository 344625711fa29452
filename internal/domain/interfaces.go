package domain

import (
	"context"
	"time"
)

// ─── Storage Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Snapshot is one consistent read of everything the stats engine needs.
type Snapshot struct {
	Routines    []Routine
	Completions []Completion
}

// RoutineStore persists routines.
type RoutineStore interface {
	CreateRoutine(ctx context.Context, r Routine) error
	GetRoutine(ctx context.Context, id string) (Routine, error) // ErrRoutineNotFound
	ListRoutines(ctx context.Context) ([]Routine, error)        // ordered by sort_order, name
	UpdateRoutine(ctx context.Context, r Routine) error
	DeleteRoutine(ctx context.Context, id string) error // also drops its completions
}

// CompletionStore persists one completion state per slot.
type CompletionStore interface {
	// UpsertCompletion writes the state of c.Key(), replacing any previous
	// state for that slot. The stored ID of an existing slot is kept.
	UpsertCompletion(ctx context.Context, c Completion) (Completion, error)
	// GetCompletion returns the slot state; ok is false when never written.
	GetCompletion(ctx context.Context, key SlotKey) (c Completion, ok bool, err error)
	// ListCompletions returns every slot with from <= date <= to.
	// Empty bounds are open.
	ListCompletions(ctx context.Context, from, to string) ([]Completion, error)
}

// EngagementStore persists the two ratchets: the unlocked-achievement set
// and the best-streak high-water mark.
type EngagementStore interface {
	// UnlockAchievement returns false when key was already unlocked.
	UnlockAchievement(ctx context.Context, key string, at time.Time) (bool, error)
	ListUnlockedAchievements(ctx context.Context) ([]UnlockedAchievement, error) // unlock order
	BestStreak(ctx context.Context) (int, error)
	// RaiseBestStreak stores n only when it exceeds the saved value.
	RaiseBestStreak(ctx context.Context, n int) error
}

// SettingsStore persists the settings singleton.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error) // defaults when unset
	SaveSettings(ctx context.Context, s Settings) error
}

// Store is everything a backend provides.
type Store interface {
	RoutineStore
	CompletionStore
	EngagementStore
	SettingsStore

	// Snapshot reads routines and completions without an interleaved write.
	Snapshot(ctx context.Context) (Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}
