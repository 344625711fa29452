// Package routine manages routines and their completion slots on top of a
// domain.Store. Statistics live in the engagement package.
package routine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/infra/metrics"
	"github.com/routine-minder/minder/internal/logger"
)

// Draft is the input for Create. IsActive defaults to true and SortOrder
// to the end of the list.
type Draft struct {
	Name                string                `json:"name"`
	TimeCategories      []domain.TimeCategory `json:"timeCategories"`
	IsActive            *bool                 `json:"isActive,omitempty"`
	SortOrder           *int                  `json:"sortOrder,omitempty"`
	NotificationEnabled bool                  `json:"notificationEnabled,omitempty"`
	NotificationTime    string                `json:"notificationTime,omitempty"`
}

// Patch is the input for Update. Nil fields are left unchanged.
type Patch struct {
	Name                *string               `json:"name,omitempty"`
	TimeCategories      []domain.TimeCategory `json:"timeCategories,omitempty"`
	IsActive            *bool                 `json:"isActive,omitempty"`
	SortOrder           *int                  `json:"sortOrder,omitempty"`
	NotificationEnabled *bool                 `json:"notificationEnabled,omitempty"`
	NotificationTime    *string               `json:"notificationTime,omitempty"`
}

// Service is the routine and completion collaborator.
type Service struct {
	store domain.Store
	now   func() time.Time

	// slots serializes completion writes so a Toggle's read and write see no
	// interleaved flip from this process. Writers in other processes sharing
	// the store still race; the last write to a slot wins.
	slots sync.Mutex
}

// NewService creates a routine service over store.
func NewService(store domain.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock overrides the timestamp source. Used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ─── Routines ───────────────────────────────────────────────────────────────

// Create validates d and stores a new routine with a fresh ID.
func (s *Service) Create(ctx context.Context, d Draft) (domain.Routine, error) {
	now := s.now().UTC()
	r := domain.Routine{
		ID:                  uuid.NewString(),
		Name:                d.Name,
		TimeCategories:      d.TimeCategories,
		IsActive:            true,
		NotificationEnabled: d.NotificationEnabled,
		NotificationTime:    d.NotificationTime,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if d.IsActive != nil {
		r.IsActive = *d.IsActive
	}
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return domain.Routine{}, err
	}

	if d.SortOrder != nil {
		r.SortOrder = *d.SortOrder
	} else {
		existing, err := s.store.ListRoutines(ctx)
		if err != nil {
			return domain.Routine{}, fmt.Errorf("list routines: %w", err)
		}
		for _, e := range existing {
			if e.SortOrder >= r.SortOrder {
				r.SortOrder = e.SortOrder + 1
			}
		}
	}

	if err := s.store.CreateRoutine(ctx, r); err != nil {
		return domain.Routine{}, fmt.Errorf("create routine: %w", err)
	}
	logger.Info("routine created", "id", r.ID, "name", r.Name)
	s.refreshActive(ctx)
	return r, nil
}

// Get returns one routine.
func (s *Service) Get(ctx context.Context, id string) (domain.Routine, error) {
	return s.store.GetRoutine(ctx, id)
}

// List returns routines in display order. Inactive ones are included only
// when includeInactive is set.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]domain.Routine, error) {
	all, err := s.store.ListRoutines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	if includeInactive {
		return all, nil
	}
	out := make([]domain.Routine, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// Resolve finds a routine by ID, or else by case-insensitive name.
func (s *Service) Resolve(ctx context.Context, ref string) (domain.Routine, error) {
	r, err := s.store.GetRoutine(ctx, ref)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, domain.ErrRoutineNotFound) {
		return domain.Routine{}, err
	}

	all, err := s.store.ListRoutines(ctx)
	if err != nil {
		return domain.Routine{}, fmt.Errorf("list routines: %w", err)
	}
	var matches []domain.Routine
	for _, r := range all {
		if strings.EqualFold(r.Name, strings.TrimSpace(ref)) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return domain.Routine{}, fmt.Errorf("%w: %q", domain.ErrRoutineNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return domain.Routine{}, fmt.Errorf("%w: %q", domain.ErrRoutineAmbiguous, ref)
	}
}

// Update applies p to the routine with the given ID.
func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.Routine, error) {
	r, err := s.store.GetRoutine(ctx, id)
	if err != nil {
		return domain.Routine{}, err
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.TimeCategories != nil {
		r.TimeCategories = p.TimeCategories
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.SortOrder != nil {
		r.SortOrder = *p.SortOrder
	}
	if p.NotificationEnabled != nil {
		r.NotificationEnabled = *p.NotificationEnabled
	}
	if p.NotificationTime != nil {
		r.NotificationTime = *p.NotificationTime
	}
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return domain.Routine{}, err
	}
	r.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateRoutine(ctx, r); err != nil {
		return domain.Routine{}, fmt.Errorf("update routine: %w", err)
	}
	s.refreshActive(ctx)
	return r, nil
}

// SetActive pauses or resumes a routine. History is kept either way.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (domain.Routine, error) {
	return s.Update(ctx, id, Patch{IsActive: &active})
}

// Delete removes a routine and every completion recorded for it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRoutine(ctx, id); err != nil {
		return err
	}
	logger.Info("routine deleted", "id", id)
	s.refreshActive(ctx)
	return nil
}

// Reorder assigns SortOrder 0..n-1 following ids. Routines not named keep
// their order value.
func (s *Service) Reorder(ctx context.Context, ids []string) ([]domain.Routine, error) {
	now := s.now().UTC()
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, err := s.store.GetRoutine(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.SortOrder == i {
			continue
		}
		r.SortOrder = i
		r.UpdatedAt = now
		if err := s.store.UpdateRoutine(ctx, r); err != nil {
			return nil, fmt.Errorf("reorder %s: %w", id, err)
		}
	}
	return s.List(ctx, true)
}

func (s *Service) refreshActive(ctx context.Context) {
	active, err := s.List(ctx, false)
	if err != nil {
		logger.Warn("count active routines", "err", err)
		return
	}
	metrics.RoutinesActive.Set(float64(len(active)))
}

// ─── Completions ────────────────────────────────────────────────────────────

// Toggle flips one slot: an unrecorded or undone slot becomes done, a done
// slot becomes undone.
func (s *Service) Toggle(ctx context.Context, routineID, date string, cat domain.TimeCategory, today string) (domain.Completion, error) {
	r, err := s.checkSlot(ctx, routineID, date, cat, today)
	if err != nil {
		return domain.Completion{}, err
	}
	s.slots.Lock()
	defer s.slots.Unlock()

	prev, ok, err := s.store.GetCompletion(ctx, domain.SlotKey{RoutineID: r.ID, Date: date, Category: cat})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("get completion: %w", err)
	}
	return s.write(ctx, r.ID, date, cat, !(ok && prev.Completed))
}

// SetCompletion writes an explicit state for one slot.
func (s *Service) SetCompletion(ctx context.Context, routineID, date string, cat domain.TimeCategory, completed bool, today string) (domain.Completion, error) {
	r, err := s.checkSlot(ctx, routineID, date, cat, today)
	if err != nil {
		return domain.Completion{}, err
	}
	s.slots.Lock()
	defer s.slots.Unlock()
	return s.write(ctx, r.ID, date, cat, completed)
}

func (s *Service) checkSlot(ctx context.Context, routineID, date string, cat domain.TimeCategory, today string) (domain.Routine, error) {
	if err := dates.Validate(date); err != nil {
		return domain.Routine{}, err
	}
	if err := dates.Validate(today); err != nil {
		return domain.Routine{}, err
	}
	if date > today {
		return domain.Routine{}, fmt.Errorf("%w: %s is after %s", domain.ErrFutureDate, date, today)
	}
	if !cat.Valid() {
		return domain.Routine{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimeCategory, cat)
	}
	r, err := s.store.GetRoutine(ctx, routineID)
	if err != nil {
		return domain.Routine{}, err
	}
	if !r.HasCategory(cat) {
		return domain.Routine{}, fmt.Errorf("%w: %s has no %s slot", domain.ErrCategoryNotScheduled, r.Name, cat)
	}
	return r, nil
}

func (s *Service) write(ctx context.Context, routineID, date string, cat domain.TimeCategory, completed bool) (domain.Completion, error) {
	c, err := s.store.UpsertCompletion(ctx, domain.Completion{
		ID:           uuid.NewString(),
		RoutineID:    routineID,
		Date:         date,
		TimeCategory: cat,
		Completed:    completed,
		CompletedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("save completion: %w", err)
	}

	state := "undone"
	if completed {
		state = "done"
	}
	metrics.CompletionsToggled.WithLabelValues(state).Inc()
	logger.Debug("completion written", "routine", routineID, "date", date, "category", cat, "state", state)
	return c, nil
}

// CompletionsForDate returns every slot recorded on date.
func (s *Service) CompletionsForDate(ctx context.Context, date string) ([]domain.Completion, error) {
	if err := dates.Validate(date); err != nil {
		return nil, err
	}
	return s.store.ListCompletions(ctx, date, date)
}

// CompletionsInRange returns every slot with from <= date <= to.
func (s *Service) CompletionsInRange(ctx context.Context, from, to string) ([]domain.Completion, error) {
	if err := dates.Validate(from); err != nil {
		return nil, err
	}
	if err := dates.Validate(to); err != nil {
		return nil, err
	}
	if from > to {
		return nil, fmt.Errorf("%w: range %s..%s is reversed", domain.ErrInvalidDate, from, to)
	}
	return s.store.ListCompletions(ctx, from, to)
}
