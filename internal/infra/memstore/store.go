// Package memstore is a map-backed domain.Store for tests and the
// "memory" storage driver. Data is lost when the process exits.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/routine-minder/minder/internal/domain"
)

var errClosed = errors.New("memstore: closed")

// Store guards every map with one RWMutex. Snapshot copies under the read
// lock, so it never observes a half-applied write.
type Store struct {
	mu          sync.RWMutex
	closed      bool
	routines    map[string]domain.Routine
	completions map[domain.SlotKey]domain.Completion
	unlocked    []domain.UnlockedAchievement
	bestStreak  int
	settings    *domain.Settings
}

// New returns an empty store.
func New() *Store {
	return &Store{
		routines:    make(map[string]domain.Routine),
		completions: make(map[domain.SlotKey]domain.Completion),
	}
}

// ─── Routines ───────────────────────────────────────────────────────────────

func (s *Store) CreateRoutine(_ context.Context, r domain.Routine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.routines[r.ID]; ok {
		return errors.New("memstore: duplicate routine id " + r.ID)
	}
	s.routines[r.ID] = cloneRoutine(r)
	return nil
}

func (s *Store) GetRoutine(_ context.Context, id string) (domain.Routine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routines[id]
	if !ok {
		return domain.Routine{}, domain.ErrRoutineNotFound
	}
	return cloneRoutine(r), nil
}

func (s *Store) ListRoutines(_ context.Context) ([]domain.Routine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routineList(), nil
}

func (s *Store) UpdateRoutine(_ context.Context, r domain.Routine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[r.ID]; !ok {
		return domain.ErrRoutineNotFound
	}
	s.routines[r.ID] = cloneRoutine(r)
	return nil
}

func (s *Store) DeleteRoutine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[id]; !ok {
		return domain.ErrRoutineNotFound
	}
	delete(s.routines, id)
	for k := range s.completions {
		if k.RoutineID == id {
			delete(s.completions, k)
		}
	}
	return nil
}

// ─── Completions ────────────────────────────────────────────────────────────

func (s *Store) UpsertCompletion(_ context.Context, c domain.Completion) (domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Completion{}, errClosed
	}
	if _, ok := s.routines[c.RoutineID]; !ok {
		return domain.Completion{}, domain.ErrRoutineNotFound
	}
	key := c.Key()
	if prev, ok := s.completions[key]; ok {
		c.ID = prev.ID
	}
	s.completions[key] = c
	return c, nil
}

func (s *Store) GetCompletion(_ context.Context, key domain.SlotKey) (domain.Completion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.completions[key]
	return c, ok, nil
}

func (s *Store) ListCompletions(_ context.Context, from, to string) ([]domain.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completionList(from, to), nil
}

// ─── Engagement Ratchets ────────────────────────────────────────────────────

func (s *Store) UnlockAchievement(_ context.Context, key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.unlocked {
		if u.Key == key {
			return false, nil
		}
	}
	s.unlocked = append(s.unlocked, domain.UnlockedAchievement{Key: key, UnlockedAt: at})
	return true, nil
}

func (s *Store) ListUnlockedAchievements(_ context.Context) ([]domain.UnlockedAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.unlocked), nil
}

func (s *Store) BestStreak(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestStreak, nil
}

func (s *Store) RaiseBestStreak(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestStreak = max(s.bestStreak, n)
	return nil
}

// ─── Settings ───────────────────────────────────────────────────────────────

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return domain.DefaultSettings(), nil
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, st domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &st
	return nil
}

// ─── Store ──────────────────────────────────────────────────────────────────

func (s *Store) Snapshot(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Snapshot{}, errClosed
	}
	return domain.Snapshot{
		Routines:    s.routineList(),
		Completions: s.completionList("", ""),
	}, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ─── Helpers (caller holds the lock) ────────────────────────────────────────

func (s *Store) routineList() []domain.Routine {
	out := make([]domain.Routine, 0, len(s.routines))
	for _, r := range s.routines {
		out = append(out, cloneRoutine(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) completionList(from, to string) []domain.Completion {
	out := make([]domain.Completion, 0, len(s.completions))
	for _, c := range s.completions {
		if from != "" && c.Date < from {
			continue
		}
		if to != "" && c.Date > to {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.RoutineID != b.RoutineID {
			return a.RoutineID < b.RoutineID
		}
		return a.TimeCategory < b.TimeCategory
	})
	return out
}

func cloneRoutine(r domain.Routine) domain.Routine {
	r.TimeCategories = slices.Clone(r.TimeCategories)
	return r
}

var _ domain.Store = (*Store)(nil)
