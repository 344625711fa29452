package engagement

import (
	"fmt"

	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
)

// Snapshot is the canonical in-memory view the engine reduces over.
//
// Building it applies the completion rule once, up front: records are
// collapsed to one state per (routine, date, category) slot, the latest
// CompletedAt wins (later input wins ties), and a slot counts only when that
// state is Completed. Slots of unknown or inactive routines, and slots in a
// category the routine is no longer scheduled in, are dropped.
//
// A Snapshot is read-only after construction and safe for concurrent use.
type Snapshot struct {
	routines []domain.Routine
	byID     map[string]domain.Routine
	done     map[domain.SlotKey]struct{}
	slots    []domain.SlotKey
	perDay   map[string]int
	earliest string
}

// NewSnapshot validates completion dates and builds the canonical view.
// A malformed date is an error; everything else is filtered silently.
func NewSnapshot(routines []domain.Routine, completions []domain.Completion) (*Snapshot, error) {
	s := &Snapshot{
		byID:   make(map[string]domain.Routine),
		done:   make(map[domain.SlotKey]struct{}),
		perDay: make(map[string]int),
	}

	for _, r := range routines {
		if !r.IsActive || len(r.TimeCategories) == 0 {
			continue
		}
		if _, dup := s.byID[r.ID]; dup {
			continue
		}
		r.TimeCategories = domain.SortCategories(r.TimeCategories)
		s.routines = append(s.routines, r)
		s.byID[r.ID] = r
	}

	latest := make(map[domain.SlotKey]domain.Completion, len(completions))
	order := make([]domain.SlotKey, 0, len(completions))
	for _, c := range completions {
		if err := dates.Validate(c.Date); err != nil {
			return nil, fmt.Errorf("completion %s: %w", c.ID, err)
		}
		key := c.Key()
		prev, seen := latest[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || !c.CompletedAt.Before(prev.CompletedAt) {
			latest[key] = c
		}
	}

	for _, key := range order {
		c := latest[key]
		if !c.Completed {
			continue
		}
		r, ok := s.byID[key.RoutineID]
		if !ok || !r.HasCategory(key.Category) {
			continue
		}
		s.done[key] = struct{}{}
		s.slots = append(s.slots, key)
		s.perDay[key.Date]++
		if s.earliest == "" || key.Date < s.earliest {
			s.earliest = key.Date
		}
	}

	return s, nil
}

// Routines returns the active routines, categories in display order.
func (s *Snapshot) Routines() []domain.Routine {
	out := make([]domain.Routine, len(s.routines))
	copy(out, s.routines)
	return out
}

// Routine returns an active routine by ID.
func (s *Snapshot) Routine(id string) (domain.Routine, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Earliest returns the earliest date with a counted completion, or "".
func (s *Snapshot) Earliest() string {
	return s.earliest
}

// IsDone is the single "is this slot completed" predicate.
func (s *Snapshot) IsDone(routineID, date string, c domain.TimeCategory) bool {
	_, ok := s.done[domain.SlotKey{RoutineID: routineID, Date: date, Category: c}]
	return ok
}

// RoutineDayComplete reports whether every category of r was done on date.
func (s *Snapshot) RoutineDayComplete(r domain.Routine, date string) bool {
	if len(r.TimeCategories) == 0 {
		return false
	}
	for _, c := range r.TimeCategories {
		if !s.IsDone(r.ID, date, c) {
			return false
		}
	}
	return true
}

// DayComplete reports whether every category of every active routine was
// done on date. With no active routines no day is complete.
func (s *Snapshot) DayComplete(date string) bool {
	if len(s.routines) == 0 || s.perDay[date] == 0 {
		return false
	}
	for _, r := range s.routines {
		if !s.RoutineDayComplete(r, date) {
			return false
		}
	}
	return true
}

// CompletedOn returns how many slots were done on date.
func (s *Snapshot) CompletedOn(date string) int {
	return s.perDay[date]
}

// TotalCompletions counts done slots dated on or before through.
func (s *Snapshot) TotalCompletions(through string) int {
	n := 0
	for _, k := range s.slots {
		if k.Date <= through {
			n++
		}
	}
	return n
}

// LifetimeCategoryCounts tallies done slots per category over the whole
// history up to through. This is the "time of day breakdown".
func (s *Snapshot) LifetimeCategoryCounts(through string) domain.CategoryCounts {
	var cc domain.CategoryCounts
	for _, k := range s.slots {
		if k.Date <= through {
			cc.Add(k.Category)
		}
	}
	return cc
}

// RoutineCompletions counts done slots of one routine up to through.
func (s *Snapshot) RoutineCompletions(routineID, through string) int {
	n := 0
	for _, k := range s.slots {
		if k.RoutineID == routineID && k.Date <= through {
			n++
		}
	}
	return n
}
