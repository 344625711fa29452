package engagement

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
)

// Config tunes the engine.
type Config struct {
	LookbackDays int                     // streak window, DefaultLookbackDays when <= 0
	XPMode       XPMode                  // XPModeReplay when empty
	Catalog      []domain.AchievementDef // Catalog() when nil
}

// Engine merges the streak, period and gamification reductions into the
// dashboard and per-routine views. It holds no state between calls.
type Engine struct {
	lookback int
	xpMode   XPMode
	catalog  []domain.AchievementDef
}

// NewEngine applies defaults to cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{lookback: cfg.LookbackDays, xpMode: cfg.XPMode, catalog: cfg.Catalog}
	if e.lookback <= 0 {
		e.lookback = DefaultLookbackDays
	}
	if e.xpMode == "" {
		e.xpMode = XPModeReplay
	}
	if e.catalog == nil {
		e.catalog = Catalog()
	}
	return e
}

// Catalog returns the achievement definitions the engine evaluates.
func (e *Engine) Catalog() []domain.AchievementDef {
	return slices.Clone(e.catalog)
}

// XPMode returns the active XP pricing mode.
func (e *Engine) XPMode() XPMode { return e.xpMode }

// Input is everything one computation needs. Today is never read from the
// clock inside the engine.
type Input struct {
	Routines        []domain.Routine
	Completions     []domain.Completion
	Period          Period
	Today           string
	SavedBestStreak int
	Unlocked        []string // previously unlocked keys, in unlock order
}

// Result holds both views of one computation.
type Result struct {
	Stats    domain.GamificationStats
	Routines []domain.RoutineStats
	// Achievement is the statistic set achievements were measured on.
	Achievement domain.AchievementStats
}

// Compute runs the whole pipeline. Zero routines or zero completions give
// zeroed stats, not an error.
func (e *Engine) Compute(in Input) (Result, error) {
	if err := dates.Validate(in.Today); err != nil {
		return Result{}, fmt.Errorf("today: %w", err)
	}
	s, err := NewSnapshot(in.Routines, in.Completions)
	if err != nil {
		return Result{}, err
	}
	stats, ach, err := e.gamification(s, in)
	if err != nil {
		return Result{}, err
	}
	rs, err := e.routineStats(s, in.Period, in.Today)
	if err != nil {
		return Result{}, err
	}
	return Result{Stats: stats, Routines: rs, Achievement: ach}, nil
}

// Gamification builds only the dashboard view.
func (e *Engine) Gamification(in Input) (domain.GamificationStats, domain.AchievementStats, error) {
	if err := dates.Validate(in.Today); err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, fmt.Errorf("today: %w", err)
	}
	s, err := NewSnapshot(in.Routines, in.Completions)
	if err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, err
	}
	return e.gamification(s, in)
}

// RoutineStats builds only the per-routine view.
func (e *Engine) RoutineStats(in Input) ([]domain.RoutineStats, error) {
	if err := dates.Validate(in.Today); err != nil {
		return nil, fmt.Errorf("today: %w", err)
	}
	s, err := NewSnapshot(in.Routines, in.Completions)
	if err != nil {
		return nil, err
	}
	return e.routineStats(s, in.Period, in.Today)
}

func (e *Engine) gamification(s *Snapshot, in Input) (domain.GamificationStats, domain.AchievementStats, error) {
	today := in.Today
	period := in.Period
	if period == "" {
		period = Period7Days
	}

	streak, err := AggregateStreak(s, today, e.lookback)
	if err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, err
	}
	best := max(streak.Longest, in.SavedBestStreak)

	start, err := period.Window(today, s.Earliest())
	if err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, err
	}
	window, err := Aggregate(s, start, today)
	if err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, err
	}

	lifetimeStart := today
	if first := s.Earliest(); first != "" && first < today {
		lifetimeStart = first
	}
	lifetime, err := Aggregate(s, lifetimeStart, today)
	if err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, err
	}

	xp, err := TotalXP(s, today, e.xpMode, streak.Current)
	if err != nil {
		return domain.GamificationStats{}, domain.AchievementStats{}, err
	}
	level := GetLevelFromXP(xp)
	next := GetNextLevel(xp)
	bonus := GetStreakMultiplier(streak.Current)

	ach := domain.AchievementStats{
		CurrentStreak:    streak.Current,
		BestStreak:       best,
		TotalCompletions: lifetime.CompletedCount,
		TotalPerfectDays: lifetime.PerfectDays,
		CategoryCounts:   lifetime.CategoryCounts,
		Level:            level.Level,
	}
	set := domain.NewUnlockedSet(in.Unlocked...)
	newly := EvaluateAchievements(e.catalog, ach, set)

	return domain.GamificationStats{
		Period:                 string(period),
		StartDate:              start,
		EndDate:                today,
		CurrentStreak:          streak.Current,
		LongestStreak:          streak.Longest,
		BestStreak:             best,
		CompletedCount:         window.CompletedCount,
		TotalTasks:             window.TotalTasks,
		CompletionRate:         window.CompletionRate,
		TotalCompletions:       lifetime.CompletedCount,
		PerfectDays:            window.PerfectDays,
		TotalPerfectDays:       lifetime.PerfectDays,
		TotalXP:                xp,
		Level:                  level.Level,
		LevelName:              level.Name,
		LevelIcon:              level.Icon,
		XPToNextLevel:          next.XPNeeded,
		NextLevelProgress:      next.Progress,
		StreakMultiplier:       bonus.Multiplier,
		MultiplierLabel:        bonus.Label,
		CategoryCounts:         window.CategoryCounts,
		LifetimeCategoryCounts: lifetime.CategoryCounts,
		UnlockedAchievements:   set.Keys(),
		NewlyUnlocked:          newly,
	}, ach, nil
}

func (e *Engine) routineStats(s *Snapshot, period Period, today string) ([]domain.RoutineStats, error) {
	if period == "" {
		period = Period7Days
	}
	start, err := period.Window(today, s.Earliest())
	if err != nil {
		return nil, err
	}

	out := make([]domain.RoutineStats, 0, len(s.routines))
	for _, r := range s.routines {
		st, err := RoutineStreak(s, r, today, e.lookback)
		if err != nil {
			return nil, err
		}
		t, err := AggregateRoutine(s, r, start, today)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RoutineStats{
			RoutineID:          r.ID,
			Name:               r.Name,
			TimeCategories:     slices.Clone(r.TimeCategories),
			CurrentStreak:      st.Current,
			BestStreak:         st.Longest,
			PeriodCompletions:  t.CompletedCount,
			TotalTasks:         t.TotalTasks,
			CompletionRate:     t.CompletionRate,
			CategoryCounts:     t.CategoryCounts,
			PerfectDays:        t.PerfectDays,
			LifetimeCompletion: s.RoutineCompletions(r.ID, today),
		})
	}
	SortRoutineStats(out)
	return out, nil
}

// SortRoutineStats orders by completion rate desc, then current streak
// desc, then name and ID ascending.
func SortRoutineStats(rs []domain.RoutineStats) {
	slices.SortStableFunc(rs, func(a, b domain.RoutineStats) int {
		if c := cmp.Compare(b.CompletionRate, a.CompletionRate); c != 0 {
			return c
		}
		if c := cmp.Compare(b.CurrentStreak, a.CurrentStreak); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.RoutineID, b.RoutineID)
	})
}
