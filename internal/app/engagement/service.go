package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/infra/metrics"
	"github.com/routine-minder/minder/internal/logger"
)

// Service runs the engine over a store and keeps the two persisted
// ratchets (unlocked achievements, best streak) up to date.
type Service struct {
	store  domain.Store
	engine *Engine
	now    func() time.Time
}

// NewService creates a store-backed engagement service.
func NewService(store domain.Store, engine *Engine) *Service {
	if engine == nil {
		engine = NewEngine(Config{})
	}
	return &Service{store: store, engine: engine, now: time.Now}
}

// SetClock overrides the unlock timestamp source. Used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine { return s.engine }

// Dashboard computes the aggregate view for period and persists anything
// newly earned. NewlyUnlocked is set on the result.
func (s *Service) Dashboard(ctx context.Context, period Period, today string) (domain.GamificationStats, error) {
	res, err := s.run(ctx, "dashboard", period, today)
	if err != nil {
		return domain.GamificationStats{}, err
	}
	return res.Stats, nil
}

// RoutineStats computes the per-routine view for period.
func (s *Service) RoutineStats(ctx context.Context, period Period, today string) ([]domain.RoutineStats, error) {
	res, err := s.run(ctx, "routines", period, today)
	if err != nil {
		return nil, err
	}
	return res.Routines, nil
}

// Achievements returns the catalog with progress and unlock times.
func (s *Service) Achievements(ctx context.Context, today string) ([]domain.AchievementProgress, error) {
	res, err := s.run(ctx, "achievements", Period7Days, today)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.store.ListUnlockedAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}
	return Board(s.engine.catalog, res.Achievement, unlocked), nil
}

// Sync evaluates achievements and the best streak without returning a view.
// It returns the definitions unlocked by this call.
func (s *Service) Sync(ctx context.Context, today string) ([]domain.AchievementDef, error) {
	res, err := s.run(ctx, "sync", Period7Days, today)
	if err != nil {
		return nil, err
	}
	defs := make([]domain.AchievementDef, 0, len(res.Stats.NewlyUnlocked))
	for _, key := range res.Stats.NewlyUnlocked {
		if def, ok := FindAchievement(s.engine.catalog, key); ok {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (s *Service) run(ctx context.Context, view string, period Period, today string) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.StatsComputeSeconds.Observe(time.Since(start).Seconds())
		metrics.StatsComputations.WithLabelValues(view).Inc()
	}()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load snapshot: %w", err)
	}
	saved, err := s.store.BestStreak(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load best streak: %w", err)
	}
	unlocked, err := s.store.ListUnlockedAchievements(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list unlocked achievements: %w", err)
	}
	keys := make([]string, len(unlocked))
	for i, u := range unlocked {
		keys[i] = u.Key
	}

	res, err := s.engine.Compute(Input{
		Routines:        snap.Routines,
		Completions:     snap.Completions,
		Period:          period,
		Today:           today,
		SavedBestStreak: saved,
		Unlocked:        keys,
	})
	if err != nil {
		return Result{}, err
	}

	if res.Stats.BestStreak > saved {
		if err := s.store.RaiseBestStreak(ctx, res.Stats.BestStreak); err != nil {
			return Result{}, fmt.Errorf("save best streak: %w", err)
		}
	}

	// The engine reports keys new to the set it was given; the store decides
	// which of them are new on disk when two requests race.
	var persisted []string
	for _, key := range res.Stats.NewlyUnlocked {
		isNew, err := s.store.UnlockAchievement(ctx, key, s.now())
		if err != nil {
			return Result{}, fmt.Errorf("unlock %s: %w", key, err)
		}
		if !isNew {
			continue
		}
		persisted = append(persisted, key)
		def, _ := FindAchievement(s.engine.catalog, key)
		metrics.AchievementsUnlocked.WithLabelValues(string(def.Type)).Inc()
		logger.Info("achievement unlocked", "key", key, "name", def.Name)
	}
	res.Stats.NewlyUnlocked = persisted

	logger.Debug("stats computed", "view", view, "period", res.Stats.Period,
		"streak", res.Stats.CurrentStreak, "xp", res.Stats.TotalXP)
	return res, nil
}
