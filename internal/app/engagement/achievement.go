package engagement

import (
	"math"
	"time"

	"github.com/routine-minder/minder/internal/domain"
)

// ─── Achievement Catalog ────────────────────────────────────────────────────
// Static configuration. Keys are stable: they are what gets persisted.

// Catalog returns the achievement definitions in display order.
func Catalog() []domain.AchievementDef {
	return []domain.AchievementDef{
		// ── Streaks ────────────────────────────────────────────────────
		{Key: "streak_3", Type: domain.AchievementStreak, Name: "Getting Started", Description: "Reach a 3 day streak", Icon: "🔥", Requirement: 3},
		{Key: "streak_7", Type: domain.AchievementStreak, Name: "Week Warrior", Description: "Reach a 7 day streak", Icon: "📅", Requirement: 7},
		{Key: "streak_14", Type: domain.AchievementStreak, Name: "Fortnight Focus", Description: "Reach a 14 day streak", Icon: "💪", Requirement: 14},
		{Key: "streak_30", Type: domain.AchievementStreak, Name: "Monthly Master", Description: "Reach a 30 day streak", Icon: "🏅", Requirement: 30},
		{Key: "streak_100", Type: domain.AchievementStreak, Name: "Centurion", Description: "Reach a 100 day streak", Icon: "💯", Requirement: 100},
		{Key: "streak_365", Type: domain.AchievementStreak, Name: "Year of Habits", Description: "Reach a 365 day streak", Icon: "🌟", Requirement: 365},
		{Key: "on_fire", Type: domain.AchievementStreak, Name: "On Fire", Description: "Hold a live 30 day streak", Icon: "☄️", Requirement: 30, UseCurrentStreak: true},

		// ── Completions ────────────────────────────────────────────────
		{Key: "first_completion", Type: domain.AchievementCompletion, Name: "First Step", Description: "Complete your first routine", Icon: "👣", Requirement: 1},
		{Key: "completions_50", Type: domain.AchievementCompletion, Name: "Habit Builder", Description: "Complete 50 routines", Icon: "🧱", Requirement: 50},
		{Key: "completions_100", Type: domain.AchievementCompletion, Name: "Century", Description: "Complete 100 routines", Icon: "🎯", Requirement: 100},
		{Key: "completions_500", Type: domain.AchievementCompletion, Name: "Dedicated", Description: "Complete 500 routines", Icon: "🚀", Requirement: 500},
		{Key: "completions_1000", Type: domain.AchievementCompletion, Name: "Unstoppable", Description: "Complete 1000 routines", Icon: "⚡", Requirement: 1000},

		// ── Perfect Days ───────────────────────────────────────────────
		{Key: "perfect_day_1", Type: domain.AchievementPerfectDay, Name: "Perfect Day", Description: "Finish every routine in a day", Icon: "✨", Requirement: 1},
		{Key: "perfect_days_7", Type: domain.AchievementPerfectDay, Name: "Perfect Week", Description: "Have 7 perfect days", Icon: "🌈", Requirement: 7},
		{Key: "perfect_days_30", Type: domain.AchievementPerfectDay, Name: "Flawless Month", Description: "Have 30 perfect days", Icon: "💎", Requirement: 30},
		{Key: "perfect_days_100", Type: domain.AchievementPerfectDay, Name: "Perfectionist", Description: "Have 100 perfect days", Icon: "👑", Requirement: 100},

		// ── Time of Day ────────────────────────────────────────────────
		{Key: "early_bird", Type: domain.AchievementTimeCategory, Name: "Early Bird", Description: "Complete 50 morning routines", Icon: "🌅", Requirement: 50, Category: domain.CategoryAM},
		{Key: "midday_master", Type: domain.AchievementTimeCategory, Name: "Midday Master", Description: "Complete 50 noon routines", Icon: "☀️", Requirement: 50, Category: domain.CategoryNoon},
		{Key: "night_owl", Type: domain.AchievementTimeCategory, Name: "Night Owl", Description: "Complete 50 evening routines", Icon: "🦉", Requirement: 50, Category: domain.CategoryPM},

		// ── Levels ─────────────────────────────────────────────────────
		{Key: "level_3", Type: domain.AchievementLevel, Name: "Practitioner", Description: "Reach level 3", Icon: "🌳", Requirement: 3},
		{Key: "level_5", Type: domain.AchievementLevel, Name: "Master", Description: "Reach level 5", Icon: "🏆", Requirement: 5},
		{Key: "level_6", Type: domain.AchievementLevel, Name: "Legend", Description: "Reach the top level", Icon: "🐉", Requirement: 6},
	}
}

// FindAchievement looks up a definition by key.
func FindAchievement(catalog []domain.AchievementDef, key string) (domain.AchievementDef, bool) {
	for _, def := range catalog {
		if def.Key == key {
			return def, true
		}
	}
	return domain.AchievementDef{}, false
}

// CurrentValue selects the statistic def is measured on.
func CurrentValue(def domain.AchievementDef, st domain.AchievementStats) int {
	switch def.Type {
	case domain.AchievementStreak:
		if def.UseCurrentStreak {
			return st.CurrentStreak
		}
		return st.BestStreak
	case domain.AchievementCompletion:
		return st.TotalCompletions
	case domain.AchievementPerfectDay:
		return st.TotalPerfectDays
	case domain.AchievementTimeCategory:
		return st.CategoryCounts.Get(def.Category)
	case domain.AchievementLevel:
		return st.Level
	}
	return 0
}

// IsMet reports whether def's condition holds right now.
func IsMet(def domain.AchievementDef, st domain.AchievementStats) bool {
	return CurrentValue(def, st) >= def.Requirement
}

// GetAchievementProgress measures def against st. An achievement that is
// already unlocked, or whose condition holds, is reported at 100%.
func GetAchievementProgress(def domain.AchievementDef, st domain.AchievementStats, unlocked bool) domain.AchievementProgress {
	cur := CurrentValue(def, st)
	p := domain.AchievementProgress{AchievementDef: def, Current: cur}
	if unlocked || cur >= def.Requirement {
		p.Unlocked = true
		p.Progress = 100
		return p
	}
	p.Progress = int(math.Round(float64(max(cur, 0)) / float64(def.Requirement) * 100))
	p.Remaining = def.Requirement - cur
	return p
}

// EvaluateAchievements adds every met achievement to set and returns the
// keys that were new, in catalog order. Nothing is ever removed from set.
func EvaluateAchievements(catalog []domain.AchievementDef, st domain.AchievementStats, set *domain.UnlockedSet) []string {
	var newly []string
	for _, def := range catalog {
		if IsMet(def, st) && set.Add(def.Key) {
			newly = append(newly, def.Key)
		}
	}
	return newly
}

// Board builds the progress view of the whole catalog. Unlocked entries
// carry their unlock time.
func Board(catalog []domain.AchievementDef, st domain.AchievementStats, unlocked []domain.UnlockedAchievement) []domain.AchievementProgress {
	at := make(map[string]time.Time, len(unlocked))
	for _, u := range unlocked {
		at[u.Key] = u.UnlockedAt
	}
	out := make([]domain.AchievementProgress, 0, len(catalog))
	for _, def := range catalog {
		t, ok := at[def.Key]
		p := GetAchievementProgress(def, st, ok)
		if ok {
			p.UnlockedAt = &t
		}
		out = append(out, p)
	}
	return out
}
