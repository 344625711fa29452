package domain

import "time"

// ─── Category Counts ────────────────────────────────────────────────────────

// CategoryCounts tallies completed slots per time category.
type CategoryCounts struct {
	AM   int `json:"AM"`
	Noon int `json:"NOON"`
	PM   int `json:"PM"`
	All  int `json:"ALL"`
}

// Add increments the counter for c. Unknown categories are ignored.
func (cc *CategoryCounts) Add(c TimeCategory) {
	switch c {
	case CategoryAM:
		cc.AM++
	case CategoryNoon:
		cc.Noon++
	case CategoryPM:
		cc.PM++
	case CategoryAll:
		cc.All++
	}
}

// Get returns the counter for c.
func (cc CategoryCounts) Get(c TimeCategory) int {
	switch c {
	case CategoryAM:
		return cc.AM
	case CategoryNoon:
		return cc.Noon
	case CategoryPM:
		return cc.PM
	case CategoryAll:
		return cc.All
	}
	return 0
}

// Total sums every category.
func (cc CategoryCounts) Total() int {
	return cc.AM + cc.Noon + cc.PM + cc.All
}

// ─── Stats Outputs ──────────────────────────────────────────────────────────
// Derived on every query, never persisted.

// GamificationStats is the dashboard view for one period.
type GamificationStats struct {
	Period    string `json:"period"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`

	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"` // inside the lookback window
	BestStreak    int `json:"bestStreak"`    // max of LongestStreak and the saved high-water mark

	CompletedCount int `json:"completedCount"`
	TotalTasks     int `json:"totalTasks"`
	CompletionRate int `json:"completionRate"` // integer percent

	TotalCompletions int `json:"totalCompletions"`
	PerfectDays      int `json:"perfectDays"`
	TotalPerfectDays int `json:"totalPerfectDays"`

	TotalXP           int     `json:"totalXP"`
	Level             int     `json:"level"`
	LevelName         string  `json:"levelName"`
	LevelIcon         string  `json:"levelIcon"`
	XPToNextLevel     int     `json:"xpToNextLevel"`
	NextLevelProgress int     `json:"nextLevelProgress"` // 0-100
	StreakMultiplier  float64 `json:"streakMultiplier"`
	MultiplierLabel   string  `json:"multiplierLabel,omitempty"`

	CategoryCounts         CategoryCounts `json:"categoryCounts"`
	LifetimeCategoryCounts CategoryCounts `json:"lifetimeCategoryCounts"`

	UnlockedAchievements []string `json:"unlockedAchievements"`
	NewlyUnlocked        []string `json:"newlyUnlocked,omitempty"`
}

// RoutineStats is the per-routine view for one period.
type RoutineStats struct {
	RoutineID          string         `json:"routineId"`
	Name               string         `json:"name"`
	TimeCategories     []TimeCategory `json:"timeCategories"`
	CurrentStreak      int            `json:"currentStreak"`
	BestStreak         int            `json:"bestStreak"`
	PeriodCompletions  int            `json:"periodCompletions"`
	TotalTasks         int            `json:"totalTasks"`
	CompletionRate     int            `json:"completionRate"`
	CategoryCounts     CategoryCounts `json:"categoryCounts"`
	PerfectDays        int            `json:"perfectDays"` // days with all of this routine's slots done
	LifetimeCompletion int            `json:"lifetimeCompletions"`
}

// ─── Levels ─────────────────────────────────────────────────────────────────

// Level is one rung of the XP ladder.
type Level struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
	Icon      string `json:"icon"`
}

// NextLevel describes the distance to the following rung.
// Next is nil at the top of the ladder.
type NextLevel struct {
	Next     *Level `json:"nextLevel"`
	XPNeeded int    `json:"xpNeeded"`
	Progress int    `json:"progress"` // 0-100
}

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementType selects which statistic an achievement is measured on.
type AchievementType string

const (
	AchievementStreak       AchievementType = "streak"
	AchievementCompletion   AchievementType = "completion"
	AchievementPerfectDay   AchievementType = "perfect_day"
	AchievementTimeCategory AchievementType = "time_category"
	AchievementLevel        AchievementType = "level"
)

// AchievementDef is static catalog data.
type AchievementDef struct {
	Key         string          `json:"key"`
	Type        AchievementType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Requirement int             `json:"requirement"`

	// Category is set for time_category achievements.
	Category TimeCategory `json:"category,omitempty"`
	// UseCurrentStreak measures streak achievements on the live streak
	// instead of the best streak.
	UseCurrentStreak bool `json:"useCurrentStreak,omitempty"`
}

// AchievementStats is the snapshot achievement conditions are measured on.
type AchievementStats struct {
	CurrentStreak    int            `json:"currentStreak"`
	BestStreak       int            `json:"bestStreak"`
	TotalCompletions int            `json:"totalCompletions"`
	TotalPerfectDays int            `json:"totalPerfectDays"`
	CategoryCounts   CategoryCounts `json:"categoryCounts"`
	Level            int            `json:"level"`
}

// AchievementProgress pairs a definition with the user's distance to it.
type AchievementProgress struct {
	AchievementDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
	Current    int        `json:"current"`
	Progress   int        `json:"progress"` // 0-100
	Remaining  int        `json:"remaining"`
}

// UnlockedAchievement records when an achievement was earned.
type UnlockedAchievement struct {
	Key        string    `json:"key"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// UnlockedSet is an insertion-ordered set of achievement keys.
// It only grows: there is no Remove.
type UnlockedSet struct {
	keys  []string
	index map[string]struct{}
}

// NewUnlockedSet builds a set from keys, dropping duplicates.
func NewUnlockedSet(keys ...string) *UnlockedSet {
	s := &UnlockedSet{index: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts key and reports whether it was new.
func (s *UnlockedSet) Add(key string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.keys = append(s.keys, key)
	return true
}

// Has reports whether key is in the set.
func (s *UnlockedSet) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Keys returns the keys in unlock order. The result is never nil.
func (s *UnlockedSet) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of keys.
func (s *UnlockedSet) Len() int {
	return len(s.keys)
}
