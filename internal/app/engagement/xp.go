package engagement

import (
	"fmt"
	"math"
	"strings"

	"github.com/routine-minder/minder/internal/dates"
)

// ─── Streak Multiplier ──────────────────────────────────────────────────────

// BaseXP is awarded for one completed slot before the streak multiplier.
const BaseXP = 10

// StreakBonus is one tier of the multiplier step function.
type StreakBonus struct {
	MinStreak  int     `json:"minStreak"`
	Multiplier float64 `json:"multiplier"`
	Label      string  `json:"label,omitempty"`
}

// Highest tier first; only one tier applies.
var streakBonuses = []StreakBonus{
	{MinStreak: 30, Multiplier: 2.0, Label: "On Fire!"},
	{MinStreak: 14, Multiplier: 1.5, Label: "Streak Bonus"},
	{MinStreak: 7, Multiplier: 1.25, Label: "Week Warrior"},
}

// GetStreakMultiplier returns the highest tier whose threshold is <= streak.
func GetStreakMultiplier(streak int) StreakBonus {
	for _, b := range streakBonuses {
		if streak >= b.MinStreak {
			return b
		}
	}
	return StreakBonus{Multiplier: 1.0}
}

// CalculateCompletionXP returns round(BaseXP * multiplier(streak)).
func CalculateCompletionXP(streak int) int {
	return int(math.Round(BaseXP * GetStreakMultiplier(streak).Multiplier))
}

// ─── Total XP ───────────────────────────────────────────────────────────────

// XPMode picks how historical completions are priced.
type XPMode string

const (
	// XPModeReplay prices each completion with the streak as of its own day.
	XPModeReplay XPMode = "replay"
	// XPModeUniform prices every completion with today's streak.
	XPModeUniform XPMode = "uniform"
)

// ParseXPMode accepts "replay" or "uniform"; empty means replay.
func ParseXPMode(s string) (XPMode, error) {
	switch XPMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", XPModeReplay:
		return XPModeReplay, nil
	case XPModeUniform:
		return XPModeUniform, nil
	}
	return "", fmt.Errorf("unknown xp mode %q", s)
}

// TotalXP sums XP over every counted completion up to today.
func TotalXP(s *Snapshot, today string, mode XPMode, currentStreak int) (int, error) {
	if mode == XPModeUniform {
		return UniformXP(s, today, currentStreak), nil
	}
	return ReplayXP(s, today)
}

// UniformXP applies the multiplier of currentStreak to every completion.
func UniformXP(s *Snapshot, today string, currentStreak int) int {
	return s.TotalCompletions(today) * CalculateCompletionXP(currentStreak)
}

// ReplayXP walks history from the first completion to today. The streak as
// of day D is the run ending on D when D is complete, otherwise the run
// ending on D-1, which is what CalculateStreak would report with today=D.
func ReplayXP(s *Snapshot, today string) (int, error) {
	if err := dates.Validate(today); err != nil {
		return 0, err
	}
	first := s.Earliest()
	if first == "" || first > today {
		return 0, nil
	}
	days, err := dates.Enumerate(first, today)
	if err != nil {
		return 0, err
	}

	total, prevRun := 0, 0
	for _, d := range days {
		run, streakAsOf := 0, prevRun
		if s.DayComplete(d) {
			run = prevRun + 1
			streakAsOf = run
		}
		if n := s.CompletedOn(d); n > 0 {
			total += n * CalculateCompletionXP(streakAsOf)
		}
		prevRun = run
	}
	return total, nil
}
