// Package engagement implements the Routine Minder statistics engine:
// streaks, period completion rates, perfect days, XP with streak
// multipliers, the level ladder and achievement progress.
//
// Everything except Service is pure computation over a Snapshot. Nothing
// here reads the wall clock; "today" is always passed in.
package engagement

import (
	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
)

// DefaultLookbackDays bounds how far back streaks are searched.
const DefaultLookbackDays = 365

// DayPredicate reports whether a date counts toward a streak.
type DayPredicate func(date string) bool

// Streak holds the current and longest run of complete days.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// CalculateStreak walks the window [today-lookback+1, today].
//
// Current counts consecutive complete days backward from today. When today
// is not complete yet the walk starts from yesterday: an unfinished today
// does not break a streak until the day is over.
// Longest is the longest run anywhere in the window, the current run included.
func CalculateStreak(today string, lookbackDays int, complete DayPredicate) (Streak, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	start, err := dates.AddDays(today, -(lookbackDays - 1))
	if err != nil {
		return Streak{}, err
	}
	days, err := dates.Enumerate(start, today)
	if err != nil {
		return Streak{}, err
	}

	flags := make([]bool, len(days))
	var st Streak
	run := 0
	for i, d := range days {
		flags[i] = complete(d)
		if flags[i] {
			run++
			if run > st.Longest {
				st.Longest = run
			}
		} else {
			run = 0
		}
	}

	i := len(days) - 1
	if !flags[i] {
		i--
	}
	for ; i >= 0 && flags[i]; i-- {
		st.Current++
	}
	return st, nil
}

// AggregateStreak is the dashboard streak: a day counts when every active
// routine had every category done.
func AggregateStreak(s *Snapshot, today string, lookbackDays int) (Streak, error) {
	return CalculateStreak(today, lookbackDays, s.DayComplete)
}

// RoutineStreak counts days on which all of r's own categories were done.
func RoutineStreak(s *Snapshot, r domain.Routine, today string, lookbackDays int) (Streak, error) {
	return CalculateStreak(today, lookbackDays, func(date string) bool {
		return s.RoutineDayComplete(r, date)
	})
}
