package engagement

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
)

// Period selects the date window of a stats query.
type Period string

const (
	Period7Days  Period = "7d"
	Period30Days Period = "30d"
	PeriodYear   Period = "1y"
	PeriodYTD    Period = "ytd"
	PeriodAll    Period = "all"
)

// EpochFloor is where an "all" window starts unless history predates it.
const EpochFloor = "2000-01-01"

// maxPeriodDays caps "<N>d" selectors.
const maxPeriodDays = 3660

// ParsePeriod accepts "7d", "30d", "1y", "ytd", "all" and any "<N>d" with
// 1 <= N <= 3660. The empty string means 7d.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch Period(s) {
	case "":
		return Period7Days, nil
	case PeriodYear, PeriodYTD, PeriodAll:
		return Period(s), nil
	}
	if n, ok := periodDays(Period(s)); ok {
		return PeriodFromDays(n), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, s)
}

// PeriodFromDays builds the rolling window ending today of n days.
func PeriodFromDays(n int) Period {
	if n < 1 {
		n = 1
	}
	if n > maxPeriodDays {
		n = maxPeriodDays
	}
	return Period(strconv.Itoa(n) + "d")
}

func periodDays(p Period) (int, bool) {
	s := string(p)
	if !strings.HasSuffix(s, "d") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil || n < 1 || n > maxPeriodDays {
		return 0, false
	}
	return n, true
}

// Window returns the first date of p's window; the window always ends on
// today. earliest is the first date with any completion ("" for none) and
// only matters for PeriodAll, which starts at EpochFloor or at earliest when
// that is older.
func (p Period) Window(today, earliest string) (string, error) {
	if err := dates.Validate(today); err != nil {
		return "", err
	}
	switch p {
	case PeriodYear:
		return dates.DaysAgo(today, 364)
	case PeriodYTD:
		return dates.StartOfYear(today)
	case PeriodAll:
		if earliest != "" {
			if err := dates.Validate(earliest); err != nil {
				return "", err
			}
			return dates.Min(EpochFloor, earliest), nil
		}
		return EpochFloor, nil
	}
	n, ok := periodDays(p)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, p)
	}
	return dates.DaysAgo(today, n-1)
}

// PeriodTotals are the windowed tallies of one aggregation.
type PeriodTotals struct {
	Start          string                `json:"start"`
	End            string                `json:"end"`
	Days           int                   `json:"days"`
	TotalTasks     int                   `json:"totalTasks"`
	CompletedCount int                   `json:"completedCount"`
	CompletionRate int                   `json:"completionRate"`
	PerfectDays    int                   `json:"perfectDays"`
	CategoryCounts domain.CategoryCounts `json:"categoryCounts"`
}

// Aggregate tallies expected and completed slots of every active routine
// over [start, end]. A perfect day is one where DayComplete holds.
func Aggregate(s *Snapshot, start, end string) (PeriodTotals, error) {
	return aggregate(s, s.routines, start, end, s.DayComplete)
}

// AggregateRoutine tallies one routine. Its perfect days are the days on
// which all of its own categories were done.
func AggregateRoutine(s *Snapshot, r domain.Routine, start, end string) (PeriodTotals, error) {
	return aggregate(s, []domain.Routine{r}, start, end, func(d string) bool {
		return s.RoutineDayComplete(r, d)
	})
}

func aggregate(s *Snapshot, routines []domain.Routine, start, end string, perfect DayPredicate) (PeriodTotals, error) {
	days, err := dates.Enumerate(start, end)
	if err != nil {
		return PeriodTotals{}, err
	}
	t := PeriodTotals{Start: start, End: end, Days: len(days)}
	for _, d := range days {
		for _, r := range routines {
			t.TotalTasks += len(r.TimeCategories)
			for _, c := range r.TimeCategories {
				if s.IsDone(r.ID, d, c) {
					t.CompletedCount++
					t.CategoryCounts.Add(c)
				}
			}
		}
		if perfect(d) {
			t.PerfectDays++
		}
	}
	t.CompletionRate = CompletionRate(t.CompletedCount, t.TotalTasks)
	return t, nil
}

// CompletionRate is round(completed/total*100) clamped to [0, 100].
// A zero denominator yields 0.
func CompletionRate(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	rate := int(math.Round(float64(completed) / float64(total) * 100))
	return min(rate, 100)
}
