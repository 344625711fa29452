package engagement_test

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
)

const today = "2025-03-10"

func routine(id string, cats ...domain.TimeCategory) domain.Routine {
	return domain.Routine{ID: id, Name: id, TimeCategories: cats, IsActive: true}
}

var stamp = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func done(routineID, date string, c domain.TimeCategory) domain.Completion {
	stamp = stamp.Add(time.Second)
	return domain.Completion{
		ID: routineID + "/" + date + "/" + string(c), RoutineID: routineID,
		Date: date, TimeCategory: c, Completed: true, CompletedAt: stamp,
	}
}

// doneRange marks c of routineID complete on every day in [from, to].
func doneRange(t *testing.T, routineID, from, to string, c domain.TimeCategory) []domain.Completion {
	t.Helper()
	days, err := dates.Enumerate(from, to)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	out := make([]domain.Completion, 0, len(days))
	for _, d := range days {
		out = append(out, done(routineID, d, c))
	}
	return out
}

func snapshot(t *testing.T, rs []domain.Routine, cs []domain.Completion) *engagement.Snapshot {
	t.Helper()
	s, err := engagement.NewSnapshot(rs, cs)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}

func compute(t *testing.T, in engagement.Input) engagement.Result {
	t.Helper()
	if in.Today == "" {
		in.Today = today
	}
	res, err := engagement.NewEngine(engagement.Config{}).Compute(in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return res
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Calculator
// ═══════════════════════════════════════════════════════════════════════════

func completeOn(days ...string) engagement.DayPredicate {
	return func(d string) bool { return slices.Contains(days, d) }
}

func TestStreak_TodayComplete(t *testing.T) {
	st, err := engagement.CalculateStreak(today, 365, completeOn("2025-03-08", "2025-03-09", "2025-03-10"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Current != 3 || st.Longest != 3 {
		t.Errorf("got %+v, want current=3 longest=3", st)
	}
}

func TestStreak_TodayIncompleteDoesNotBreak(t *testing.T) {
	st, _ := engagement.CalculateStreak(today, 365, completeOn("2025-03-08", "2025-03-09"))
	if st.Current != 2 {
		t.Errorf("current = %d, want 2", st.Current)
	}
}

func TestStreak_YesterdayMissedBreaks(t *testing.T) {
	st, _ := engagement.CalculateStreak(today, 365, completeOn("2025-03-07", "2025-03-08"))
	if st.Current != 0 {
		t.Errorf("current = %d, want 0", st.Current)
	}
	if st.Longest != 2 {
		t.Errorf("longest = %d, want 2", st.Longest)
	}
}

func TestStreak_LongestAcrossGap(t *testing.T) {
	st, _ := engagement.CalculateStreak(today, 365, completeOn(
		"2025-02-01", "2025-02-02", "2025-02-03", "2025-02-04",
		"2025-03-09", "2025-03-10",
	))
	if st.Current != 2 || st.Longest != 4 {
		t.Errorf("got %+v, want current=2 longest=4", st)
	}
}

func TestStreak_LookbackBoundsWindow(t *testing.T) {
	st, _ := engagement.CalculateStreak(today, 3, completeOn(
		"2025-03-05", "2025-03-06", "2025-03-07", "2025-03-08", "2025-03-09", "2025-03-10",
	))
	if st.Current != 3 || st.Longest != 3 {
		t.Errorf("got %+v, want both capped at 3", st)
	}
}

func TestStreak_LookbackOneTodayIncomplete(t *testing.T) {
	st, _ := engagement.CalculateStreak(today, 1, completeOn("2025-03-09"))
	if st.Current != 0 || st.Longest != 0 {
		t.Errorf("got %+v, want zero", st)
	}
}

func TestStreak_DefaultLookback(t *testing.T) {
	calls := 0
	_, err := engagement.CalculateStreak(today, 0, func(string) bool { calls++; return false })
	if err != nil {
		t.Fatal(err)
	}
	if calls != engagement.DefaultLookbackDays {
		t.Errorf("predicate called %d times, want %d", calls, engagement.DefaultLookbackDays)
	}
}

func TestStreak_MalformedToday(t *testing.T) {
	_, err := engagement.CalculateStreak("2025-3-10", 7, completeOn())
	if !errors.Is(err, dates.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}
}

func TestStreak_AcrossYearBoundary(t *testing.T) {
	st, _ := engagement.CalculateStreak("2025-01-01", 365, completeOn("2024-12-30", "2024-12-31", "2025-01-01"))
	if st.Current != 3 {
		t.Errorf("current = %d, want 3", st.Current)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Snapshot (completion rule)
// ═══════════════════════════════════════════════════════════════════════════

func TestSnapshot_LatestRecordWins(t *testing.T) {
	on := done("r", "2025-03-09", domain.CategoryAM)
	off := on
	off.Completed = false
	off.CompletedAt = on.CompletedAt.Add(time.Minute)

	s := snapshot(t, []domain.Routine{routine("r", domain.CategoryAM)}, []domain.Completion{off, on})
	if s.IsDone("r", "2025-03-09", domain.CategoryAM) {
		t.Error("later un-toggle should win regardless of input order")
	}
}

func TestSnapshot_TieBrokenByInputOrder(t *testing.T) {
	on := done("r", "2025-03-09", domain.CategoryAM)
	off := on
	off.Completed = false

	s := snapshot(t, []domain.Routine{routine("r", domain.CategoryAM)}, []domain.Completion{off, on})
	if !s.IsDone("r", "2025-03-09", domain.CategoryAM) {
		t.Error("later record in input should win a timestamp tie")
	}
}

func TestSnapshot_IgnoresStaleAndInactive(t *testing.T) {
	paused := routine("p", domain.CategoryAM)
	paused.IsActive = false
	s := snapshot(t,
		[]domain.Routine{routine("r", domain.CategoryAM), paused},
		[]domain.Completion{
			done("r", "2025-03-09", domain.CategoryPM), // category no longer scheduled
			done("p", "2025-03-09", domain.CategoryAM), // inactive routine
			done("ghost", "2025-03-09", domain.CategoryAM),
		})
	if s.TotalCompletions(today) != 0 {
		t.Errorf("TotalCompletions = %d, want 0", s.TotalCompletions(today))
	}
	if s.Earliest() != "" {
		t.Errorf("Earliest = %q, want empty", s.Earliest())
	}
	if len(s.Routines()) != 1 {
		t.Errorf("Routines = %d, want 1 active", len(s.Routines()))
	}
}

func TestSnapshot_NoRoutinesNoCompleteDay(t *testing.T) {
	s := snapshot(t, nil, nil)
	if s.DayComplete(today) {
		t.Error("a day cannot be complete with zero routines")
	}
}

func TestSnapshot_MalformedCompletionDate(t *testing.T) {
	c := done("r", "2025-02-30", domain.CategoryAM)
	_, err := engagement.NewSnapshot([]domain.Routine{routine("r", domain.CategoryAM)}, []domain.Completion{c})
	if !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}
}

func TestSnapshot_DayCompleteNeedsEveryRoutine(t *testing.T) {
	s := snapshot(t,
		[]domain.Routine{routine("a", domain.CategoryAM, domain.CategoryPM), routine("b", domain.CategoryNoon)},
		[]domain.Completion{
			done("a", "2025-03-09", domain.CategoryAM),
			done("a", "2025-03-09", domain.CategoryPM),
			done("a", "2025-03-10", domain.CategoryAM),
			done("a", "2025-03-10", domain.CategoryPM),
			done("b", "2025-03-10", domain.CategoryNoon),
		})
	if s.DayComplete("2025-03-09") {
		t.Error("2025-03-09 missing routine b")
	}
	if !s.DayComplete("2025-03-10") {
		t.Error("2025-03-10 should be complete")
	}
	a, _ := s.Routine("a")
	if !s.RoutineDayComplete(a, "2025-03-09") {
		t.Error("routine a complete on 2025-03-09")
	}
}

func TestSnapshot_LifetimeCategoryCounts(t *testing.T) {
	s := snapshot(t,
		[]domain.Routine{routine("a", domain.CategoryAM, domain.CategoryPM)},
		[]domain.Completion{
			done("a", "2024-01-05", domain.CategoryAM),
			done("a", "2025-03-01", domain.CategoryAM),
			done("a", "2025-03-01", domain.CategoryPM),
		})
	cc := s.LifetimeCategoryCounts(today)
	if cc.AM != 2 || cc.PM != 1 || cc.Noon != 0 {
		t.Errorf("lifetime = %+v", cc)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Period Aggregator
// ═══════════════════════════════════════════════════════════════════════════

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want engagement.Period
		ok   bool
	}{
		{"", engagement.Period7Days, true},
		{"7d", engagement.Period7Days, true},
		{"30D", engagement.Period30Days, true},
		{"1y", engagement.PeriodYear, true},
		{"ytd", engagement.PeriodYTD, true},
		{"all", engagement.PeriodAll, true},
		{"14d", "14d", true},
		{"0d", "", false},
		{"week", "", false},
	}
	for _, tt := range tests {
		got, err := engagement.ParsePeriod(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParsePeriod(%q) = %q, %v", tt.in, got, err)
		}
		if !tt.ok && !errors.Is(err, domain.ErrInvalidPeriod) {
			t.Errorf("ParsePeriod(%q) err = %v, want ErrInvalidPeriod", tt.in, err)
		}
	}
}

func TestPeriodWindow(t *testing.T) {
	tests := []struct {
		p        engagement.Period
		earliest string
		want     string
	}{
		{engagement.Period7Days, "", "2025-03-04"},
		{engagement.Period30Days, "", "2025-02-09"},
		{engagement.PeriodYear, "", "2024-03-11"},
		{engagement.PeriodYTD, "", "2025-01-01"},
		{engagement.PeriodFromDays(14), "", "2025-02-25"},
		{engagement.PeriodAll, "2023-06-01", engagement.EpochFloor},
		{engagement.PeriodAll, "", engagement.EpochFloor},
		{engagement.PeriodAll, "1999-05-01", "1999-05-01"},
	}
	for _, tt := range tests {
		got, err := tt.p.Window(today, tt.earliest)
		if err != nil || got != tt.want {
			t.Errorf("%s.Window(earliest=%q) = %q, %v; want %q", tt.p, tt.earliest, got, err, tt.want)
		}
	}
}

func TestAggregate_TotalTasksCountsSlots(t *testing.T) {
	s := snapshot(t,
		[]domain.Routine{routine("a", domain.CategoryAM, domain.CategoryNoon), routine("b", domain.CategoryPM)},
		[]domain.Completion{
			done("a", "2025-03-10", domain.CategoryAM),
			done("b", "2025-03-10", domain.CategoryPM),
			done("a", "2025-03-01", domain.CategoryAM), // outside window
		})
	got, err := engagement.Aggregate(s, "2025-03-04", today)
	if err != nil {
		t.Fatal(err)
	}
	if got.Days != 7 || got.TotalTasks != 21 {
		t.Errorf("days=%d totalTasks=%d, want 7 and 21", got.Days, got.TotalTasks)
	}
	if got.CompletedCount != 2 || got.CompletionRate != 10 {
		t.Errorf("completed=%d rate=%d, want 2 and 10", got.CompletedCount, got.CompletionRate)
	}
	if got.CategoryCounts.AM != 1 || got.CategoryCounts.PM != 1 {
		t.Errorf("windowed counts = %+v", got.CategoryCounts)
	}
}

func TestCompletionRate(t *testing.T) {
	tests := []struct{ done, total, want int }{
		{0, 0, 0},
		{5, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{7, 7, 100},
		{9, 7, 100},
	}
	for _, tt := range tests {
		if got := engagement.CompletionRate(tt.done, tt.total); got != tt.want {
			t.Errorf("CompletionRate(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// XP and Multiplier
// ═══════════════════════════════════════════════════════════════════════════

func TestGetStreakMultiplier(t *testing.T) {
	tests := []struct {
		streak int
		mult   float64
		label  string
	}{
		{0, 1.0, ""},
		{6, 1.0, ""},
		{7, 1.25, "Week Warrior"},
		{13, 1.25, "Week Warrior"},
		{14, 1.5, "Streak Bonus"},
		{29, 1.5, "Streak Bonus"},
		{30, 2.0, "On Fire!"},
		{400, 2.0, "On Fire!"},
	}
	for _, tt := range tests {
		b := engagement.GetStreakMultiplier(tt.streak)
		if b.Multiplier != tt.mult || b.Label != tt.label {
			t.Errorf("GetStreakMultiplier(%d) = %v %q, want %v %q", tt.streak, b.Multiplier, b.Label, tt.mult, tt.label)
		}
	}
}

func TestCalculateCompletionXP(t *testing.T) {
	tests := map[int]int{0: 10, 6: 10, 7: 13, 14: 15, 30: 20}
	for streak, want := range tests {
		if got := engagement.CalculateCompletionXP(streak); got != want {
			t.Errorf("CalculateCompletionXP(%d) = %d, want %d", streak, got, want)
		}
	}
}

// Eight consecutive complete days of one single-slot routine.
func eightDayHistory(t *testing.T) *engagement.Snapshot {
	return snapshot(t,
		[]domain.Routine{routine("r", domain.CategoryAM)},
		doneRange(t, "r", "2025-03-03", today, domain.CategoryAM))
}

func TestTotalXP_ReplayUsesStreakAsOfEachDay(t *testing.T) {
	xp, err := engagement.TotalXP(eightDayHistory(t), today, engagement.XPModeReplay, 8)
	if err != nil {
		t.Fatal(err)
	}
	// Days 1-6 at 10 XP, days 7-8 at the 1.25x tier.
	if xp != 6*10+2*13 {
		t.Errorf("replay xp = %d, want 86", xp)
	}
}

func TestTotalXP_UniformAppliesCurrentStreakToAll(t *testing.T) {
	xp, err := engagement.TotalXP(eightDayHistory(t), today, engagement.XPModeUniform, 8)
	if err != nil {
		t.Fatal(err)
	}
	if xp != 8*13 {
		t.Errorf("uniform xp = %d, want 104", xp)
	}
}

func TestTotalXP_ReplayIncompleteDayUsesPreviousRun(t *testing.T) {
	// 7 complete days then a partial today: today's single slot is priced at
	// the streak of 7 carried from yesterday.
	rs := []domain.Routine{routine("r", domain.CategoryAM, domain.CategoryPM)}
	cs := doneRange(t, "r", "2025-03-03", "2025-03-09", domain.CategoryAM)
	cs = append(cs, doneRange(t, "r", "2025-03-03", "2025-03-09", domain.CategoryPM)...)
	cs = append(cs, done("r", today, domain.CategoryAM))

	xp, err := engagement.ReplayXP(snapshot(t, rs, cs), today)
	if err != nil {
		t.Fatal(err)
	}
	want := 6*2*10 + 2*13 + 13
	if xp != want {
		t.Errorf("xp = %d, want %d", xp, want)
	}
}

func TestParseXPMode(t *testing.T) {
	if m, err := engagement.ParseXPMode(""); err != nil || m != engagement.XPModeReplay {
		t.Errorf("empty -> %q, %v", m, err)
	}
	if m, err := engagement.ParseXPMode("Uniform"); err != nil || m != engagement.XPModeUniform {
		t.Errorf("Uniform -> %q, %v", m, err)
	}
	if _, err := engagement.ParseXPMode("bonus"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Levels
// ═══════════════════════════════════════════════════════════════════════════

func TestGetLevelFromXP(t *testing.T) {
	tests := []struct {
		xp    int
		level int
		name  string
	}{
		{-5, 1, "Novice"},
		{0, 1, "Novice"},
		{99, 1, "Novice"},
		{100, 2, "Apprentice"},
		{499, 2, "Apprentice"},
		{500, 3, "Practitioner"},
		{1500, 4, "Expert"},
		{5000, 5, "Master"},
		{15000, 6, "Legend"},
		{1 << 30, 6, "Legend"},
	}
	for _, tt := range tests {
		l := engagement.GetLevelFromXP(tt.xp)
		if l.Level != tt.level || l.Name != tt.name {
			t.Errorf("GetLevelFromXP(%d) = %d %s, want %d %s", tt.xp, l.Level, l.Name, tt.level, tt.name)
		}
	}
}

func TestGetNextLevel(t *testing.T) {
	n := engagement.GetNextLevel(0)
	if n.Next == nil || n.Next.Level != 2 || n.XPNeeded != 100 || n.Progress != 0 {
		t.Errorf("GetNextLevel(0) = %+v", n)
	}

	n = engagement.GetNextLevel(300)
	if n.Next.Level != 3 || n.XPNeeded != 200 || n.Progress != 50 {
		t.Errorf("GetNextLevel(300) = %+v", n)
	}

	n = engagement.GetNextLevel(499)
	if n.Progress == 100 {
		t.Error("progress must not reach 100 below the next threshold")
	}

	n = engagement.GetNextLevel(15000)
	if n.Next != nil || n.XPNeeded != 0 || n.Progress != 100 {
		t.Errorf("GetNextLevel(max) = %+v", n)
	}
}

func TestLevels_MonotonicLadder(t *testing.T) {
	ls := engagement.Levels()
	if len(ls) != 6 {
		t.Fatalf("ladder has %d rungs, want 6", len(ls))
	}
	for i := 1; i < len(ls); i++ {
		if ls[i].Threshold <= ls[i-1].Threshold || ls[i].Level != ls[i-1].Level+1 {
			t.Errorf("rung %d out of order", i)
		}
	}
	ls[0].Name = "mutated"
	if engagement.Levels()[0].Name != "Novice" {
		t.Error("Levels must return a copy")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievements
// ═══════════════════════════════════════════════════════════════════════════

func TestCatalog_UniqueKeysAndValidTypes(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range engagement.Catalog() {
		if seen[def.Key] {
			t.Errorf("duplicate key %q", def.Key)
		}
		seen[def.Key] = true
		if def.Requirement <= 0 {
			t.Errorf("%s: requirement %d", def.Key, def.Requirement)
		}
		if def.Type == domain.AchievementTimeCategory && !def.Category.Valid() {
			t.Errorf("%s: time_category without category", def.Key)
		}
	}
}

func TestGetAchievementProgress_Locked(t *testing.T) {
	def, _ := engagement.FindAchievement(engagement.Catalog(), "streak_7")
	p := engagement.GetAchievementProgress(def, domain.AchievementStats{BestStreak: 3, CurrentStreak: 1}, false)
	if p.Unlocked || p.Current != 3 || p.Progress != 43 || p.Remaining != 4 {
		t.Errorf("progress = %+v", p)
	}
}

func TestGetAchievementProgress_AlreadyUnlocked(t *testing.T) {
	def, _ := engagement.FindAchievement(engagement.Catalog(), "streak_30")
	p := engagement.GetAchievementProgress(def, domain.AchievementStats{}, true)
	if !p.Unlocked || p.Progress != 100 || p.Remaining != 0 {
		t.Errorf("progress = %+v, want 100/0", p)
	}
}

func TestGetAchievementProgress_ValueByType(t *testing.T) {
	st := domain.AchievementStats{
		CurrentStreak: 2, BestStreak: 9, TotalCompletions: 25, TotalPerfectDays: 3,
		CategoryCounts: domain.CategoryCounts{AM: 10, PM: 40}, Level: 2,
	}
	cat := engagement.Catalog()
	tests := map[string]int{
		"streak_14":      9,
		"on_fire":        2,
		"completions_50": 25,
		"perfect_days_7": 3,
		"early_bird":     10,
		"night_owl":      40,
		"midday_master":  0,
		"level_3":        2,
	}
	for key, want := range tests {
		def, ok := engagement.FindAchievement(cat, key)
		if !ok {
			t.Fatalf("missing %s", key)
		}
		if got := engagement.CurrentValue(def, st); got != want {
			t.Errorf("CurrentValue(%s) = %d, want %d", key, got, want)
		}
	}
}

func TestEvaluateAchievements_Ratchet(t *testing.T) {
	cat := engagement.Catalog()
	set := domain.NewUnlockedSet()

	newly := engagement.EvaluateAchievements(cat, domain.AchievementStats{BestStreak: 7, CurrentStreak: 7, TotalCompletions: 1}, set)
	want := []string{"streak_3", "streak_7", "first_completion"}
	if !slices.Equal(newly, want) {
		t.Errorf("newly = %v, want %v", newly, want)
	}

	// Streak broken: nothing is re-locked and nothing new appears.
	newly = engagement.EvaluateAchievements(cat, domain.AchievementStats{TotalCompletions: 1}, set)
	if len(newly) != 0 {
		t.Errorf("newly after break = %v", newly)
	}
	if !set.Has("streak_7") || set.Len() != 3 {
		t.Errorf("set shrank: %v", set.Keys())
	}
}

func TestBoard_CarriesUnlockTimes(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	board := engagement.Board(engagement.Catalog(), domain.AchievementStats{},
		[]domain.UnlockedAchievement{{Key: "streak_3", UnlockedAt: at}})
	for _, p := range board {
		switch p.Key {
		case "streak_3":
			if !p.Unlocked || p.UnlockedAt == nil || !p.UnlockedAt.Equal(at) {
				t.Errorf("streak_3 = %+v", p)
			}
		default:
			if p.Unlocked {
				t.Errorf("%s unexpectedly unlocked", p.Key)
			}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Engine (end to end)
// ═══════════════════════════════════════════════════════════════════════════

func TestEngine_YesterdayCompleteSevenDayPeriod(t *testing.T) {
	res := compute(t, engagement.Input{
		Routines: []domain.Routine{routine("r", domain.CategoryAM, domain.CategoryNoon)},
		Completions: []domain.Completion{
			done("r", "2025-03-09", domain.CategoryAM),
			done("r", "2025-03-09", domain.CategoryNoon),
		},
		Period: engagement.Period7Days,
	})
	st := res.Stats
	if st.CurrentStreak != 1 || st.CompletionRate != 14 || st.PerfectDays != 1 {
		t.Errorf("streak=%d rate=%d perfect=%d, want 1/14/1", st.CurrentStreak, st.CompletionRate, st.PerfectDays)
	}
	if st.TotalTasks != 14 || st.CompletedCount != 2 {
		t.Errorf("totalTasks=%d completed=%d", st.TotalTasks, st.CompletedCount)
	}
	if st.TotalXP != 20 {
		t.Errorf("totalXP = %d, want 20", st.TotalXP)
	}
}

func TestEngine_DayBeforeYesterdayOnly(t *testing.T) {
	res := compute(t, engagement.Input{
		Routines:    []domain.Routine{routine("r", domain.CategoryAM)},
		Completions: []domain.Completion{done("r", "2025-03-08", domain.CategoryAM)},
	})
	if res.Stats.CurrentStreak != 0 || res.Stats.LongestStreak != 1 {
		t.Errorf("current=%d longest=%d, want 0/1", res.Stats.CurrentStreak, res.Stats.LongestStreak)
	}
}

func TestEngine_EmptyDataIsZeroed(t *testing.T) {
	res := compute(t, engagement.Input{Period: engagement.PeriodAll})
	st := res.Stats
	if st.TotalXP != 0 || st.CurrentStreak != 0 || st.CompletionRate != 0 || st.TotalTasks != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Level != 1 || st.LevelName != "Novice" || st.XPToNextLevel != 100 || st.StreakMultiplier != 1.0 {
		t.Errorf("level fields = %d %s %d %v", st.Level, st.LevelName, st.XPToNextLevel, st.StreakMultiplier)
	}
	if st.UnlockedAchievements == nil || len(st.UnlockedAchievements) != 0 {
		t.Errorf("unlocked = %#v, want empty non-nil", st.UnlockedAchievements)
	}
	if res.Routines == nil || len(res.Routines) != 0 {
		t.Errorf("routines = %#v, want empty non-nil", res.Routines)
	}
}

func TestEngine_RoutinesWithoutCompletions(t *testing.T) {
	res := compute(t, engagement.Input{Routines: []domain.Routine{routine("r", domain.CategoryAM)}})
	if res.Stats.TotalTasks != 7 || res.Stats.CompletionRate != 0 {
		t.Errorf("totalTasks=%d rate=%d", res.Stats.TotalTasks, res.Stats.CompletionRate)
	}
	if len(res.Routines) != 1 || res.Routines[0].CompletionRate != 0 {
		t.Errorf("routines = %+v", res.Routines)
	}
}

func TestEngine_MalformedToday(t *testing.T) {
	_, err := engagement.NewEngine(engagement.Config{}).Compute(engagement.Input{Today: "10/03/2025"})
	if !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}
}

func TestEngine_SavedBestStreakMaxMerged(t *testing.T) {
	res := compute(t, engagement.Input{
		Routines:        []domain.Routine{routine("r", domain.CategoryAM)},
		Completions:     []domain.Completion{done("r", today, domain.CategoryAM)},
		SavedBestStreak: 40,
	})
	if res.Stats.LongestStreak != 1 || res.Stats.BestStreak != 40 {
		t.Errorf("longest=%d best=%d, want 1/40", res.Stats.LongestStreak, res.Stats.BestStreak)
	}
	if !slices.Contains(res.Stats.NewlyUnlocked, "streak_30") {
		t.Errorf("best streak 40 should unlock streak_30: %v", res.Stats.NewlyUnlocked)
	}
	if slices.Contains(res.Stats.NewlyUnlocked, "on_fire") {
		t.Error("on_fire is measured on the current streak")
	}
}

func TestEngine_UnlockedSetNeverShrinks(t *testing.T) {
	res := compute(t, engagement.Input{Unlocked: []string{"streak_100", "first_completion"}})
	if !slices.Equal(res.Stats.UnlockedAchievements, []string{"streak_100", "first_completion"}) {
		t.Errorf("unlocked = %v", res.Stats.UnlockedAchievements)
	}
	if len(res.Stats.NewlyUnlocked) != 0 {
		t.Errorf("newly = %v", res.Stats.NewlyUnlocked)
	}
}

func TestEngine_LevelAchievementFromXP(t *testing.T) {
	// 60 single-slot days: well past 500 XP with the streak tiers.
	res := compute(t, engagement.Input{
		Routines:    []domain.Routine{routine("r", domain.CategoryAM)},
		Completions: doneRange(t, "r", "2025-01-10", today, domain.CategoryAM),
		Period:      engagement.PeriodAll,
	})
	if res.Stats.Level < 3 {
		t.Fatalf("level = %d (xp %d), want >= 3", res.Stats.Level, res.Stats.TotalXP)
	}
	if !slices.Contains(res.Stats.UnlockedAchievements, "level_3") {
		t.Errorf("level_3 not unlocked: %v", res.Stats.UnlockedAchievements)
	}
	if res.Stats.StreakMultiplier != 2.0 || res.Stats.MultiplierLabel != "On Fire!" {
		t.Errorf("multiplier = %v %q", res.Stats.StreakMultiplier, res.Stats.MultiplierLabel)
	}
	if res.Stats.StartDate != engagement.EpochFloor || res.Stats.EndDate != today {
		t.Errorf("all window = %s..%s, want %s..%s", res.Stats.StartDate, res.Stats.EndDate, engagement.EpochFloor, today)
	}
}

func TestEngine_AllPeriodStartsAtEpochFloor(t *testing.T) {
	res := compute(t, engagement.Input{
		Routines: []domain.Routine{routine("r", domain.CategoryAM, domain.CategoryNoon)},
		Completions: []domain.Completion{
			done("r", "2025-03-09", domain.CategoryAM),
			done("r", "2025-03-09", domain.CategoryNoon),
		},
		Period: engagement.PeriodAll,
	})
	st := res.Stats
	days, err := dates.DaysBetween(engagement.EpochFloor, today)
	if err != nil {
		t.Fatal(err)
	}
	if st.StartDate != engagement.EpochFloor {
		t.Errorf("StartDate = %s, want %s", st.StartDate, engagement.EpochFloor)
	}
	if want := (days + 1) * 2; st.TotalTasks != want {
		t.Errorf("TotalTasks = %d, want %d", st.TotalTasks, want)
	}
	if st.CompletedCount != 2 || st.CompletionRate != 0 {
		t.Errorf("completed=%d rate=%d, want 2/0", st.CompletedCount, st.CompletionRate)
	}
	if rs := res.Routines[0]; rs.TotalTasks != st.TotalTasks || rs.CompletionRate != 0 {
		t.Errorf("routine window = %d tasks rate %d", rs.TotalTasks, rs.CompletionRate)
	}
}

func TestEngine_AllPeriodKeepsOlderHistory(t *testing.T) {
	res := compute(t, engagement.Input{
		Routines:    []domain.Routine{routine("r", domain.CategoryAM)},
		Completions: []domain.Completion{done("r", "1999-12-30", domain.CategoryAM)},
		Period:      engagement.PeriodAll,
	})
	if res.Stats.StartDate != "1999-12-30" {
		t.Errorf("StartDate = %s, want 1999-12-30", res.Stats.StartDate)
	}
}

func TestEngine_XPModeSelectsPricing(t *testing.T) {
	in := engagement.Input{
		Routines:    []domain.Routine{routine("r", domain.CategoryAM)},
		Completions: doneRange(t, "r", "2025-03-03", today, domain.CategoryAM),
		Today:       today,
	}
	replay, _ := engagement.NewEngine(engagement.Config{}).Compute(in)
	uniform, _ := engagement.NewEngine(engagement.Config{XPMode: engagement.XPModeUniform}).Compute(in)
	if replay.Stats.TotalXP != 86 || uniform.Stats.TotalXP != 104 {
		t.Errorf("replay=%d uniform=%d, want 86/104", replay.Stats.TotalXP, uniform.Stats.TotalXP)
	}
}

func TestEngine_RoutineStatsSortOrder(t *testing.T) {
	rs := []domain.Routine{
		routine("c", domain.CategoryAM),
		routine("z", domain.CategoryAM),
		routine("b", domain.CategoryAM),
		routine("y", domain.CategoryAM),
		routine("a", domain.CategoryAM),
	}
	var cs []domain.Completion
	cs = append(cs, doneRange(t, "a", "2025-03-04", today, domain.CategoryAM)...)
	cs = append(cs, doneRange(t, "b", "2025-03-04", today, domain.CategoryAM)...)
	cs = append(cs, done("c", today, domain.CategoryAM))
	cs = append(cs, doneRange(t, "y", "2025-03-04", "2025-03-09", domain.CategoryAM)...)
	cs = append(cs, doneRange(t, "z", "2025-03-04", "2025-03-08", domain.CategoryAM)...)
	cs = append(cs, done("z", today, domain.CategoryAM))

	res := compute(t, engagement.Input{Routines: rs, Completions: cs})
	var order []string
	for _, r := range res.Routines {
		order = append(order, r.RoutineID)
	}
	if want := []string{"a", "b", "y", "z", "c"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	y := res.Routines[2]
	if y.CurrentStreak != 6 || y.CompletionRate != 86 || y.PeriodCompletions != 6 || y.LifetimeCompletion != 6 {
		t.Errorf("y = %+v", y)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Properties over generated histories
// ═══════════════════════════════════════════════════════════════════════════

func TestEngine_PropertiesHoldOnRandomHistories(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	cats := []domain.TimeCategory{domain.CategoryAM, domain.CategoryNoon, domain.CategoryPM, domain.CategoryAll}
	periods := []engagement.Period{engagement.Period7Days, engagement.Period30Days, engagement.PeriodYear, engagement.PeriodYTD, engagement.PeriodAll}

	for round := 0; round < 40; round++ {
		var rs []domain.Routine
		for i := 0; i < 1+rng.IntN(4); i++ {
			n := 1 + rng.IntN(len(cats))
			rs = append(rs, routine(string(rune('a'+i)), cats[:n]...))
		}
		var cs []domain.Completion
		for back := 0; back < 120; back++ {
			d, _ := dates.DaysAgo(today, back)
			for _, r := range rs {
				for _, c := range r.TimeCategories {
					if rng.IntN(10) < 7 {
						cs = append(cs, done(r.ID, d, c))
					}
				}
			}
		}
		period := periods[rng.IntN(len(periods))]
		res := compute(t, engagement.Input{Routines: rs, Completions: cs, Period: period})
		st := res.Stats

		if st.CompletionRate < 0 || st.CompletionRate > 100 {
			t.Fatalf("round %d: rate %d out of range", round, st.CompletionRate)
		}
		if st.CompletedCount > st.TotalTasks {
			t.Fatalf("round %d: completed %d > total %d", round, st.CompletedCount, st.TotalTasks)
		}
		if st.CurrentStreak > st.LongestStreak || st.LongestStreak > st.BestStreak {
			t.Fatalf("round %d: current %d longest %d best %d", round, st.CurrentStreak, st.LongestStreak, st.BestStreak)
		}
		if st.PerfectDays > st.TotalPerfectDays {
			t.Fatalf("round %d: windowed perfect %d > lifetime %d", round, st.PerfectDays, st.TotalPerfectDays)
		}
		days, _ := dates.DaysBetween(st.StartDate, st.EndDate)
		if st.PerfectDays > days+1 {
			t.Fatalf("round %d: perfect days %d exceed window", round, st.PerfectDays)
		}
		if st.LifetimeCategoryCounts.Total() != st.TotalCompletions {
			t.Fatalf("round %d: lifetime breakdown %d != total %d", round, st.LifetimeCategoryCounts.Total(), st.TotalCompletions)
		}
		if st.TotalXP < st.TotalCompletions*engagement.BaseXP || st.TotalXP > st.TotalCompletions*2*engagement.BaseXP {
			t.Fatalf("round %d: xp %d outside [%d, %d]", round, st.TotalXP, st.TotalCompletions*10, st.TotalCompletions*20)
		}
		for i := 1; i < len(res.Routines); i++ {
			if res.Routines[i-1].CompletionRate < res.Routines[i].CompletionRate {
				t.Fatalf("round %d: routine stats not sorted by rate", round)
			}
		}
	}
}

func TestEngine_LongestStreakNeverDropsAsHistoryGrows(t *testing.T) {
	days, err := dates.Enumerate("2025-02-20", today)
	if err != nil {
		t.Fatal(err)
	}
	rs := []domain.Routine{routine("r", domain.CategoryAM)}

	check := func(t *testing.T, order []string) {
		t.Helper()
		var cs []domain.Completion
		prev := 0
		for _, d := range order {
			cs = append(cs, done("r", d, domain.CategoryAM))
			longest := compute(t, engagement.Input{Routines: rs, Completions: cs}).Stats.LongestStreak
			if longest < prev {
				t.Fatalf("longest dropped from %d to %d after adding %s", prev, longest, d)
			}
			prev = longest
		}
		if prev != 3 {
			t.Errorf("final longest = %d, want 3", prev)
		}
	}

	// Every fourth day is missed, so the longest run is three days.
	var history []string
	for i, d := range days {
		if i%4 != 3 {
			history = append(history, d)
		}
	}

	t.Run("chronological", func(t *testing.T) { check(t, history) })
	t.Run("shuffled", func(t *testing.T) {
		shuffled := slices.Clone(history)
		rng := rand.New(rand.NewPCG(3, 5))
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		check(t, shuffled)
	})
}
