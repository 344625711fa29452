// Package storetest is the conformance suite every domain.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/routine-minder/minder/internal/domain"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) domain.Store

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.Store)
	}{
		{"RoutineCRUD", testRoutineCRUD},
		{"RoutineListOrder", testRoutineListOrder},
		{"DeleteRoutineDropsCompletions", testDeleteRoutineDropsCompletions},
		{"UpsertCompletionKeepsID", testUpsertKeepsID},
		{"UpsertUnknownRoutine", testUpsertUnknownRoutine},
		{"ListCompletionsRange", testListCompletionsRange},
		{"AchievementRatchet", testAchievementRatchet},
		{"BestStreakHighWaterMark", testBestStreak},
		{"Settings", testSettings},
		{"Snapshot", testSnapshot},
		{"ConcurrentUpserts", testConcurrentUpserts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

var base = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func mkRoutine(id, name string, order int, cats ...domain.TimeCategory) domain.Routine {
	return domain.Routine{
		ID: id, Name: name, TimeCategories: cats, IsActive: true, SortOrder: order,
		CreatedAt: base, UpdatedAt: base,
	}
}

func mkCompletion(id, routineID, date string, c domain.TimeCategory, done bool) domain.Completion {
	return domain.Completion{
		ID: id, RoutineID: routineID, Date: date, TimeCategory: c,
		Completed: done, CompletedAt: base,
	}
}

func mustCreate(t *testing.T, s domain.Store, rs ...domain.Routine) {
	t.Helper()
	for _, r := range rs {
		if err := s.CreateRoutine(context.Background(), r); err != nil {
			t.Fatalf("CreateRoutine(%s): %v", r.ID, err)
		}
	}
}

func mustUpsert(t *testing.T, s domain.Store, c domain.Completion) domain.Completion {
	t.Helper()
	got, err := s.UpsertCompletion(context.Background(), c)
	if err != nil {
		t.Fatalf("UpsertCompletion: %v", err)
	}
	return got
}

// ─── Routines ───────────────────────────────────────────────────────────────

func testRoutineCRUD(t *testing.T, s domain.Store) {
	ctx := context.Background()
	r := mkRoutine("r1", "Stretch", 0, domain.CategoryAM, domain.CategoryPM)
	r.NotificationEnabled = true
	r.NotificationTime = "07:15"
	mustCreate(t, s, r)

	got, err := s.GetRoutine(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRoutine: %v", err)
	}
	if got.Name != "Stretch" || len(got.TimeCategories) != 2 || got.TimeCategories[1] != domain.CategoryPM {
		t.Errorf("got %+v", got)
	}
	if !got.IsActive || !got.NotificationEnabled || got.NotificationTime != "07:15" {
		t.Errorf("flags not stored: %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}

	got.Name = "Stretch more"
	got.IsActive = false
	got.TimeCategories = []domain.TimeCategory{domain.CategoryNoon}
	if err := s.UpdateRoutine(ctx, got); err != nil {
		t.Fatalf("UpdateRoutine: %v", err)
	}
	got, _ = s.GetRoutine(ctx, "r1")
	if got.Name != "Stretch more" || got.IsActive || got.TimeCategories[0] != domain.CategoryNoon {
		t.Errorf("update not applied: %+v", got)
	}

	if _, err := s.GetRoutine(ctx, "missing"); !errors.Is(err, domain.ErrRoutineNotFound) {
		t.Errorf("GetRoutine(missing) err = %v", err)
	}
	if err := s.UpdateRoutine(ctx, mkRoutine("missing", "x", 0, domain.CategoryAM)); !errors.Is(err, domain.ErrRoutineNotFound) {
		t.Errorf("UpdateRoutine(missing) err = %v", err)
	}
	if err := s.DeleteRoutine(ctx, "missing"); !errors.Is(err, domain.ErrRoutineNotFound) {
		t.Errorf("DeleteRoutine(missing) err = %v", err)
	}
}

func testRoutineListOrder(t *testing.T, s domain.Store) {
	mustCreate(t, s,
		mkRoutine("c", "Read", 2, domain.CategoryPM),
		mkRoutine("b", "Water", 1, domain.CategoryAll),
		mkRoutine("a", "Meditate", 1, domain.CategoryAM),
	)
	rs, err := s.ListRoutines(context.Background())
	if err != nil {
		t.Fatalf("ListRoutines: %v", err)
	}
	var ids []string
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	if fmt.Sprint(ids) != "[a b c]" {
		t.Errorf("order = %v, want [a b c]", ids)
	}
}

func testDeleteRoutineDropsCompletions(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, mkRoutine("r1", "A", 0, domain.CategoryAM), mkRoutine("r2", "B", 1, domain.CategoryAM))
	mustUpsert(t, s, mkCompletion("c1", "r1", "2025-03-01", domain.CategoryAM, true))
	mustUpsert(t, s, mkCompletion("c2", "r2", "2025-03-01", domain.CategoryAM, true))

	if err := s.DeleteRoutine(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRoutine: %v", err)
	}
	cs, _ := s.ListCompletions(ctx, "", "")
	if len(cs) != 1 || cs[0].RoutineID != "r2" {
		t.Errorf("completions after delete = %+v", cs)
	}
}

// ─── Completions ────────────────────────────────────────────────────────────

func testUpsertKeepsID(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, mkRoutine("r1", "A", 0, domain.CategoryAM))

	first := mustUpsert(t, s, mkCompletion("c1", "r1", "2025-03-01", domain.CategoryAM, true))
	second := mkCompletion("other", "r1", "2025-03-01", domain.CategoryAM, false)
	second.CompletedAt = base.Add(time.Hour)
	got := mustUpsert(t, s, second)

	if got.ID != first.ID {
		t.Errorf("ID = %q, want existing %q", got.ID, first.ID)
	}
	stored, ok, err := s.GetCompletion(ctx, second.Key())
	if err != nil || !ok {
		t.Fatalf("GetCompletion: ok=%v err=%v", ok, err)
	}
	if stored.Completed || stored.ID != "c1" || !stored.CompletedAt.Equal(second.CompletedAt) {
		t.Errorf("stored = %+v", stored)
	}

	cs, _ := s.ListCompletions(ctx, "", "")
	if len(cs) != 1 {
		t.Errorf("one slot must hold one record, got %d", len(cs))
	}

	_, ok, err = s.GetCompletion(ctx, domain.SlotKey{RoutineID: "r1", Date: "2025-03-02", Category: domain.CategoryAM})
	if err != nil || ok {
		t.Errorf("unwritten slot: ok=%v err=%v", ok, err)
	}
}

func testUpsertUnknownRoutine(t *testing.T, s domain.Store) {
	_, err := s.UpsertCompletion(context.Background(), mkCompletion("c1", "ghost", "2025-03-01", domain.CategoryAM, true))
	if !errors.Is(err, domain.ErrRoutineNotFound) {
		t.Errorf("err = %v, want ErrRoutineNotFound", err)
	}
}

func testListCompletionsRange(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, mkRoutine("r1", "A", 0, domain.CategoryAM, domain.CategoryPM))
	for i, d := range []string{"2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02"} {
		mustUpsert(t, s, mkCompletion(fmt.Sprintf("am%d", i), "r1", d, domain.CategoryAM, true))
	}
	mustUpsert(t, s, mkCompletion("pm", "r1", "2025-03-01", domain.CategoryPM, true))

	cs, err := s.ListCompletions(ctx, "2025-02-28", "2025-03-01")
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}
	if len(cs) != 3 {
		t.Fatalf("got %d completions, want 3", len(cs))
	}
	if cs[0].Date != "2025-02-28" || cs[1].TimeCategory != domain.CategoryAM || cs[2].TimeCategory != domain.CategoryPM {
		t.Errorf("order = %+v", cs)
	}

	open, _ := s.ListCompletions(ctx, "2025-03-01", "")
	if len(open) != 3 {
		t.Errorf("open upper bound: got %d, want 3", len(open))
	}
	day, _ := s.ListCompletions(ctx, "2025-03-02", "2025-03-02")
	if len(day) != 1 {
		t.Errorf("single day: got %d, want 1", len(day))
	}
}

// ─── Engagement ─────────────────────────────────────────────────────────────

func testAchievementRatchet(t *testing.T, s domain.Store) {
	ctx := context.Background()
	for i, key := range []string{"streak_3", "first_completion", "streak_7"} {
		isNew, err := s.UnlockAchievement(ctx, key, base.Add(time.Duration(i)*time.Minute))
		if err != nil || !isNew {
			t.Fatalf("UnlockAchievement(%s) = %v, %v", key, isNew, err)
		}
	}
	isNew, err := s.UnlockAchievement(ctx, "streak_3", base.Add(time.Hour))
	if err != nil || isNew {
		t.Errorf("re-unlock = %v, %v; want false", isNew, err)
	}

	got, err := s.ListUnlockedAchievements(ctx)
	if err != nil {
		t.Fatalf("ListUnlockedAchievements: %v", err)
	}
	want := []string{"streak_3", "first_completion", "streak_7"}
	if len(got) != len(want) {
		t.Fatalf("got %d achievements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i].Key, want[i])
		}
	}
	if !got[0].UnlockedAt.Equal(base) {
		t.Errorf("first unlock time overwritten: %v", got[0].UnlockedAt)
	}
}

func testBestStreak(t *testing.T, s domain.Store) {
	ctx := context.Background()
	if n, err := s.BestStreak(ctx); err != nil || n != 0 {
		t.Fatalf("fresh BestStreak = %d, %v", n, err)
	}
	for _, n := range []int{5, 3, 12, 0} {
		if err := s.RaiseBestStreak(ctx, n); err != nil {
			t.Fatalf("RaiseBestStreak(%d): %v", n, err)
		}
	}
	if n, _ := s.BestStreak(ctx); n != 12 {
		t.Errorf("BestStreak = %d, want 12", n)
	}
}

func testSettings(t *testing.T, s domain.Store) {
	ctx := context.Background()
	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got != domain.DefaultSettings() {
		t.Errorf("fresh settings = %+v, want defaults", got)
	}

	want := domain.Settings{NotificationsEnabled: true, AMTime: "06:00", NoonTime: "13:00", PMTime: "22:00", Timezone: "America/New_York"}
	if err := s.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if got, _ = s.GetSettings(ctx); got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
}

// ─── Store ──────────────────────────────────────────────────────────────────

func testSnapshot(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, mkRoutine("r1", "A", 0, domain.CategoryAM), mkRoutine("r2", "B", 1, domain.CategoryPM))
	mustUpsert(t, s, mkCompletion("c1", "r1", "2025-03-01", domain.CategoryAM, true))
	mustUpsert(t, s, mkCompletion("c2", "r2", "2025-03-01", domain.CategoryPM, false))

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Routines) != 2 || len(snap.Completions) != 2 {
		t.Errorf("snapshot = %d routines, %d completions", len(snap.Routines), len(snap.Completions))
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func testConcurrentUpserts(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, mkRoutine("r1", "A", 0, domain.CategoryAM))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := mkCompletion(fmt.Sprintf("c%d", i), "r1", fmt.Sprintf("2025-01-%02d", i%10+1), domain.CategoryAM, i%2 == 0)
			if _, err := s.UpsertCompletion(ctx, c); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent upsert: %v", err)
	}

	cs, _ := s.ListCompletions(ctx, "", "")
	if len(cs) != 10 {
		t.Errorf("got %d slots, want 10 (last write wins per slot)", len(cs))
	}
}
