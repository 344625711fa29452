package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/app/routine"
	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/health"
	"github.com/routine-minder/minder/internal/infra/sqlite"
)

// The test clock reads 2025-03-10 12:00 UTC.
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	handler http.Handler
	db      *sqlite.DB
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := domain.DefaultSettings()
	st.Timezone = "UTC"
	if err := db.SaveSettings(context.Background(), st); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	clock := func() time.Time { return testNow }
	routines := routine.NewService(db)
	routines.SetClock(clock)
	stats := engagement.NewService(db, nil)
	stats.SetClock(clock)

	srv := NewServer(routines, stats, db)
	srv.SetClock(clock)
	return &testEnv{srv: srv, handler: srv.Handler(), db: db}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, w.Body.String())
	}
	return v
}

func (e *testEnv) createRoutine(t *testing.T, body string) domain.Routine {
	t.Helper()
	w := e.do(t, "POST", "/api/routines", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}
	return decode[domain.Routine](t, w)
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, status, w.Body.String())
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Message == "" || body.Error.Type != "error" {
		t.Errorf("error body = %+v", body)
	}
}

// ─── Health Check ───────────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := decode[map[string]any](t, w); body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestAPI_HealthWithChecker(t *testing.T) {
	env := newTestServer(t)
	checker := health.NewChecker(env.db, t.TempDir())
	checker.RunOnce(context.Background())
	env.srv.SetHealth(checker)

	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	body := decode[struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}](t, w)
	if body.Status != "ok" || len(body.Checks) != 2 {
		t.Errorf("health = %+v", body)
	}
}

// ─── Routines ───────────────────────────────────────────────────────────────

func TestAPI_RoutineLifecycle(t *testing.T) {
	env := newTestServer(t)

	r := env.createRoutine(t, `{"name":"Meditate","timeCategories":["AM","PM"]}`)
	if r.ID == "" || !r.IsActive || len(r.TimeCategories) != 2 {
		t.Fatalf("created = %+v", r)
	}

	w := env.do(t, "GET", "/api/routines/"+r.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = env.do(t, "PUT", "/api/routines/"+r.ID, `{"name":"Meditate 10m","isActive":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body: %s", w.Code, w.Body.String())
	}
	if updated := decode[domain.Routine](t, w); updated.Name != "Meditate 10m" || updated.IsActive {
		t.Errorf("updated = %+v", updated)
	}

	if list := decode[[]domain.Routine](t, env.do(t, "GET", "/api/routines", "")); len(list) != 0 {
		t.Errorf("active list = %+v, want empty", list)
	}
	if list := decode[[]domain.Routine](t, env.do(t, "GET", "/api/routines?all=true", "")); len(list) != 1 {
		t.Errorf("full list = %+v, want 1", list)
	}

	if w := env.do(t, "DELETE", "/api/routines/"+r.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	expectError(t, env.do(t, "GET", "/api/routines/"+r.ID, ""), http.StatusNotFound)
}

func TestAPI_CreateRoutine_Validation(t *testing.T) {
	env := newTestServer(t)

	tests := map[string]string{
		"empty name":    `{"name":"","timeCategories":["AM"]}`,
		"no categories": `{"name":"x","timeCategories":[]}`,
		"bad category":  `{"name":"x","timeCategories":["DUSK"]}`,
		"bad json":      `{"name":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			expectError(t, env.do(t, "POST", "/api/routines", body), http.StatusBadRequest)
		})
	}
}

func TestAPI_ReorderRoutines(t *testing.T) {
	env := newTestServer(t)
	a := env.createRoutine(t, `{"name":"A","timeCategories":["AM"]}`)
	b := env.createRoutine(t, `{"name":"B","timeCategories":["AM"]}`)

	w := env.do(t, "POST", "/api/routines/reorder", `{"ids":["`+b.ID+`","`+a.ID+`"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reorder status = %d, body: %s", w.Code, w.Body.String())
	}
	list := decode[[]domain.Routine](t, w)
	if len(list) != 2 || list[0].ID != b.ID {
		t.Errorf("order = %+v", list)
	}
}

// ─── Completions ────────────────────────────────────────────────────────────

func TestAPI_ToggleCompletion(t *testing.T) {
	env := newTestServer(t)
	r := env.createRoutine(t, `{"name":"Stretch","timeCategories":["AM"]}`)

	w := env.do(t, "POST", "/api/completions", `{"routineId":"`+r.ID+`","date":"2025-03-10","timeCategory":"am"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body: %s", w.Code, w.Body.String())
	}
	first := decode[toggleResponse](t, w)
	if !first.Completion.Completed || first.Completion.TimeCategory != domain.CategoryAM {
		t.Errorf("completion = %+v", first.Completion)
	}
	found := false
	for _, def := range first.NewlyUnlocked {
		if def.Key == "first_completion" {
			found = true
		}
	}
	if !found {
		t.Errorf("newlyUnlocked = %+v, want first_completion", first.NewlyUnlocked)
	}

	w = env.do(t, "POST", "/api/completions", `{"routineId":"`+r.ID+`","timeCategory":"AM"}`)
	second := decode[toggleResponse](t, w)
	if second.Completion.Completed || second.Completion.Date != "2025-03-10" {
		t.Errorf("second toggle = %+v", second.Completion)
	}
	if len(second.NewlyUnlocked) != 0 {
		t.Errorf("second toggle unlocked %+v", second.NewlyUnlocked)
	}

	w = env.do(t, "POST", "/api/completions", `{"routineId":"`+r.ID+`","timeCategory":"AM","completed":true}`)
	if third := decode[toggleResponse](t, w); !third.Completion.Completed {
		t.Error("explicit completed=true should mark the slot done")
	}

	list := decode[[]domain.Completion](t, env.do(t, "GET", "/api/completions?date=2025-03-10", ""))
	if len(list) != 1 || !list[0].Completed {
		t.Errorf("completions on date = %+v", list)
	}
}

func TestAPI_ToggleCompletion_Errors(t *testing.T) {
	env := newTestServer(t)
	r := env.createRoutine(t, `{"name":"Stretch","timeCategories":["AM"]}`)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"future date", `{"routineId":"` + r.ID + `","date":"2025-03-11","timeCategory":"AM"}`, http.StatusBadRequest},
		{"unscheduled", `{"routineId":"` + r.ID + `","date":"2025-03-10","timeCategory":"PM"}`, http.StatusBadRequest},
		{"bad category", `{"routineId":"` + r.ID + `","date":"2025-03-10","timeCategory":"LATE"}`, http.StatusBadRequest},
		{"bad date", `{"routineId":"` + r.ID + `","date":"03/10/2025","timeCategory":"AM"}`, http.StatusBadRequest},
		{"unknown routine", `{"routineId":"nope","date":"2025-03-10","timeCategory":"AM"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, "POST", "/api/completions", tt.body), tt.status)
		})
	}
}

func TestAPI_ListCompletionsRange(t *testing.T) {
	env := newTestServer(t)
	r := env.createRoutine(t, `{"name":"Run","timeCategories":["PM"]}`)
	for _, d := range []string{"2025-03-01", "2025-03-08", "2025-03-09"} {
		env.do(t, "POST", "/api/completions", `{"routineId":"`+r.ID+`","date":"`+d+`","timeCategory":"PM"}`)
	}

	list := decode[[]domain.Completion](t, env.do(t, "GET", "/api/completions?from=2025-03-05&to=2025-03-10", ""))
	if len(list) != 2 {
		t.Errorf("range = %+v, want 2 entries", list)
	}
	expectError(t, env.do(t, "GET", "/api/completions?from=2025-03-10&to=2025-03-01", ""), http.StatusBadRequest)
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func TestAPI_Dashboard(t *testing.T) {
	env := newTestServer(t)
	r := env.createRoutine(t, `{"name":"Read","timeCategories":["PM"]}`)
	for _, d := range []string{"2025-03-08", "2025-03-09"} {
		env.do(t, "POST", "/api/completions", `{"routineId":"`+r.ID+`","date":"`+d+`","timeCategory":"PM"}`)
	}

	w := env.do(t, "GET", "/api/dashboard?range=7d", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	stats := decode[domain.GamificationStats](t, w)
	if stats.CurrentStreak != 2 || stats.TotalCompletions != 2 || stats.EndDate != "2025-03-10" {
		t.Errorf("stats = %+v", stats)
	}
	if stats.CompletionRate != 29 { // 2 of 7 slots
		t.Errorf("completionRate = %d, want 29", stats.CompletionRate)
	}

	w = env.do(t, "GET", "/api/dashboard?today=2025-03-09", "")
	if got := decode[domain.GamificationStats](t, w); got.EndDate != "2025-03-09" || got.CurrentStreak != 2 {
		t.Errorf("override today = %+v", got)
	}

	expectError(t, env.do(t, "GET", "/api/dashboard?range=fortnight", ""), http.StatusBadRequest)
	expectError(t, env.do(t, "GET", "/api/dashboard?today=2025-13-01", ""), http.StatusBadRequest)
}

func TestAPI_RoutineStats(t *testing.T) {
	env := newTestServer(t)
	env.createRoutine(t, `{"name":"A","timeCategories":["AM"]}`)
	env.createRoutine(t, `{"name":"B","timeCategories":["AM","PM"]}`)

	w := env.do(t, "GET", "/api/dashboard/routines?range=30d", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if rs := decode[[]domain.RoutineStats](t, w); len(rs) != 2 {
		t.Errorf("routine stats = %+v", rs)
	}
}

func TestAPI_AchievementsAndLevels(t *testing.T) {
	env := newTestServer(t)

	board := decode[[]domain.AchievementProgress](t, env.do(t, "GET", "/api/achievements", ""))
	if len(board) != len(engagement.Catalog()) {
		t.Errorf("board = %d entries, want %d", len(board), len(engagement.Catalog()))
	}
	for _, p := range board {
		if p.Unlocked {
			t.Errorf("%s unlocked with no data", p.Key)
		}
	}

	levels := decode[[]domain.Level](t, env.do(t, "GET", "/api/levels", ""))
	if len(levels) != engagement.MaxLevel() || levels[0].Threshold != 0 {
		t.Errorf("levels = %+v", levels)
	}
}

// ─── Settings ───────────────────────────────────────────────────────────────

func TestAPI_Settings(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, "PUT", "/api/settings", `{"notificationsEnabled":true,"amTime":"07:30"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body: %s", w.Code, w.Body.String())
	}
	got := decode[domain.Settings](t, env.do(t, "GET", "/api/settings", ""))
	if !got.NotificationsEnabled || got.AMTime != "07:30" || got.Timezone != "UTC" {
		t.Errorf("settings = %+v", got)
	}

	expectError(t, env.do(t, "PUT", "/api/settings", `{"timezone":"Mars/Olympus"}`), http.StatusBadRequest)
	expectError(t, env.do(t, "PUT", "/api/settings", `{"pmTime":"9pm"}`), http.StatusBadRequest)
}

func TestAPI_TimezoneDecidesToday(t *testing.T) {
	env := newTestServer(t)
	// 12:00 UTC on the 10th is already the 11th in Kiritimati (UTC+14).
	env.do(t, "PUT", "/api/settings", `{"timezone":"Pacific/Kiritimati"}`)

	stats := decode[domain.GamificationStats](t, env.do(t, "GET", "/api/dashboard", ""))
	if stats.EndDate != "2025-03-11" {
		t.Errorf("endDate = %s, want 2025-03-11", stats.EndDate)
	}
}

// ─── Metrics & CORS ─────────────────────────────────────────────────────────

func TestAPI_Metrics(t *testing.T) {
	env := newTestServer(t)
	env.srv.EnableMetrics()
	handler := env.srv.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/levels", nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `minder_http_requests_total{code="200",route="/api/levels"}`) {
		t.Error("request counter for /api/levels not exported")
	}
}

func TestAPI_MetricsDisabled(t *testing.T) {
	env := newTestServer(t)
	if w := env.do(t, "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when metrics are off", w.Code)
	}
}

func TestAPI_CORS(t *testing.T) {
	env := newTestServer(t)
	env.srv.SetCORSOrigins([]string{"http://localhost:5173"})
	handler := env.srv.Handler()

	req := httptest.NewRequest("OPTIONS", "/api/routines", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allowed origin = %q", got)
	}

	req = httptest.NewRequest("GET", "/api/levels", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allowed origin %q", got)
	}
}
