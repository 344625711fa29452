package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/app/routine"
	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/logger"
)

// ─── Routines (/api/routines) ───────────────────────────────────────────────

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	routines, err := s.routines.List(r.Context(), all)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routines)
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var req routine.Draft
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := s.routines.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	rt, err := s.routines.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleUpdateRoutine(w http.ResponseWriter, r *http.Request) {
	var req routine.Patch
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	updated, err := s.routines.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	if err := s.routines.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorderRoutines(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	routines, err := s.routines.Reorder(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routines)
}

// ─── Completions (/api/completions) ─────────────────────────────────────────

func (s *Server) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		completions []domain.Completion
		err         error
	)
	switch {
	case q.Get("date") != "":
		completions, err = s.routines.CompletionsForDate(r.Context(), q.Get("date"))
	case q.Get("from") != "" || q.Get("to") != "":
		completions, err = s.routines.CompletionsInRange(r.Context(), q.Get("from"), q.Get("to"))
	default:
		var today string
		if today, err = s.today(r.Context()); err == nil {
			completions, err = s.routines.CompletionsForDate(r.Context(), today)
		}
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completions)
}

type toggleRequest struct {
	RoutineID    string              `json:"routineId"`
	Date         string              `json:"date"`
	TimeCategory domain.TimeCategory `json:"timeCategory"`
	// Completed sets the slot explicitly; nil flips it.
	Completed *bool `json:"completed,omitempty"`
}

type toggleResponse struct {
	Completion    domain.Completion       `json:"completion"`
	NewlyUnlocked []domain.AchievementDef `json:"newlyUnlocked"`
}

func (s *Server) handleToggleCompletion(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	today, err := s.today(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Date == "" {
		req.Date = today
	}
	cat, err := domain.ParseTimeCategory(string(req.TimeCategory))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var c domain.Completion
	if req.Completed != nil {
		c, err = s.routines.SetCompletion(r.Context(), req.RoutineID, req.Date, cat, *req.Completed, today)
	} else {
		c, err = s.routines.Toggle(r.Context(), req.RoutineID, req.Date, cat, today)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := toggleResponse{Completion: c, NewlyUnlocked: []domain.AchievementDef{}}
	unlocked, err := s.stats.Sync(r.Context(), today)
	if err != nil {
		// The write already landed; the next sync picks the unlocks up.
		logger.Warn("post-toggle sync failed", "err", err)
	} else {
		resp.NewlyUnlocked = unlocked
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Stats (/api/dashboard, /api/achievements, /api/levels) ─────────────────

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period, today, ok := s.statsParams(w, r)
	if !ok {
		return
	}
	stats, err := s.stats.Dashboard(r.Context(), period, today)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRoutineStats(w http.ResponseWriter, r *http.Request) {
	period, today, ok := s.statsParams(w, r)
	if !ok {
		return
	}
	rs, err := s.stats.RoutineStats(r.Context(), period, today)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) statsParams(w http.ResponseWriter, r *http.Request) (engagement.Period, string, bool) {
	period, err := s.readPeriod(r)
	if err != nil {
		writeServiceError(w, r, err)
		return "", "", false
	}
	today, err := s.readToday(r)
	if err != nil {
		writeServiceError(w, r, err)
		return "", "", false
	}
	return period, today, true
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	today, err := s.readToday(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	board, err := s.stats.Achievements(r.Context(), today)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engagement.Levels())
}

// ─── Settings (/api/settings) ───────────────────────────────────────────────

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.GetSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings decodes the body over the current settings, so omitted
// fields keep their values.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.GetSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := decodeBody(w, r, &st); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := st.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.settings.SaveSettings(r.Context(), st); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
