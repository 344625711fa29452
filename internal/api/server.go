// Package api provides the HTTP server for Routine Minder.
// It exposes the JSON REST API the browser UI talks to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/app/routine"
	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/health"
	"github.com/routine-minder/minder/internal/infra/metrics"
	"github.com/routine-minder/minder/internal/logger"
)

const maxBodyBytes = 1 << 20

// Server is the Routine Minder HTTP API server.
type Server struct {
	routines       *routine.Service
	stats          *engagement.Service
	settings       domain.SettingsStore
	health         *health.Checker
	metricsEnabled bool
	corsOrigins    []string
	defaultPeriod  engagement.Period
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(routines *routine.Service, stats *engagement.Service, settings domain.SettingsStore) *Server {
	return &Server{
		routines:      routines,
		stats:         stats,
		settings:      settings,
		defaultPeriod: engagement.Period7Days,
		now:           time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker whose statuses /health reports.
func (s *Server) SetHealth(h *health.Checker) { s.health = h }

// SetCORSOrigins restricts Access-Control-Allow-Origin. Empty allows any.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// SetDefaultPeriod sets the range used when a dashboard request names none.
func (s *Server) SetDefaultPeriod(p engagement.Period) { s.defaultPeriod = p }

// SetClock overrides the clock "today" is derived from. Used by tests.
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)
	r.Use(countRequests)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/routines", func(r chi.Router) {
			r.Get("/", s.handleListRoutines)
			r.Post("/", s.handleCreateRoutine)
			r.Post("/reorder", s.handleReorderRoutines)
			r.Get("/{id}", s.handleGetRoutine)
			r.Put("/{id}", s.handleUpdateRoutine)
			r.Delete("/{id}", s.handleDeleteRoutine)
		})

		r.Get("/completions", s.handleListCompletions)
		r.Post("/completions", s.handleToggleCompletion)

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/routines", s.handleRoutineStats)
		r.Get("/achievements", s.handleAchievements)
		r.Get("/levels", s.handleLevels)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// today is the server clock's calendar day in the user's timezone.
func (s *Server) today(ctx context.Context) (string, error) {
	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	loc, err := dates.LoadLocation(st.Timezone)
	if err != nil {
		logger.Warn("bad stored timezone, using local", "timezone", st.Timezone, "err", err)
		loc = time.Local
	}
	return dates.Today(s.now(), loc), nil
}

// readToday honors an explicit ?today= override before falling back to the clock.
func (s *Server) readToday(r *http.Request) (string, error) {
	if q := r.URL.Query().Get("today"); q != "" {
		if err := dates.Validate(q); err != nil {
			return "", err
		}
		return q, nil
	}
	return s.today(r.Context())
}

func (s *Server) readPeriod(r *http.Request) (engagement.Period, error) {
	q := r.URL.Query().Get("range")
	if q == "" {
		return s.defaultPeriod, nil
	}
	return engagement.ParsePeriod(q)
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

var badRequestErrors = []error{
	domain.ErrRoutineNameEmpty,
	domain.ErrNoTimeCategories,
	domain.ErrInvalidTimeCategory,
	domain.ErrInvalidNotifyTime,
	domain.ErrCategoryNotScheduled,
	domain.ErrRoutineAmbiguous,
	domain.ErrInvalidDate,
	domain.ErrFutureDate,
	domain.ErrInvalidPeriod,
	domain.ErrInvalidTimezone,
	errBadBody,
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, domain.ErrRoutineNotFound) {
		return http.StatusNotFound
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the mapped status and logs server faults.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeError(w, status, err.Error())
}

var errBadBody = errors.New("malformed request body")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadBody, err)
	}
	return nil
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// corsMiddleware adds CORS headers for the browser UI.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.corsOrigins) > 0 {
			origin = ""
			if o := r.Header.Get("Origin"); slices.Contains(s.corsOrigins, o) {
				origin = o
				w.Header().Add("Vary", "Origin")
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// countRequests records minder_http_requests_total by route pattern.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
				if len(p) > 1 {
					route = strings.TrimSuffix(p, "/")
				}
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	})
}
