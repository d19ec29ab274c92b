package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/admission"
	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/evaluator"
	"github.com/cwygoda/pitcher/internal/router"
	"github.com/cwygoda/pitcher/internal/speed"
	"github.com/cwygoda/pitcher/internal/strategy"
)

// Deps are the campaign services the status API reads from.
type Deps struct {
	Attempts   *domain.AttemptService
	Evaluator  *evaluator.Evaluator
	Router     *router.Router
	Profiles   *strategy.Store
	Speed      *speed.Controller
	Scheduler  *admission.Scheduler
	Gatherer   prometheus.Gatherer
	MinSamples int
}

// Server is the HTTP adapter for the campaign status API.
type Server struct {
	deps   Deps
	log    *zap.Logger
	mux    *chi.Mux
	server *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, addr string, log *zap.Logger) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		mux:  chi.NewRouter(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)

	s.mux.Get("/health", s.handleHealth)
	s.mux.Get("/snapshot", s.handleSnapshot)
	s.mux.Get("/report", s.handleReport)
	s.mux.Get("/strategies", s.handleStrategies)
	s.mux.Get("/variants", s.handleVariants)
	s.mux.Get("/attempts", s.handleRecent)
	s.mux.Get("/attempts/{id}", s.handleGetAttempt)
	s.mux.Post("/route", s.handleRoute)
	if s.deps.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

// routeRequest is the request body for POST /route.
type routeRequest struct {
	URL string `json:"url"`
}

type routeResponse struct {
	URL      string          `json:"url"`
	Strategy router.Strategy `json:"strategy"`
	Direct   bool            `json:"direct"`
}

type strategyResponse struct {
	router.Strategy
	Profile strategy.Profile `json:"profile"`
}

type variantsResponse struct {
	Variants       []speed.Stats        `json:"variants"`
	Recommendation speed.Recommendation `json:"recommendation"`
}

type snapshotResponse struct {
	evaluator.Snapshot
	Waiting int `json:"waiting"`
}

// attemptResponse is the JSON response for attempt endpoints.
type attemptResponse struct {
	ID              string   `json:"id"`
	ItemID          string   `json:"item_id"`
	Strategy        string   `json:"strategy"`
	Variant         string   `json:"variant,omitempty"`
	URL             string   `json:"url"`
	State           string   `json:"state"`
	Count           int      `json:"count"`
	LastKind        string   `json:"last_kind,omitempty"`
	Error           string   `json:"error,omitempty"`
	BackoffSeconds  float64  `json:"backoff_seconds"`
	Evidence        string   `json:"evidence,omitempty"`
	StartedAt       string   `json:"started_at"`
	EndedAt         string   `json:"ended_at,omitempty"`
	History         []string `json:"history,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evaluator == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no campaign running")
		return
	}
	resp := snapshotResponse{Snapshot: s.deps.Evaluator.Current()}
	if s.deps.Scheduler != nil {
		resp.InFlight = s.deps.Scheduler.InFlight()
		resp.Waiting = s.deps.Scheduler.Waiting()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evaluator == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no campaign running")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
	case "yaml", "yml":
		w.Header().Set("Content-Type", "application/yaml")
	default:
		s.writeError(w, http.StatusBadRequest, "unsupported format")
		return
	}
	if err := evaluator.Render(w, s.deps.Evaluator.Report(), format); err != nil {
		s.log.Error("render report", zap.Error(err))
	}
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	strategies := s.deps.Router.Strategies()
	resp := make([]strategyResponse, 0, len(strategies))
	for _, st := range strategies {
		resp = append(resp, strategyResponse{Strategy: st, Profile: s.deps.Profiles.Get(st.ID)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVariants(w http.ResponseWriter, r *http.Request) {
	if s.deps.Speed == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no campaign running")
		return
	}
	s.writeJSON(w, http.StatusOK, variantsResponse{
		Variants:       s.deps.Speed.Stats(),
		Recommendation: s.deps.Speed.Recommend(s.deps.MinSamples),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	attempts, err := s.deps.Attempts.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("list attempts", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := make([]attemptResponse, 0, len(attempts))
	for i := range attempts {
		resp = append(resp, attemptToResponse(&attempts[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.deps.Attempts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			s.writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		s.log.Error("get attempt", zap.String("attempt", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, attemptToResponse(a))
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	id := s.deps.Router.Route(req.URL)
	s.writeJSON(w, http.StatusOK, routeResponse{
		URL:      req.URL,
		Strategy: s.deps.Router.Strategy(id),
		Direct:   s.deps.Router.IsDirectCompletionURL(req.URL),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func attemptToResponse(a *domain.Attempt) attemptResponse {
	resp := attemptResponse{
		ID:              a.ID,
		ItemID:          a.ItemID,
		Strategy:        a.Strategy,
		Variant:         a.Variant,
		URL:             a.URL,
		State:           string(a.State),
		Count:           a.Count,
		LastKind:        string(a.LastKind),
		Error:           a.LastError,
		BackoffSeconds:  a.CumulativeBackoff.Seconds(),
		Evidence:        a.Evidence,
		StartedAt:       a.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		DurationSeconds: a.Duration().Seconds(),
	}
	if !a.EndedAt.IsZero() {
		resp.EndedAt = a.EndedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	for _, ev := range a.History {
		resp.History = append(resp.History, string(ev.State)+": "+ev.Message)
	}
	return resp
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
