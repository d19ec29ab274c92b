package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/admission"
	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/evaluator"
	"github.com/cwygoda/pitcher/internal/router"
	"github.com/cwygoda/pitcher/internal/speed"
	"github.com/cwygoda/pitcher/internal/strategy"
)

// mockRepo implements domain.AttemptRepository for testing.
type mockRepo struct {
	attempts map[string]*domain.Attempt
	order    []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{attempts: make(map[string]*domain.Attempt)}
}

func (m *mockRepo) Archive(ctx context.Context, a *domain.Attempt) error {
	m.attempts[a.ID] = a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockRepo) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	a, ok := m.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (m *mockRepo) Recent(ctx context.Context, limit int) ([]domain.Attempt, error) {
	var out []domain.Attempt
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.attempts[m.order[i]])
	}
	return out, nil
}

func (m *mockRepo) Fingerprints(ctx context.Context) ([]string, error) { return nil, nil }
func (m *mockRepo) SaveSnapshot(ctx context.Context, campaignID string, at time.Time, body []byte) error {
	return nil
}
func (m *mockRepo) Snapshots(ctx context.Context, campaignID string) ([][]byte, error) {
	return nil, nil
}

func setupTestServer(t *testing.T) (*Server, *mockRepo, *evaluator.Evaluator) {
	t.Helper()
	repo := newMockRepo()
	ctrl, err := speed.NewController(speed.Catalog(), speed.DefaultVariant)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	sched, err := admission.New(2)
	if err != nil {
		t.Fatalf("admission.New: %v", err)
	}
	eval := evaluator.New("test", evaluator.DefaultTargets())
	deps := Deps{
		Attempts:   domain.NewAttemptService(repo),
		Evaluator:  eval,
		Router:     router.New(),
		Profiles:   strategy.NewStore(strategy.Default()),
		Speed:      ctrl,
		Scheduler:  sched,
		Gatherer:   prometheus.NewRegistry(),
		MinSamples: 10,
	}
	return NewServer(deps, ":8080", zap.NewNop()), repo, eval
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rec := get(srv, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestServer_ContentType(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	ct := get(srv, "/health").Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

func TestServer_Route(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	body := `{"url":"https://boards.greenhouse.io/acme/jobs/123"}`
	req := httptest.NewRequest(http.MethodPost, "/route", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp routeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Strategy.ID != "greenhouse" {
		t.Errorf("strategy = %q, want greenhouse", resp.Strategy.ID)
	}
	if resp.Strategy.Category != router.CategoryDirectApply {
		t.Errorf("category = %q, want %q", resp.Strategy.Category, router.CategoryDirectApply)
	}
	if !resp.Direct {
		t.Error("direct = false, want true")
	}
}

func TestServer_Route_BadRequests(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	for _, body := range []string{`not json`, `{}`, `{"url":"   "}`} {
		req := httptest.NewRequest(http.MethodPost, "/route", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestServer_GetAttempt(t *testing.T) {
	srv, repo, _ := setupTestServer(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &domain.Attempt{
		ID:                "att-1",
		ItemID:            "greenhouse-1",
		Strategy:          "greenhouse",
		State:             domain.StateFailed,
		Count:             3,
		LastKind:          domain.KindNetwork,
		LastError:         "net::ERR_CONNECTION_RESET",
		CumulativeBackoff: 6 * time.Second,
		StartedAt:         start,
	}
	a.Finish(domain.StateFailed, start.Add(30*time.Second))
	repo.Archive(context.Background(), a)

	rec := get(srv, "/attempts/att-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp attemptResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.State != "failed" || resp.Count != 3 || resp.LastKind != "network_error" {
		t.Errorf("response = %+v", resp)
	}
	if resp.BackoffSeconds != 6 || resp.DurationSeconds != 30 {
		t.Errorf("backoff = %v, duration = %v", resp.BackoffSeconds, resp.DurationSeconds)
	}
	if resp.EndedAt != "2026-03-01T09:00:30Z" {
		t.Errorf("ended_at = %q", resp.EndedAt)
	}
}

func TestServer_GetAttempt_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	if rec := get(srv, "/attempts/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_RecentAttempts(t *testing.T) {
	srv, repo, _ := setupTestServer(t)
	for _, id := range []string{"a", "b", "c"} {
		repo.Archive(context.Background(), &domain.Attempt{ID: id, State: domain.StateSubmitted})
	}

	rec := get(srv, "/attempts?limit=2")
	var resp []attemptResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(resp) != 2 || resp[0].ID != "c" {
		t.Errorf("recent = %+v", resp)
	}

	if rec := get(srv, "/attempts?limit=x"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServer_SnapshotAndReport(t *testing.T) {
	srv, _, eval := setupTestServer(t)
	eval.RecordStart("a1")
	eval.RecordEnd(domain.Outcome{
		Attempt: &domain.Attempt{ID: "a1", Strategy: "lever"},
		State:   domain.StateSubmitted,
	})

	rec := get(srv, "/snapshot")
	var snap snapshotResponse
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if snap.Completed != 1 || snap.Successful != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(eval.Snapshots()) != 0 {
		t.Error("GET /snapshot must not append to the history")
	}

	rec = get(srv, "/report")
	var report map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if _, ok := report["per_strategy_breakdown"]; !ok {
		t.Errorf("report missing per_strategy_breakdown: %v", report)
	}

	rec = get(srv, "/report?format=yaml")
	if !strings.Contains(rec.Body.String(), "target_count:") {
		t.Errorf("yaml report = %q", rec.Body.String())
	}
	if rec := get(srv, "/report?format=xml"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServer_StrategiesAndVariants(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	var strategies []strategyResponse
	if err := json.NewDecoder(get(srv, "/strategies").Body).Decode(&strategies); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(strategies) == 0 || strategies[0].ID != "greenhouse" {
		t.Errorf("strategies = %+v", strategies)
	}
	if strategies[0].Profile.MaxAttempts != 3 {
		t.Errorf("profile = %+v", strategies[0].Profile)
	}

	var variants variantsResponse
	if err := json.NewDecoder(get(srv, "/variants").Body).Decode(&variants); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(variants.Variants) != 4 {
		t.Errorf("variants = %+v", variants.Variants)
	}
	if variants.Recommendation.Variant != speed.DefaultVariant {
		t.Errorf("recommendation = %+v", variants.Recommendation)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	if rec := get(srv, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
