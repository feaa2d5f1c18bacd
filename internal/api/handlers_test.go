package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"irops/internal/config"
	"irops/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Solver.TimeLimitSec = 5
	cfg.Solver.MaxDelayMinutes = 720
	cfg.Costs.DelayPerMinute = 0.1
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return s
}

func testRecoverRequest() RecoverRequest {
	dep := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	return RecoverRequest{
		Flights: []model.Flight{{
			ID: "F1", Number: "101", Carrier: "XX",
			DepartureAirport: "AAA", ArrivalAirport: "BBB",
			ScheduledDeparture: dep, ScheduledArrival: dep.Add(3 * time.Hour),
			AircraftType: "B738", Passengers: 150, Revenue: 50000,
		}},
		Strategies: []model.WeightStrategy{{Name: "balanced", Cancel: 1, Delay: 1}},
		Restrictions: []model.Restriction{{
			ID: "CUR-M", Priority: model.PriorityMedium,
			Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
			Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 600, WindowEndMin: 720},
		}},
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func get(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

type recoverResponse struct {
	RunID       string                            `json:"runId"`
	SkippedRows int                               `json:"skippedRows"`
	Plans       []model.Plan                      `json:"plans"`
	Ranked      []model.RankedPlan                `json:"ranked"`
	Recommended string                            `json:"recommendedPlanId"`
	Dispatch    map[string][]model.DispatchAction `json:"dispatch"`
	Diagnostics []model.StrategyDiagnostic        `json:"diagnostics"`
}

func TestRecoverEndToEnd(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s.RecoverHandler, "/v1/recover", testRecoverRequest(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recover: %d %s", w.Code, w.Body.String())
	}
	var resp recoverResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID == "" || len(resp.Plans) != 1 || resp.Recommended != "plan-balanced" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	// The soft curfew is cheapest to escape with a 60 min slide.
	p := resp.Plans[0]
	if p.Delayed != 1 || p.TotalDelayMin != 60 {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if as := resp.Dispatch["plan-balanced"]; len(as) != 1 || as[0].Type != model.ActionChangeTime {
		t.Fatalf("unexpected dispatch: %+v", resp.Dispatch)
	}

	// The run and its subresources are retrievable afterwards.
	w = get(s.RunByIDHandler, "/v1/runs/"+resp.RunID)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"completed"`) {
		t.Fatalf("run fetch: %d %s", w.Code, w.Body.String())
	}
	w = get(s.RunByIDHandler, "/v1/runs/"+resp.RunID+"/plans/plan-balanced")
	if w.Code != http.StatusOK {
		t.Fatalf("plan fetch: %d %s", w.Code, w.Body.String())
	}
	w = get(s.RunByIDHandler, "/v1/runs/"+resp.RunID+"/dispatch")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"plan-balanced"`) {
		t.Fatalf("dispatch should default to the recommended plan: %d %s", w.Code, w.Body.String())
	}
	w = get(s.RunsIndexHandler, "/v1/runs")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), resp.RunID) {
		t.Fatalf("runs index: %d %s", w.Code, w.Body.String())
	}
}

func TestRecoverForbiddenForViewer(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s.RecoverHandler, "/v1/recover", testRecoverRequest(), map[string]string{"X-Role": "viewer"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer should be rejected: %d %s", w.Code, w.Body.String())
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil || p.Status != http.StatusForbidden {
		t.Fatalf("problem body: %+v, %v", p, err)
	}
	// Dispatchers may start runs.
	w = postJSON(t, s.RecoverHandler, "/v1/recover", testRecoverRequest(), map[string]string{"X-Role": "dispatcher"})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatcher should pass: %d %s", w.Code, w.Body.String())
	}
}

func TestRecoverValidation(t *testing.T) {
	s := newTestServer(t)
	req := testRecoverRequest()
	req.Flights = nil
	w := postJSON(t, s.RecoverHandler, "/v1/recover", req, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "flights must not be empty") {
		t.Fatalf("empty flights: %d %s", w.Code, w.Body.String())
	}

	req = testRecoverRequest()
	req.Strategies = append(req.Strategies, req.Strategies[0])
	w = postJSON(t, s.RecoverHandler, "/v1/recover", req, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "duplicate strategy") {
		t.Fatalf("duplicate strategy: %d %s", w.Code, w.Body.String())
	}

	req = testRecoverRequest()
	req.Alternates = map[string][]model.Candidate{"F9": {{DelayMinutes: 10}}}
	w = postJSON(t, s.RecoverHandler, "/v1/recover", req, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "unknown flight") {
		t.Fatalf("unknown alternate: %d %s", w.Code, w.Body.String())
	}
}

func TestRecoverRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.TimeLimitSec = 5
	cfg.RecoverRPS = 0.001
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if w := postJSON(t, s.RecoverHandler, "/v1/recover", testRecoverRequest(), nil); w.Code != http.StatusOK {
		t.Fatalf("first run should pass: %d %s", w.Code, w.Body.String())
	}
	if w := postJSON(t, s.RecoverHandler, "/v1/recover", testRecoverRequest(), nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second run should be limited: %d %s", w.Code, w.Body.String())
	}
}

func TestRestrictionsUploadAndList(t *testing.T) {
	s := newTestServer(t)
	body := []model.Restriction{
		{
			ID: "R1", Category: model.CategoryAirportRestriction, Priority: model.PriorityMust,
			Scope: model.Scope{Airport: "AAA"},
			Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 1320, WindowEndMin: 360},
		},
		{ID: "R2", Priority: "URGENT", Cond: model.Condition{Kind: model.CondCurfew}},
	}
	w := postJSON(t, s.RestrictionsHandler, "/v1/restrictions", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Accepted int `json:"accepted"`
		Skipped  int `json:"skipped"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Accepted != 1 || resp.Skipped != 1 {
		t.Fatalf("upload counts: %+v, %v", resp, err)
	}

	w = postJSON(t, s.RestrictionsHandler, "/v1/restrictions", body, map[string]string{"X-Role": "dispatcher"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("upload is admin only: %d", w.Code)
	}

	w = get(s.RestrictionsHandler, "/v1/restrictions?airport=AAA")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"R1"`) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	w = get(s.RestrictionsHandler, "/v1/restrictions?airport=ZZZ")
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), `"R1"`) {
		t.Fatalf("filtered list should be empty: %s", w.Body.String())
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions",
		model.SubscriptionRequest{URL: "http://hook.test/x", Events: []string{"run.completed"}, Secret: "s3"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var sub model.Subscription
	if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil || sub.ID == "" {
		t.Fatalf("created subscription: %+v, %v", sub, err)
	}
	if strings.Contains(w.Body.String(), "s3") {
		t.Fatalf("secret must never be serialized: %s", w.Body.String())
	}

	w = postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", model.SubscriptionRequest{URL: "http://hook.test/y"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("events are required: %d", w.Code)
	}

	w = get(s.SubscriptionsHandler, "/v1/subscriptions")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	del := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+id, nil)
		w := httptest.NewRecorder()
		s.SubscriptionByIDHandler(w, req)
		return w
	}
	if w := del(sub.ID); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := del(sub.ID); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d %s", w.Code, w.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)
	w := get(s.HealthHandler, "/healthz")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	w = get(s.ReadyHandler, "/readyz")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"bnb"`) {
		t.Fatalf("ready: %d %s", w.Code, w.Body.String())
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	if w := get(s.RunByIDHandler, "/v1/runs/nope"); w.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", w.Code)
	}
	if w := get(s.RunByIDHandler, "/v1/runs/nope/plans"); w.Code != http.StatusNotFound {
		t.Fatalf("missing plans: %d", w.Code)
	}
}
