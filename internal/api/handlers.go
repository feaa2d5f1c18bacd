package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"irops/internal/buildinfo"
	"irops/internal/catalog"
	"irops/internal/engine"
	"irops/internal/metrics"
	"irops/internal/milp"
	"irops/internal/model"
	"irops/internal/store"
	"irops/internal/webhooks"
)

// RecoverRequest is the body of POST /v1/recover. Restrictions override
// the stored catalogue when present; quotas default to unlimited.
type RecoverRequest struct {
	Flights      []model.Flight               `json:"flights"`
	Strategies   []model.WeightStrategy       `json:"strategies"`
	Restrictions []model.Restriction          `json:"restrictions,omitempty"`
	Spares       []milp.Spare                 `json:"spares,omitempty"`
	Alternates   map[string][]model.Candidate `json:"alternates,omitempty"`
	Added        map[string]bool              `json:"added,omitempty"`
	CancelQuota  *int                         `json:"cancelQuota,omitempty"`
	SwapQuota    *int                         `json:"swapQuota,omitempty"`
}

// RecoverHandler handles POST /v1/recover.
func (s *Server) RecoverHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.recoverLimiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "recovery run rate limit exceeded", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanRecover() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateRecoverRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid recover request", err.Error(), r.URL.Path)
		return
	}

	runID := uuid.New().String()
	names := make([]string, 0, len(req.Strategies))
	for _, st := range req.Strategies {
		names = append(names, st.Name)
	}
	run := model.Run{
		ID:          runID,
		Status:      model.RunPending,
		FlightCount: len(req.Flights),
		Strategies:  names,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Store.CreateRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
		return
	}
	_ = s.Store.SetRunStatus(r.Context(), runID, model.RunRunning, "")
	metrics.RunsStarted.Inc()

	restrictions := req.Restrictions
	if len(restrictions) == 0 {
		stored, err := s.Store.ListRestrictions(r.Context(), "", "")
		if err != nil {
			_ = s.Store.SetRunStatus(r.Context(), runID, model.RunFailed, err.Error())
			writeProblem(w, http.StatusInternalServerError, "Load restrictions failed", err.Error(), r.URL.Path)
			return
		}
		restrictions = stored
	}
	cat, loadErrs := catalog.Load(restrictions)
	for _, e := range loadErrs {
		log.Printf("recover %s: restriction skipped: %v", runID, e)
	}

	cancelQuota, swapQuota := -1, -1
	if req.CancelQuota != nil {
		cancelQuota = *req.CancelQuota
	}
	if req.SwapQuota != nil {
		swapQuota = *req.SwapQuota
	}
	result := s.Engine.Run(r.Context(), runID, cat, engine.Request{
		Flights:     req.Flights,
		Strategies:  req.Strategies,
		Spares:      req.Spares,
		Alternates:  req.Alternates,
		Added:       req.Added,
		CancelQuota: cancelQuota,
		SwapQuota:   swapQuota,
	})

	if err := s.Store.SaveRunResult(r.Context(), result); err != nil {
		_ = s.Store.SetRunStatus(r.Context(), runID, model.RunFailed, err.Error())
		writeProblem(w, http.StatusInternalServerError, "Save run result failed", err.Error(), r.URL.Path)
		return
	}
	_ = s.Store.SetRunStatus(r.Context(), runID, model.RunCompleted, "")

	s.Broker.Publish(runID, SSEEvent{Type: webhooks.EventRunCompleted, Data: map[string]any{
		"runId":       runID,
		"plans":       len(result.Plans),
		"recommended": result.Recommended,
	}})
	s.Pub.Emit(r.Context(), webhooks.EventRunCompleted, map[string]any{
		"runId": runID, "plans": len(result.Plans), "recommendedPlanId": result.Recommended,
	})
	if result.Recommended != "" {
		s.Pub.Emit(r.Context(), webhooks.EventPlanRecommended, map[string]any{
			"runId": runID, "planId": result.Recommended,
		})
		if acts := result.Dispatch[result.Recommended]; len(acts) > 0 {
			s.Pub.Emit(r.Context(), webhooks.EventDispatchCreated, map[string]any{
				"runId": runID, "planId": result.Recommended, "actions": len(acts),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runId":             runID,
		"skippedRows":       len(loadErrs),
		"plans":             result.Plans,
		"ranked":            result.Ranked,
		"recommendedPlanId": result.Recommended,
		"dispatch":          result.Dispatch,
		"diagnostics":       result.Diagnostics,
	})
}

// RunsIndexHandler handles GET /v1/runs.
func (s *Server) RunsIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRuns(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and its subresources:
// /plans, /plans/{planId}, /dispatch?planId= and /events/stream.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == "" || rest == r.URL.Path {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) >= 3 && parts[1] == "events" && parts[2] == "stream" {
		s.streamRunEvents(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch {
	case len(parts) == 1:
		run, err := s.Store.GetRun(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
			return
		}
		resp := map[string]any{"run": run}
		if res, err := s.Store.GetRunResult(r.Context(), id); err == nil {
			resp["ranked"] = res.Ranked
			resp["recommendedPlanId"] = res.Recommended
			resp["diagnostics"] = res.Diagnostics
		}
		writeJSON(w, http.StatusOK, resp)
	case len(parts) == 2 && parts[1] == "plans":
		res, err := s.Store.GetRunResult(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Run result not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": res.Plans})
	case len(parts) == 3 && parts[1] == "plans":
		plan, err := s.Store.GetPlan(r.Context(), id, parts[2])
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	case len(parts) == 2 && parts[1] == "dispatch":
		planID := r.URL.Query().Get("planId")
		if planID == "" {
			res, err := s.Store.GetRunResult(r.Context(), id)
			if err != nil || res.Recommended == "" {
				writeProblem(w, http.StatusNotFound, "No recommended plan", "", r.URL.Path)
				return
			}
			planID = res.Recommended
		}
		acts, err := s.Store.ListDispatch(r.Context(), id, planID)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Dispatch not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"planId": planID, "actions": acts})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// streamRunEvents serves run lifecycle events over SSE.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// RestrictionsHandler handles GET and POST /v1/restrictions.
func (s *Server) RestrictionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		airport := r.URL.Query().Get("airport")
		category := r.URL.Query().Get("category")
		items, err := s.Store.ListRestrictions(r.Context(), airport, category)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List restrictions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var rs []model.Restriction
		if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		cat, loadErrs := catalog.Load(rs)
		for _, e := range loadErrs {
			log.Printf("restrictions upload: row skipped: %v", e)
		}
		accepted := cat.All()
		if _, err := s.Store.ReplaceRestrictions(r.Context(), accepted); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Replace restrictions failed", err.Error(), r.URL.Path)
			return
		}
		metrics.RestrictionRows.WithLabelValues("accepted").Add(float64(len(accepted)))
		metrics.RestrictionRows.WithLabelValues("skipped").Add(float64(len(loadErrs)))
		writeJSON(w, http.StatusOK, map[string]any{"accepted": len(accepted), "skipped": len(loadErrs)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionsHandler handles POST and GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Info()
	info["status"] = "ok"
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"solver": s.Engine.Backend(),
	})
}
