package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"irops/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu           sync.Mutex
	runs         map[string]model.Run
	runOrder     []string // insertion order for listing
	results      map[string]model.RunResult
	restrictions []model.Restriction
	subs         []model.Subscription
	deliveries   map[string]*memDelivery
	deliveryIDs  []string
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		results:    map[string]model.RunResult{},
		deliveries: map[string]*memDelivery{},
	}
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	m.runOrder = append(m.runOrder, run.ID)
	return nil
}

func (m *Memory) SetRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.Error = errMsg
	now := time.Now().UTC()
	switch status {
	case model.RunRunning:
		r.StartedAt = &now
	case model.RunCompleted, model.RunFailed:
		r.FinishedAt = &now
	}
	m.runs[runID] = r
	return nil
}

func (m *Memory) GetRun(ctx context.Context, runID string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.runOrder {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Run{}
	for i := start; i < len(m.runOrder) && len(out) < limit; i++ {
		out = append(out, m.runs[m.runOrder[i]])
	}
	next := ""
	if len(out) == limit && start+limit < len(m.runOrder) {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SaveRunResult(ctx context.Context, res model.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.RunID] = res
	return nil
}

func (m *Memory) GetRunResult(ctx context.Context, runID string) (model.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[runID]
	if !ok {
		return model.RunResult{}, ErrNotFound
	}
	return res, nil
}

func (m *Memory) GetPlan(ctx context.Context, runID, planID string) (model.Plan, error) {
	res, err := m.GetRunResult(ctx, runID)
	if err != nil {
		return model.Plan{}, err
	}
	for _, p := range res.Plans {
		if p.ID == planID {
			return p, nil
		}
	}
	return model.Plan{}, ErrNotFound
}

func (m *Memory) ListDispatch(ctx context.Context, runID, planID string) ([]model.DispatchAction, error) {
	res, err := m.GetRunResult(ctx, runID)
	if err != nil {
		return nil, err
	}
	acts, ok := res.Dispatch[planID]
	if !ok {
		return nil, ErrNotFound
	}
	return acts, nil
}

func (m *Memory) ReplaceRestrictions(ctx context.Context, rs []model.Restriction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restrictions = append([]model.Restriction(nil), rs...)
	return len(rs), nil
}

func (m *Memory) ListRestrictions(ctx context.Context, airport, category string) ([]model.Restriction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Restriction{}
	for _, r := range m.restrictions {
		if airport != "" && r.Scope.Airport != airport {
			continue
		}
		if category != "" && string(r.Category) != category {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{
		ID:        uuid.New().String(),
		URL:       req.URL,
		Events:    req.Events,
		Secret:    req.Secret,
		CreatedAt: time.Now().UTC(),
	}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i := range m.subs {
			if m.subs[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(m.subs) {
		end = len(m.subs)
	}
	items := append([]model.Subscription(nil), m.subs[start:end]...)
	next := ""
	if end < len(m.subs) {
		next = m.subs[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID:             id,
			SubscriptionID: subscriptionID,
			EventType:      eventType,
			URL:            url,
			Secret:         secret,
			Payload:        payload,
			Status:         "pending",
		},
		NextAttemptAt: time.Now().UTC(),
	}
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()
	var out []WebhookDelivery
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		d.Status = "in_flight"
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		return nil
	}
	d.Status = "pending"
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
