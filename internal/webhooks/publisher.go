package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"irops/internal/store"
)

// Event types emitted over the run lifecycle.
const (
	EventRunCompleted    = "run.completed"
	EventRunFailed       = "run.failed"
	EventPlanRecommended = "plan.recommended"
	EventDispatchCreated = "dispatch.created"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit fans an event out to every matching subscription. Delivery is
// asynchronous; failures surface through the retry worker, not here.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}
