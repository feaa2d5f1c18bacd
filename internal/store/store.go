package store

import (
	"context"
	"errors"
	"time"

	"irops/internal/model"
)

// Store is the persistence interface used by the API server and the
// webhook worker. Runs and their results are write-once; restrictions
// are replaced wholesale on upload.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	SetRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (model.Run, error)
	ListRuns(ctx context.Context, cursor string, limit int) ([]model.Run, string, error)

	// Results
	SaveRunResult(ctx context.Context, res model.RunResult) error
	GetRunResult(ctx context.Context, runID string) (model.RunResult, error)
	GetPlan(ctx context.Context, runID, planID string) (model.Plan, error)
	ListDispatch(ctx context.Context, runID, planID string) ([]model.DispatchAction, error)

	// Restrictions
	ReplaceRestrictions(ctx context.Context, rs []model.Restriction) (int, error)
	ListRestrictions(ctx context.Context, airport, category string) ([]model.Restriction, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
