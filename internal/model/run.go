package model

import "time"

// RunStatus tracks a recovery run through its lifecycle.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the persisted record of one recovery invocation.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	FlightCount int        `json:"flightCount"`
	Strategies  []string   `json:"strategies"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Subscription registers a webhook endpoint for run lifecycle events.
type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionRequest is the creation payload for a Subscription.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}
