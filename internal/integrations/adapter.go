// Package integrations defines the extension point for external flight
// schedule and restriction feeds.
package integrations

import "irops/internal/model"

// FeedAdapter is the minimal interface a schedule-source integration
// implements. Adapters pull disrupted flight sets and any carrier-issued
// restrictions for a recovery run.
type FeedAdapter interface {
	Name() string
	Authenticate(cfg map[string]any) (AuthState, error)
	FetchFlights(since, cursor string) (FlightBatch, error)
	FetchRestrictions(since string) ([]model.Restriction, error)
	AckFlights(ids []string) error
}

type AuthState struct {
	Method string
	Token  string
}

// FlightBatch is one page of flights plus a resume cursor.
type FlightBatch struct {
	Flights []model.Flight
	Cursor  string
	Skipped int // rows dropped by the parser
}
