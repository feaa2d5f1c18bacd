// Package csvsftp pulls flight schedules dropped as CSV files on an SFTP
// endpoint, the common interchange format for ops-control exports.
package csvsftp

import (
	"io"

	"irops/internal/ingest"
	"irops/internal/integrations"
	"irops/internal/model"
)

// Opener lists and opens feed files newer than a marker. The SFTP session
// lives behind this so the adapter stays testable with local files.
type Opener interface {
	Open(since, cursor string) (io.ReadCloser, string, error)
}

// Adapter parses CSV flight and restriction drops into model records.
type Adapter struct {
	Flights      Opener
	Restrictions Opener
}

func (a *Adapter) Name() string { return "csv-sftp" }

func (a *Adapter) Authenticate(cfg map[string]any) (integrations.AuthState, error) {
	return integrations.AuthState{Method: "sftp", Token: "keyref://irops-feed"}, nil
}

func (a *Adapter) FetchFlights(since, cursor string) (integrations.FlightBatch, error) {
	rc, next, err := a.Flights.Open(since, cursor)
	if err != nil {
		return integrations.FlightBatch{}, err
	}
	defer func() { _ = rc.Close() }()
	flights, errs := ingest.LoadFlights(rc)
	return integrations.FlightBatch{Flights: flights, Cursor: next, Skipped: len(errs)}, nil
}

func (a *Adapter) FetchRestrictions(since string) ([]model.Restriction, error) {
	rc, _, err := a.Restrictions.Open(since, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	rs, _ := ingest.LoadRestrictions(rc)
	return rs, nil
}

func (a *Adapter) AckFlights(ids []string) error { return nil }
