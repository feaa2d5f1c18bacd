// Package ingest loads flight sets and restriction catalogues from CSV.
// Bad rows are skipped and reported, never fatal.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"irops/internal/model"
)

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return cr
}

// flightRow maps one CSV record onto the flight fields. Times are RFC3339.
type flightRow struct {
	ID            string  `csv:"id"`
	Number        string  `csv:"number"`
	Carrier       string  `csv:"carrier"`
	Departure     string  `csv:"departure_airport"`
	Arrival       string  `csv:"arrival_airport"`
	DepTime       string  `csv:"scheduled_departure"`
	ArrTime       string  `csv:"scheduled_arrival"`
	AircraftID    string  `csv:"aircraft_id,omitempty"`
	AircraftType  string  `csv:"aircraft_type,omitempty"`
	Passengers    int     `csv:"passengers,omitempty"`
	Revenue       float64 `csv:"revenue,omitempty"`
	International bool    `csv:"international,omitempty"`
}

type restrictionRow struct {
	ID       string `csv:"id"`
	Category string `csv:"category"`
	Priority string `csv:"priority,omitempty"`
	Kind     string `csv:"kind"`

	WindowStartMin int `csv:"window_start_min,omitempty"`
	WindowEndMin   int `csv:"window_end_min,omitempty"`
	SlotLimit      int `csv:"slot_limit,omitempty"`
	MinTurnaround  int `csv:"min_turnaround_min,omitempty"`
	MinPrep        int `csv:"min_prep_min,omitempty"`

	BannedTypes   string `csv:"banned_types,omitempty"`   // pipe-separated
	RequiredTypes string `csv:"required_types,omitempty"` // pipe-separated
	EquippedTypes string `csv:"equipped_types,omitempty"` // pipe-separated
	OverWater     bool   `csv:"over_water,omitempty"`
	HighAltitude  bool   `csv:"high_altitude,omitempty"`

	Airport     string `csv:"airport,omitempty"`
	AirportRole string `csv:"airport_role,omitempty"`
	Carrier     string `csv:"carrier_scope,omitempty"`
	FlightNum   string `csv:"flight_number,omitempty"`
	DepAirport  string `csv:"departure_airport,omitempty"`
	ArrAirport  string `csv:"arrival_airport,omitempty"`
	StartDate   string `csv:"start_date,omitempty"` // 2006-01-02
	EndDate     string `csv:"end_date,omitempty"`
	DaysOfWeek  string `csv:"days_of_week,omitempty"`

	Remarks string `csv:"remarks,omitempty"`
	Source  string `csv:"source,omitempty"`
}

// LoadFlights decodes flight records, skipping rows that fail to parse.
func LoadFlights(r io.Reader) ([]model.Flight, []error) {
	dec, err := csvutil.NewDecoder(newCSVReader(r))
	if err != nil {
		return nil, []error{fmt.Errorf("flight csv header: %w", err)}
	}
	var out []model.Flight
	var errs []error
	for line := 2; ; line++ {
		var row flightRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errs = append(errs, fmt.Errorf("flight csv line %d: %w", line, err))
			continue
		}
		f, err := row.toFlight()
		if err != nil {
			errs = append(errs, fmt.Errorf("flight csv line %d: %w", line, err))
			continue
		}
		out = append(out, f)
	}
	return out, errs
}

// LoadRestrictions decodes catalogue records, skipping rows that fail.
func LoadRestrictions(r io.Reader) ([]model.Restriction, []error) {
	dec, err := csvutil.NewDecoder(newCSVReader(r))
	if err != nil {
		return nil, []error{fmt.Errorf("restriction csv header: %w", err)}
	}
	var out []model.Restriction
	var errs []error
	for line := 2; ; line++ {
		var row restrictionRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errs = append(errs, fmt.Errorf("restriction csv line %d: %w", line, err))
			continue
		}
		rec, err := row.toRestriction()
		if err != nil {
			errs = append(errs, fmt.Errorf("restriction csv line %d: %w", line, err))
			continue
		}
		out = append(out, rec)
	}
	return out, errs
}

func (r flightRow) toFlight() (model.Flight, error) {
	if r.ID == "" {
		return model.Flight{}, fmt.Errorf("id required")
	}
	dep, err := time.Parse(time.RFC3339, r.DepTime)
	if err != nil {
		return model.Flight{}, fmt.Errorf("scheduled_departure: %w", err)
	}
	arr, err := time.Parse(time.RFC3339, r.ArrTime)
	if err != nil {
		return model.Flight{}, fmt.Errorf("scheduled_arrival: %w", err)
	}
	if !arr.After(dep) {
		return model.Flight{}, fmt.Errorf("arrival must be after departure")
	}
	return model.Flight{
		ID:                 r.ID,
		Number:             r.Number,
		Carrier:            r.Carrier,
		DepartureAirport:   r.Departure,
		ArrivalAirport:     r.Arrival,
		ScheduledDeparture: dep,
		ScheduledArrival:   arr,
		AircraftID:         r.AircraftID,
		AircraftType:       r.AircraftType,
		Passengers:         r.Passengers,
		Revenue:            r.Revenue,
		International:      r.International,
	}, nil
}

func (r restrictionRow) toRestriction() (model.Restriction, error) {
	if r.ID == "" {
		return model.Restriction{}, fmt.Errorf("id required")
	}
	rec := model.Restriction{
		ID:       r.ID,
		Category: model.RestrictionCategory(strings.ToUpper(r.Category)),
		Priority: model.ParsePriority(r.Priority),
		Scope: model.Scope{
			Airport:          r.Airport,
			AirportRole:      strings.ToUpper(r.AirportRole),
			Carrier:          r.Carrier,
			FlightNumber:     r.FlightNum,
			DepartureAirport: r.DepAirport,
			ArrivalAirport:   r.ArrAirport,
			DaysOfWeek:       r.DaysOfWeek,
		},
		Cond: model.Condition{
			Kind:             model.ConditionKind(strings.ToUpper(r.Kind)),
			WindowStartMin:   r.WindowStartMin,
			WindowEndMin:     r.WindowEndMin,
			SlotLimit:        r.SlotLimit,
			MinTurnaroundMin: r.MinTurnaround,
			MinPrepMin:       r.MinPrep,
			BannedTypes:      splitList(r.BannedTypes),
			RequiredTypes:    splitList(r.RequiredTypes),
			EquippedTypes:    splitList(r.EquippedTypes),
			OverWater:        r.OverWater,
			HighAltitude:     r.HighAltitude,
		},
		Remarks: r.Remarks,
		Source:  r.Source,
	}
	var err error
	if rec.Scope.StartDate, err = parseDate(r.StartDate); err != nil {
		return model.Restriction{}, fmt.Errorf("start_date: %w", err)
	}
	if rec.Scope.EndDate, err = parseDate(r.EndDate); err != nil {
		return model.Restriction{}, fmt.Errorf("end_date: %w", err)
	}
	return rec, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
