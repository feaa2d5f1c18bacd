// Package check evaluates candidate flight adjustments against the
// restriction catalogue. The checker is stateless: identical inputs always
// yield identical violations, which keeps solves reproducible.
package check

import (
	"fmt"
	"time"

	"irops/internal/catalog"
	"irops/internal/model"
)

// Checker wraps a read-only catalogue.
type Checker struct {
	Cat *catalog.Catalogue
}

func New(cat *catalog.Catalogue) *Checker {
	return &Checker{Cat: cat}
}

// Evaluate returns every violation the candidate adjustment would cause.
// MUST-priority violations mean the candidate is infeasible outright; the
// rest are penalty material for the model builder.
func (c *Checker) Evaluate(f model.Flight, cand model.Candidate) []model.Violation {
	dep := cand.Departure(f)
	arr := cand.Arrival(f)
	var out []model.Violation
	for _, r := range c.Cat.Query(f, cand, dep) {
		if v, ok := c.check(r, f, cand, dep, arr); ok {
			out = append(out, v)
		}
	}
	return out
}

// HasMust reports whether any violation in vs is MUST priority.
func HasMust(vs []model.Violation) bool {
	for _, v := range vs {
		if v.Priority == model.PriorityMust {
			return true
		}
	}
	return false
}

func (c *Checker) check(r model.Restriction, f model.Flight, cand model.Candidate, dep, arr time.Time) (model.Violation, bool) {
	make := func(detail string) (model.Violation, bool) {
		return model.Violation{
			FlightID:      f.ID,
			RestrictionID: r.ID,
			Priority:      r.Priority,
			Kind:          r.Cond.Kind,
			Detail:        detail,
		}, true
	}

	switch r.Cond.Kind {
	case model.CondCurfew:
		if cand.Cancel {
			return model.Violation{}, false
		}
		depAp := f.DepartureAirport
		if cand.NewDeparture != "" {
			depAp = cand.NewDeparture
		}
		arrAp := f.ArrivalAirport
		if cand.NewArrival != "" {
			arrAp = cand.NewArrival
		}
		if curfewHits(r, depAp, "DEPARTURE", dep) {
			return make(fmt.Sprintf("departure %s inside curfew %s", depAp, windowString(r.Cond)))
		}
		if curfewHits(r, arrAp, "ARRIVAL", arr) {
			return make(fmt.Sprintf("arrival %s inside curfew %s", arrAp, windowString(r.Cond)))
		}

	case model.CondCapacity:
		// Aggregate slot limits couple flights and are enforced by the
		// model builder. A zero limit closes the window for everyone.
		if cand.Cancel || r.Cond.SlotLimit > 0 {
			return model.Violation{}, false
		}
		if catalog.InWindow(r.Cond.WindowStartMin, r.Cond.WindowEndMin, catalog.MinuteOfDay(dep)) {
			return make(fmt.Sprintf("window %s closed for departures", windowString(r.Cond)))
		}

	case model.CondTurnaround:
		if cand.Cancel || cand.NewAircraft != "" || cand.InboundReady.IsZero() {
			return model.Violation{}, false
		}
		ready := cand.InboundReady.Add(time.Duration(r.Cond.MinTurnaroundMin) * time.Minute)
		if dep.Before(ready) {
			short := int(ready.Sub(dep).Minutes())
			return make(fmt.Sprintf("turnaround short by %d min (minimum %d)", short, r.Cond.MinTurnaroundMin))
		}

	case model.CondAircraftType:
		if cand.Cancel {
			return model.Violation{}, false
		}
		typ := f.AircraftType
		if cand.NewType != "" {
			typ = cand.NewType
		}
		for _, banned := range r.Cond.BannedTypes {
			if banned == typ {
				return make(fmt.Sprintf("aircraft type %s banned", typ))
			}
		}
		if len(r.Cond.RequiredTypes) > 0 && !contains(r.Cond.RequiredTypes, typ) {
			return make(fmt.Sprintf("aircraft type %s not among permitted types", typ))
		}

	case model.CondSector:
		if cand.Cancel {
			return model.Violation{}, false
		}
		typ := f.AircraftType
		if cand.NewType != "" {
			typ = cand.NewType
		}
		if len(r.Cond.EquippedTypes) > 0 && !contains(r.Cond.EquippedTypes, typ) {
			return make(fmt.Sprintf("type %s lacks equipment for sector (%s)", typ, sectorNote(r.Cond)))
		}
		if r.Cond.MinPrepMin > 0 && cand.DelayMinutes < r.Cond.MinPrepMin {
			return make(fmt.Sprintf("sector requires %d min preparation", r.Cond.MinPrepMin))
		}
	}
	return model.Violation{}, false
}

func curfewHits(r model.Restriction, airport, role string, at time.Time) bool {
	scoped := r.Scope.Airport
	if scoped != "" && scoped != airport {
		return false
	}
	switch r.Scope.AirportRole {
	case "DEPARTURE":
		if role != "DEPARTURE" {
			return false
		}
	case "ARRIVAL":
		if role != "ARRIVAL" {
			return false
		}
	}
	return catalog.InWindow(r.Cond.WindowStartMin, r.Cond.WindowEndMin, catalog.MinuteOfDay(at))
}

func windowString(c model.Condition) string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		c.WindowStartMin/60, c.WindowStartMin%60, c.WindowEndMin/60, c.WindowEndMin%60)
}

func sectorNote(c model.Condition) string {
	switch {
	case c.OverWater:
		return "over-water"
	case c.HighAltitude:
		return "high-altitude airport"
	}
	return "special handling"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Summary counts applicable restrictions per category for one flight at a
// point in time. Used for run diagnostics.
func (c *Checker) Summary(f model.Flight, at time.Time) map[model.RestrictionCategory]int {
	out := map[model.RestrictionCategory]int{}
	for _, r := range c.Cat.Query(f, model.Candidate{}, at) {
		out[r.Category]++
	}
	return out
}
