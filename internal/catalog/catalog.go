// Package catalog stores the operating-restriction catalogue and answers
// scope queries for the evaluator. The catalogue is immutable after Load
// and safe for concurrent readers.
package catalog

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"irops/internal/model"
)

// Catalogue indexes restrictions by airport and carrier so repeated
// (flight, action) queries avoid linear scans.
type Catalogue struct {
	all       []model.Restriction
	byAirport map[string][]int // airport code -> indices into all
	byCarrier map[string][]int
	global    []int // restrictions with neither airport nor carrier scope
}

// Load validates records into a Catalogue. Malformed or duplicate rows are
// skipped and reported, never fatal: partial restriction coverage beats
// refusing to run.
func Load(records []model.Restriction) (*Catalogue, []error) {
	c := &Catalogue{
		byAirport: map[string][]int{},
		byCarrier: map[string][]int{},
	}
	var problems []error
	seen := map[string]bool{}
	for i, r := range records {
		if err := validate(r); err != nil {
			problems = append(problems, fmt.Errorf("%w: row %d (%s): %v", model.ErrDataIntegrity, i, r.ID, err))
			log.Printf("catalog: skipping restriction %q: %v", r.ID, err)
			continue
		}
		if seen[r.ID] {
			problems = append(problems, fmt.Errorf("%w: duplicate restriction id %q", model.ErrDataIntegrity, r.ID))
			log.Printf("catalog: skipping duplicate restriction %q", r.ID)
			continue
		}
		seen[r.ID] = true
		idx := len(c.all)
		c.all = append(c.all, r)

		airports := scopeAirports(r.Scope)
		for _, ap := range airports {
			c.byAirport[ap] = append(c.byAirport[ap], idx)
		}
		if r.Scope.Carrier != "" {
			c.byCarrier[r.Scope.Carrier] = append(c.byCarrier[r.Scope.Carrier], idx)
		}
		if len(airports) == 0 && r.Scope.Carrier == "" {
			c.global = append(c.global, idx)
		}
	}
	return c, problems
}

func scopeAirports(s model.Scope) []string {
	set := map[string]bool{}
	for _, ap := range []string{s.Airport, s.DepartureAirport, s.ArrivalAirport} {
		if ap != "" {
			set[ap] = true
		}
	}
	out := make([]string, 0, len(set))
	for ap := range set {
		out = append(out, ap)
	}
	sort.Strings(out)
	return out
}

func validate(r model.Restriction) error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch r.Priority {
	case model.PriorityMust, model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
	default:
		return fmt.Errorf("unknown priority %q", r.Priority)
	}
	switch r.Cond.Kind {
	case model.CondCurfew, model.CondCapacity:
		if r.Cond.WindowStartMin < 0 || r.Cond.WindowStartMin >= 24*60 ||
			r.Cond.WindowEndMin < 0 || r.Cond.WindowEndMin >= 24*60 {
			return fmt.Errorf("window out of range")
		}
		if r.Cond.Kind == model.CondCapacity && r.Cond.SlotLimit < 0 {
			return fmt.Errorf("negative slot limit")
		}
	case model.CondTurnaround:
		if r.Cond.MinTurnaroundMin <= 0 {
			return fmt.Errorf("turnaround requires a positive minimum")
		}
	case model.CondAircraftType:
		if len(r.Cond.BannedTypes) == 0 && len(r.Cond.RequiredTypes) == 0 {
			return fmt.Errorf("aircraft-type condition with no type lists")
		}
	case model.CondSector:
		if r.Scope.DepartureAirport == "" && r.Scope.ArrivalAirport == "" {
			return fmt.Errorf("sector condition without a sector scope")
		}
	default:
		return fmt.Errorf("unknown condition kind %q", r.Cond.Kind)
	}
	return nil
}

// Len reports how many restrictions were accepted.
func (c *Catalogue) Len() int { return len(c.all) }

// All returns every accepted restriction, in load order.
func (c *Catalogue) All() []model.Restriction {
	out := make([]model.Restriction, len(c.all))
	copy(out, c.all)
	return out
}

// Get returns a restriction by ID.
func (c *Catalogue) Get(id string) (model.Restriction, bool) {
	for _, r := range c.all {
		if r.ID == id {
			return r, true
		}
	}
	return model.Restriction{}, false
}

// Query returns every restriction whose scope matches the flight under the
// proposed candidate, at the candidate's resulting departure time. Scope
// predicates AND-combine; an unset field always matches. Results are
// ordered by restriction ID so evaluation is deterministic.
func (c *Catalogue) Query(f model.Flight, cand model.Candidate, at time.Time) []model.Restriction {
	dep := f.DepartureAirport
	if cand.NewDeparture != "" {
		dep = cand.NewDeparture
	}
	arr := f.ArrivalAirport
	if cand.NewArrival != "" {
		arr = cand.NewArrival
	}

	seen := map[int]bool{}
	var idxs []int
	collect := func(list []int) {
		for _, i := range list {
			if !seen[i] {
				seen[i] = true
				idxs = append(idxs, i)
			}
		}
	}
	collect(c.byAirport[dep])
	collect(c.byAirport[arr])
	collect(c.byCarrier[f.Carrier])
	collect(c.global)

	var out []model.Restriction
	for _, i := range idxs {
		r := c.all[i]
		if matches(r.Scope, f, dep, arr, at) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matches(s model.Scope, f model.Flight, dep, arr string, at time.Time) bool {
	if s.Airport != "" && s.Airport != dep && s.Airport != arr {
		return false
	}
	if s.Airport != "" {
		switch s.AirportRole {
		case "DEPARTURE":
			if s.Airport != dep {
				return false
			}
		case "ARRIVAL":
			if s.Airport != arr {
				return false
			}
		}
	}
	if s.Carrier != "" && s.Carrier != f.Carrier {
		return false
	}
	if s.FlightNumber != "" && strings.TrimLeft(s.FlightNumber, "0") != strings.TrimLeft(f.Number, "0") {
		return false
	}
	if s.DepartureAirport != "" && s.DepartureAirport != dep {
		return false
	}
	if s.ArrivalAirport != "" && s.ArrivalAirport != arr {
		return false
	}
	if !s.StartDate.IsZero() && at.Before(s.StartDate) {
		return false
	}
	if !s.EndDate.IsZero() && at.After(s.EndDate) {
		return false
	}
	if s.DaysOfWeek != "" && !dayMatches(s.DaysOfWeek, at) {
		return false
	}
	return true
}

// dayMatches uses the feed convention 1=Monday..7=Sunday.
func dayMatches(days string, at time.Time) bool {
	wd := int(at.Weekday())
	if wd == 0 {
		wd = 7
	}
	return strings.ContainsRune(days, rune('0'+wd))
}

// InWindow reports whether a minute-of-day falls inside a window that may
// cross midnight. Start == End covers the whole day.
func InWindow(startMin, endMin, minOfDay int) bool {
	if startMin == endMin {
		return true
	}
	if startMin < endMin {
		return minOfDay >= startMin && minOfDay < endMin
	}
	return minOfDay >= startMin || minOfDay < endMin
}

// MinuteOfDay converts a timestamp to minutes since local midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
