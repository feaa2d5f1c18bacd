package milp

import (
	"sort"
	"time"

	"irops/internal/catalog"
	"irops/internal/check"
	"irops/internal/model"
)

// Spare is an aircraft available for reassignment during the run.
type Spare struct {
	AircraftID   string `json:"aircraftId"`
	AircraftType string `json:"aircraftType"`
}

// Input is everything Build needs for one strategy's model.
type Input struct {
	Flights  []model.Flight
	Checker  *check.Checker
	Strategy model.WeightStrategy
	Params   Params

	// Spares enables aircraft-change options.
	Spares []Spare
	// Alternates carries externally proposed candidates per flight, e.g.
	// airport changes, nature changes or added sections.
	Alternates map[string][]model.Candidate
	// Added marks flights that are new sections rather than schedule.
	Added map[string]bool
}

// Build translates flights, applicable constraints and one weight vector
// into a Model. Flights are sorted by ID and every per-flight option list
// has a stable order, so identical inputs produce an identical model.
func Build(in Input) *Model {
	p := in.Params.withDefaults()

	flights := make([]model.Flight, len(in.Flights))
	copy(flights, in.Flights)
	sort.Slice(flights, func(i, j int) bool { return flights[i].ID < flights[j].ID })

	m := &Model{
		Flights:  flights,
		Strategy: in.Strategy,
		Params:   p,
	}

	capCoups, capUnmodeled := capacityCouplings(flights, in.Checker, p)
	m.Unmodeled = capUnmodeled
	turnCoups := turnaroundCouplings(flights, in.Checker, p)
	rotationDelays := rotationBreakpoints(flights, turnCoups, p)

	bindingSet := map[string]bool{}
	for i, f := range flights {
		vars := FlightVars{FlightID: f.ID, DelayUB: float64(p.MaxDelayMinutes), BigM: p.BigM}
		m.Vars = append(m.Vars, vars)

		opts, must := buildOptions(f, in, p, rotationDelays[i])
		for _, id := range must {
			bindingSet[id] = true
		}
		if len(opts) == 0 {
			m.Blocked = append(m.Blocked, Blocked{FlightID: f.ID, MustIDs: must})
		}
		m.Options = append(m.Options, opts)
	}
	m.BindingMust = sortedKeys(bindingSet)

	m.Couplings = append(m.Couplings, capCoups...)
	m.Couplings = append(m.Couplings, turnCoups...)
	if p.CancelQuota >= 0 {
		m.Couplings = append(m.Couplings, Coupling{
			Kind: CoupleQuotaCancel, RestrictionID: "CANCEL_QUOTA",
			Hard: true, Limit: p.CancelQuota,
			Members: allIndices(len(flights)),
		})
	}
	if p.SwapQuota >= 0 {
		m.Couplings = append(m.Couplings, Coupling{
			Kind: CoupleQuotaSwap, RestrictionID: "SWAP_QUOTA",
			Hard: true, Limit: p.SwapQuota,
			Members: allIndices(len(flights)),
		})
	}
	return m
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// rotationBreakpoints derives the delay each rotation successor needs to
// meet its minimum ground time when the predecessor runs on schedule.
func rotationBreakpoints(flights []model.Flight, coups []Coupling, p Params) map[int][]int {
	out := map[int][]int{}
	for _, c := range coups {
		ready := flights[c.PrevIdx].ScheduledArrival.Add(time.Duration(c.MinTurnMin) * time.Minute)
		need := int(ready.Sub(flights[c.NextIdx].ScheduledDeparture).Minutes())
		if need > 0 && need <= p.MaxDelayMinutes {
			out[c.NextIdx] = append(out[c.NextIdx], need)
		}
	}
	return out
}

// buildOptions enumerates the feasible variable assignments for one flight.
// Returns the options plus IDs of MUST restrictions that pruned candidates.
func buildOptions(f model.Flight, in Input, p Params, extraDelays []int) ([]Option, []string) {
	var opts []Option
	mustSet := map[string]bool{}

	addCandidate := func(cand model.Candidate) bool {
		vs := in.Checker.Evaluate(f, cand)
		if mustHit := collectMust(vs, mustSet); mustHit {
			return false
		}
		if !cand.Cancel && !dutyFits(f, cand.DelayMinutes, p) {
			mustSet["DUTY_LIMIT"] = true
			return false
		}
		o := priceOption(f, cand, vs, in, p)
		opts = append(opts, o)
		return true
	}

	// Execute options at the objective's delay breakpoints.
	points := delayBreakpoints(f, in.Checker, p, extraDelays)
	feasibleExec := false
	for _, d := range points {
		if addCandidate(model.Candidate{DelayMinutes: d}) {
			feasibleExec = true
		}
	}
	// Grid fallback when windows left no breakpoint feasible.
	if !feasibleExec {
		limit := p.MaxDelayMinutes
		if limit > 12*60 {
			limit = 12 * 60
		}
		for d := p.DelayStepMinutes; d <= limit; d += p.DelayStepMinutes {
			if addCandidate(model.Candidate{DelayMinutes: d}) {
				break
			}
		}
	}

	// Aircraft-change options from the spare pool.
	for _, sp := range in.Spares {
		for _, d := range points {
			if addCandidate(model.Candidate{DelayMinutes: d, NewAircraft: sp.AircraftID, NewType: sp.AircraftType}) {
				break
			}
		}
	}

	// Externally proposed alternates (airport change, nature change, added
	// sections) are priced as-is.
	for _, cand := range in.Alternates[f.ID] {
		addCandidate(cand)
	}

	// Cancellation is always in the domain.
	addCandidate(model.Candidate{Cancel: true})

	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Cost != opts[j].Cost {
			return opts[i].Cost < opts[j].Cost
		}
		if opts[i].Cand.DelayMinutes != opts[j].Cand.DelayMinutes {
			return opts[i].Cand.DelayMinutes < opts[j].Cand.DelayMinutes
		}
		return !opts[i].Cand.Cancel && opts[j].Cand.Cancel
	})
	return opts, sortedKeys(mustSet)
}

func collectMust(vs []model.Violation, mustSet map[string]bool) bool {
	hit := false
	for _, v := range vs {
		if v.Priority == model.PriorityMust {
			mustSet[v.RestrictionID] = true
			hit = true
		}
	}
	return hit
}

func dutyFits(f model.Flight, delayMin int, p Params) bool {
	if p.DutyMaxMinutes <= 0 {
		return true
	}
	duty := p.DutyPrepMinutes + f.BlockMinutes() + p.DutyPostMinutes + delayMin
	return duty <= p.DutyMaxMinutes
}

// delayBreakpoints collects the delay values worth probing: zero, the exits
// of every restriction window touching the flight, sector preparation
// minima and the rotation-implied minimum. Delay cost grows linearly, so
// the optimum sits on one of these points.
func delayBreakpoints(f model.Flight, ch *check.Checker, p Params, extra []int) []int {
	set := map[int]bool{0: true}
	for _, d := range extra {
		if d > 0 && d <= p.MaxDelayMinutes {
			set[d] = true
		}
	}
	depMin := catalog.MinuteOfDay(f.ScheduledDeparture)
	arrMin := catalog.MinuteOfDay(f.ScheduledArrival)

	for _, r := range ch.Cat.Query(f, model.Candidate{}, f.ScheduledDeparture) {
		switch r.Cond.Kind {
		case model.CondCurfew, model.CondCapacity:
			for _, base := range []int{depMin, arrMin} {
				if exit, ok := windowExit(r.Cond.WindowStartMin, r.Cond.WindowEndMin, base); ok && exit <= p.MaxDelayMinutes {
					set[exit] = true
				}
			}
		case model.CondSector:
			if r.Cond.MinPrepMin > 0 && r.Cond.MinPrepMin <= p.MaxDelayMinutes {
				set[r.Cond.MinPrepMin] = true
			}
		}
	}

	out := make([]int, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// windowExit returns the delay that moves minute-of-day m just past the end
// of a (possibly midnight-crossing) window, when m currently sits inside.
func windowExit(start, end, m int) (int, bool) {
	if start == end {
		return 0, false // whole-day window has no exit
	}
	if !catalog.InWindow(start, end, m) {
		return 0, false
	}
	exit := (end - m + 24*60) % (24 * 60)
	if exit == 0 {
		return 0, false
	}
	return exit, true
}

func priceOption(f model.Flight, cand model.Candidate, vs []model.Violation, in Input, p Params) Option {
	late := !cand.Cancel && cand.DelayMinutes > p.SevereDelayMinutes
	action := deriveAction(cand, in.Added[f.ID])
	penalty := 0.0
	soft := make([]model.Violation, 0, len(vs))
	for _, v := range vs {
		if v.Priority == model.PriorityMust {
			continue
		}
		soft = append(soft, v)
		penalty += p.PriorityWeight(v.Priority)
	}
	if len(soft) == 0 {
		soft = nil
	}
	cost := baseCost(f, cand, late, action, in.Strategy, p) + penalty
	return Option{
		Cand:         cand,
		Action:       action,
		SeverelyLate: late,
		Violations:   soft,
		Penalty:      penalty,
		Cost:         cost,
	}
}

// deriveAction picks the single action category for a candidate; the action
// indicators are mutually exclusive in the model.
func deriveAction(cand model.Candidate, added bool) model.ActionType {
	switch {
	case cand.Cancel:
		return model.ActionCancelFlight
	case added || cand.Added:
		return model.ActionAddFlight
	case cand.NewAircraft != "" || cand.NewType != "":
		return model.ActionChangeAircraft
	case cand.NewDeparture != "" || cand.NewArrival != "":
		return model.ActionChangeAirport
	case cand.NewNature != "":
		return model.ActionChangeNature
	case cand.DelayMinutes > 0:
		return model.ActionChangeTime
	}
	return ""
}

// baseCost is the weighted objective contribution of one assignment,
// before soft-violation penalties:
//
//	cancel:  w.cancel*revenue + w.revenue*revenue + w.actionCancel
//	execute: w.delay*delayCost + w.latePax*late*pax
//	         + w.revenue*late*pax*perLatePax + w.action_a
func baseCost(f model.Flight, cand model.Candidate, late bool, action model.ActionType, w model.WeightStrategy, p Params) float64 {
	if cand.Cancel {
		return w.Cancel*f.Revenue + w.Revenue*f.Revenue + w.ActionWeight(model.ActionCancelFlight)
	}
	c := w.Delay * float64(cand.DelayMinutes) * p.DelayPerMinute
	if late {
		c += w.LatePax * float64(f.Passengers)
		c += w.Revenue * float64(f.Passengers) * p.PerLatePax
	}
	c += w.ActionWeight(action)
	return c
}

// DecisionCost recomputes a decision's objective contribution from the
// plan alone, independent of the solver. Used to verify round-trip
// consistency between model and reported plan.
func DecisionCost(f model.Flight, d model.AdjustmentDecision, w model.WeightStrategy, p Params) float64 {
	p = p.withDefaults()
	cand := model.Candidate{
		Cancel:       d.Outcome == model.OutcomeCancelled,
		DelayMinutes: d.DelayMinutes,
		NewAircraft:  d.NewAircraft,
		NewDeparture: d.NewDeparture,
		NewArrival:   d.NewArrival,
		NewNature:    d.NewNature,
	}
	penalty := 0.0
	for _, v := range d.Violations {
		penalty += p.PriorityWeight(v.Priority)
	}
	return baseCost(f, cand, d.SeverelyLate, d.Action, w, p) + penalty
}

// capacityCouplings turns positive slot limits into count constraints over
// the flights scheduled to depart inside each window. Membership follows
// the scheduled departure minute, matching how slot coordinators allocate.
// Slot limits that matched a flight only on the arrival side cannot be
// counted this way; their IDs come back as unmodeled.
func capacityCouplings(flights []model.Flight, ch *check.Checker, p Params) ([]Coupling, []string) {
	groups := map[string]*Coupling{}
	unmodeled := map[string]bool{}
	var order []string
	for i, f := range flights {
		depMin := catalog.MinuteOfDay(f.ScheduledDeparture)
		for _, r := range ch.Cat.Query(f, model.Candidate{}, f.ScheduledDeparture) {
			if r.Cond.Kind != model.CondCapacity || r.Cond.SlotLimit <= 0 {
				continue
			}
			if r.Scope.Airport != "" && r.Scope.Airport != f.DepartureAirport {
				unmodeled[r.ID] = true
				continue
			}
			if !catalog.InWindow(r.Cond.WindowStartMin, r.Cond.WindowEndMin, depMin) {
				continue
			}
			g, ok := groups[r.ID]
			if !ok {
				g = &Coupling{
					Kind:           CoupleCapacity,
					RestrictionID:  r.ID,
					Priority:       r.Priority,
					Hard:           r.Priority == model.PriorityMust,
					PenaltyWeight:  p.PriorityWeight(r.Priority),
					Limit:          r.Cond.SlotLimit,
					WindowStartMin: r.Cond.WindowStartMin,
					WindowEndMin:   r.Cond.WindowEndMin,
				}
				groups[r.ID] = g
				order = append(order, r.ID)
			}
			g.Members = append(g.Members, i)
		}
	}
	sort.Strings(order)
	out := make([]Coupling, 0, len(order))
	for _, id := range order {
		out = append(out, *groups[id])
	}
	return out, sortedKeys(unmodeled)
}

// turnaroundCouplings links consecutive flights on the same aircraft with
// the applicable minimum ground time at the connecting airport.
func turnaroundCouplings(flights []model.Flight, ch *check.Checker, p Params) []Coupling {
	byAircraft := map[string][]int{}
	for i, f := range flights {
		if f.AircraftID != "" {
			byAircraft[f.AircraftID] = append(byAircraft[f.AircraftID], i)
		}
	}
	tails := make([]string, 0, len(byAircraft))
	for t := range byAircraft {
		tails = append(tails, t)
	}
	sort.Strings(tails)

	var out []Coupling
	for _, tail := range tails {
		idxs := byAircraft[tail]
		sort.Slice(idxs, func(a, b int) bool {
			fa, fb := flights[idxs[a]], flights[idxs[b]]
			if !fa.ScheduledDeparture.Equal(fb.ScheduledDeparture) {
				return fa.ScheduledDeparture.Before(fb.ScheduledDeparture)
			}
			return fa.ID < fb.ID
		})
		for k := 0; k+1 < len(idxs); k++ {
			prev, next := idxs[k], idxs[k+1]
			nf := flights[next]
			for _, r := range ch.Cat.Query(nf, model.Candidate{}, nf.ScheduledDeparture) {
				if r.Cond.Kind != model.CondTurnaround {
					continue
				}
				out = append(out, Coupling{
					Kind:          CoupleTurnaround,
					RestrictionID: r.ID,
					Priority:      r.Priority,
					Hard:          r.Priority == model.PriorityMust,
					PenaltyWeight: p.PriorityWeight(r.Priority),
					PrevIdx:       prev,
					NextIdx:       next,
					MinTurnMin:    r.Cond.MinTurnaroundMin,
				})
			}
		}
	}
	return out
}
