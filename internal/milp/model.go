package milp

import (
	"irops/internal/model"
)

// FlightVars declares the decision variables for one flight: a binary
// cancel indicator, a continuous delay bounded by [0, DelayUB] and a binary
// severely-late indicator tied to delay by the big-M pair
//
//	delay - severe <= M * late
//	delay - severe >= -M * (1 - late)
//
// Backends operate on the enumerated Options, whose delay values sit at
// the objective's breakpoints; the variable bounds are kept for audit and
// for external backends.
type FlightVars struct {
	FlightID string
	DelayUB  float64
	BigM     float64
}

// Option is one feasible assignment of a flight's variables: either cancel,
// or execute at a specific delay (optionally on a different aircraft,
// airport or nature). MUST-violating assignments never become Options.
type Option struct {
	Cand         model.Candidate
	Action       model.ActionType // zero value = execute as scheduled
	SeverelyLate bool
	Violations   []model.Violation // soft only
	Penalty      float64           // priority-weighted violation cost
	Cost         float64           // full objective contribution incl. Penalty
}

// CouplingKind discriminates cross-flight constraints.
type CouplingKind string

const (
	CoupleCapacity    CouplingKind = "CAPACITY"
	CoupleTurnaround  CouplingKind = "TURNAROUND"
	CoupleQuotaCancel CouplingKind = "QUOTA_CANCEL"
	CoupleQuotaSwap   CouplingKind = "QUOTA_SWAP"
)

// Coupling links several flights under one linear constraint. Hard couplings
// (MUST) prune the search space; soft ones price overage into the objective
// at PenaltyWeight per violated unit.
type Coupling struct {
	Kind          CouplingKind
	RestrictionID string
	Priority      model.Priority
	Hard          bool
	PenaltyWeight float64

	// CAPACITY / quotas: members and the executed-count (or action-count)
	// ceiling. Capacity couplings carry the window so a flight delayed past
	// the window end stops consuming a slot.
	Members        []int // indices into Model.Flights
	Limit          int
	WindowStartMin int
	WindowEndMin   int

	// TURNAROUND: consecutive rotation pair and minimum ground time.
	PrevIdx    int
	NextIdx    int
	MinTurnMin int
}

// Blocked records a flight left with zero feasible options and the MUST
// restrictions that eliminated them, for infeasibility diagnosis.
type Blocked struct {
	FlightID string
	MustIDs  []string
}

// Model is one strategy's mixed-integer program: flights in stable order,
// per-flight variable declarations and enumerated feasible options, plus
// cross-flight couplings. Identical inputs produce an identical Model.
type Model struct {
	Flights  []model.Flight
	Strategy model.WeightStrategy
	Params   Params

	Vars      []FlightVars
	Options   [][]Option // per flight, cheap-first stable order
	Couplings []Coupling

	Blocked     []Blocked
	BindingMust []string // MUST restrictions that pruned at least one option
	// Unmodeled lists slot-limit restrictions that matched flights only on
	// the arrival side. Slot counting follows departures, so they are
	// reported instead of silently dropped.
	Unmodeled []string
}

// Result is a backend's terminal answer.
type Result struct {
	Status          model.SolveStatus
	Objective       float64
	Choice          []int // option index per flight; valid when a plan exists
	CouplingPenalty float64
	TimedOut        bool
	SuspectMust     []string
}

// Decisions converts a solved choice vector into per-flight decisions.
func (m *Model) Decisions(choice []int) []model.AdjustmentDecision {
	out := make([]model.AdjustmentDecision, 0, len(m.Flights))
	for i, f := range m.Flights {
		o := m.Options[i][choice[i]]
		d := model.AdjustmentDecision{
			FlightID:     f.ID,
			Action:       o.Action,
			Violations:   o.Violations,
			Cost:         o.Cost,
			NewAircraft:  o.Cand.NewAircraft,
			NewDeparture: o.Cand.NewDeparture,
			NewArrival:   o.Cand.NewArrival,
			NewNature:    o.Cand.NewNature,
		}
		switch {
		case o.Cand.Cancel:
			d.Outcome = model.OutcomeCancelled
		case o.Cand.DelayMinutes > 0:
			d.Outcome = model.OutcomeDelayed
			d.DelayMinutes = o.Cand.DelayMinutes
			d.SeverelyLate = o.SeverelyLate
		default:
			d.Outcome = model.OutcomeOnTime
		}
		out = append(out, d)
	}
	return out
}
