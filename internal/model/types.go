package model

import "time"

// Priority is the enforcement level of a restriction. MUST restrictions are
// never violated by a valid plan; the rest are violable at a cost.
type Priority string

const (
	PriorityMust   Priority = "MUST"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ParsePriority maps a raw source value onto a Priority, defaulting to HIGH
// the way the upstream restriction feeds do for blank rows.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityMust, PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return PriorityHigh
}

// RestrictionCategory tags the operational family a restriction came from.
type RestrictionCategory string

const (
	CategoryAirportRestriction RestrictionCategory = "AIRPORT_RESTRICTION"
	CategoryAirportSpecialReq  RestrictionCategory = "AIRPORT_SPECIAL_REQ"
	CategoryFlightRestriction  RestrictionCategory = "FLIGHT_RESTRICTION"
	CategoryFlightSpecialReq   RestrictionCategory = "FLIGHT_SPECIAL_REQ"
	CategorySectorSpecialReq   RestrictionCategory = "SECTOR_SPECIAL_REQ"
)

// ConditionKind discriminates the closed set of restriction condition
// families. Loaders validate payloads into exactly one of these; nothing
// downstream interprets free-form condition text.
type ConditionKind string

const (
	CondCurfew       ConditionKind = "CURFEW"
	CondCapacity     ConditionKind = "CAPACITY"
	CondTurnaround   ConditionKind = "TURNAROUND"
	CondAircraftType ConditionKind = "AIRCRAFT_TYPE"
	CondSector       ConditionKind = "SECTOR"
)

// Condition is the typed payload of a restriction. Kind selects which
// fields are meaningful; the rest stay zero.
type Condition struct {
	Kind ConditionKind `json:"kind" yaml:"kind"`

	// CURFEW / CAPACITY: minutes-of-day window. Start > End means the
	// window crosses midnight.
	WindowStartMin int `json:"windowStartMin,omitempty" yaml:"windowStartMin,omitempty"`
	WindowEndMin   int `json:"windowEndMin,omitempty" yaml:"windowEndMin,omitempty"`

	// CAPACITY: maximum departures inside the window. Zero closes it.
	SlotLimit int `json:"slotLimit,omitempty" yaml:"slotLimit,omitempty"`

	// TURNAROUND: minimum ground time between an aircraft's arrival and
	// its next departure.
	MinTurnaroundMin int `json:"minTurnaroundMin,omitempty" yaml:"minTurnaroundMin,omitempty"`

	// AIRCRAFT_TYPE: eligibility lists. A non-empty RequiredTypes means
	// only those types may operate; BannedTypes always excludes.
	BannedTypes   []string `json:"bannedTypes,omitempty" yaml:"bannedTypes,omitempty"`
	RequiredTypes []string `json:"requiredTypes,omitempty" yaml:"requiredTypes,omitempty"`

	// SECTOR: route special handling. Equipped types list who may fly the
	// sector; MinPrepMin forces extra ground preparation before departure.
	OverWater     bool     `json:"overWater,omitempty" yaml:"overWater,omitempty"`
	HighAltitude  bool     `json:"highAltitude,omitempty" yaml:"highAltitude,omitempty"`
	EquippedTypes []string `json:"equippedTypes,omitempty" yaml:"equippedTypes,omitempty"`
	MinPrepMin    int      `json:"minPrepMin,omitempty" yaml:"minPrepMin,omitempty"`
}

// Scope narrows where a restriction applies. Unset fields match everything,
// and set fields are AND-combined.
type Scope struct {
	Airport     string `json:"airport,omitempty" yaml:"airport,omitempty"`
	AirportRole string `json:"airportRole,omitempty" yaml:"airportRole,omitempty"` // DEPARTURE, ARRIVAL or BOTH

	Carrier      string `json:"carrier,omitempty" yaml:"carrier,omitempty"`
	FlightNumber string `json:"flightNumber,omitempty" yaml:"flightNumber,omitempty"`

	DepartureAirport string `json:"departureAirport,omitempty" yaml:"departureAirport,omitempty"`
	ArrivalAirport   string `json:"arrivalAirport,omitempty" yaml:"arrivalAirport,omitempty"`

	StartDate  time.Time `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate    time.Time `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	DaysOfWeek string    `json:"daysOfWeek,omitempty" yaml:"daysOfWeek,omitempty"` // "1234567", 1=Monday
}

// Restriction is one catalogue entry: a scoped, prioritized condition.
type Restriction struct {
	ID       string              `json:"id"`
	Category RestrictionCategory `json:"category"`
	Priority Priority            `json:"priority"`
	Scope    Scope               `json:"scope"`
	Cond     Condition           `json:"condition"`
	Remarks  string              `json:"remarks,omitempty"`
	Source   string              `json:"source,omitempty"`
}

// Flight is an immutable snapshot of one scheduled flight. The optimizer
// never edits it; adjustments are separate decision outputs.
type Flight struct {
	ID                 string    `json:"id"`
	Number             string    `json:"number"`
	Carrier            string    `json:"carrier"`
	DepartureAirport   string    `json:"departureAirport"`
	ArrivalAirport     string    `json:"arrivalAirport"`
	ScheduledDeparture time.Time `json:"scheduledDeparture"`
	ScheduledArrival   time.Time `json:"scheduledArrival"`
	AircraftID         string    `json:"aircraftId,omitempty"`
	AircraftType       string    `json:"aircraftType,omitempty"`
	Passengers         int       `json:"passengers,omitempty"`
	Revenue            float64   `json:"revenue,omitempty"`
	International      bool      `json:"international,omitempty"`
}

// BlockMinutes is the scheduled airborne time.
func (f Flight) BlockMinutes() int {
	return int(f.ScheduledArrival.Sub(f.ScheduledDeparture).Minutes())
}

// Candidate describes one proposed adjustment for a flight. Zero value
// means "execute exactly as scheduled".
type Candidate struct {
	Cancel       bool   `json:"cancel,omitempty"`
	DelayMinutes int    `json:"delayMinutes,omitempty"`
	NewAircraft  string `json:"newAircraftId,omitempty"`
	NewType      string `json:"newAircraftType,omitempty"`
	NewDeparture string `json:"newDepartureAirport,omitempty"`
	NewArrival   string `json:"newArrivalAirport,omitempty"`
	NewNature    string `json:"newNature,omitempty"` // PASSENGER, CARGO, FERRY
	Added        bool   `json:"added,omitempty"`

	// InboundReady is when the operating aircraft becomes available at the
	// departure airport (previous leg arrival). Zero when unknown.
	InboundReady time.Time `json:"inboundReady,omitempty"`
}

// Departure is the candidate's resulting departure time.
func (c Candidate) Departure(f Flight) time.Time {
	return f.ScheduledDeparture.Add(time.Duration(c.DelayMinutes) * time.Minute)
}

// Arrival is the candidate's resulting arrival time, delay carried through.
func (c Candidate) Arrival(f Flight) time.Time {
	return f.ScheduledArrival.Add(time.Duration(c.DelayMinutes) * time.Minute)
}

// Violation links a flight and restriction the evaluator found in conflict
// for a given candidate adjustment.
type Violation struct {
	FlightID      string        `json:"flightId"`
	RestrictionID string        `json:"restrictionId"`
	Priority      Priority      `json:"priority"`
	Kind          ConditionKind `json:"kind"`
	Detail        string        `json:"detail,omitempty"`
}

// ActionType enumerates dispatchable adjustment actions.
type ActionType string

const (
	ActionChangeTime     ActionType = "CHANGE_TIME"
	ActionChangeAircraft ActionType = "CHANGE_AIRCRAFT"
	ActionCancelFlight   ActionType = "CANCEL_FLIGHT"
	ActionChangeAirport  ActionType = "CHANGE_AIRPORT"
	ActionChangeNature   ActionType = "CHANGE_NATURE"
	ActionAddFlight      ActionType = "ADD_FLIGHT"
)

// WeightStrategy is one named trade-off point: non-negative coefficients
// over the cost terms plus one per adjustment-action type.
type WeightStrategy struct {
	Name string `json:"name" yaml:"name"`

	Cancel  float64 `json:"cancel" yaml:"cancel"`
	Delay   float64 `json:"delay" yaml:"delay"`
	LatePax float64 `json:"latePax" yaml:"latePax"`
	Revenue float64 `json:"revenue" yaml:"revenue"`

	ActionTime     float64 `json:"actionTime" yaml:"actionTime"`
	ActionAircraft float64 `json:"actionAircraft" yaml:"actionAircraft"`
	ActionCancel   float64 `json:"actionCancel" yaml:"actionCancel"`
	ActionAirport  float64 `json:"actionAirport" yaml:"actionAirport"`
	ActionNature   float64 `json:"actionNature" yaml:"actionNature"`
	ActionAdd      float64 `json:"actionAdd" yaml:"actionAdd"`
}

// ActionWeight returns the coefficient for one action type.
func (w WeightStrategy) ActionWeight(a ActionType) float64 {
	switch a {
	case ActionChangeTime:
		return w.ActionTime
	case ActionChangeAircraft:
		return w.ActionAircraft
	case ActionCancelFlight:
		return w.ActionCancel
	case ActionChangeAirport:
		return w.ActionAirport
	case ActionChangeNature:
		return w.ActionNature
	case ActionAddFlight:
		return w.ActionAdd
	}
	return 0
}

// Outcome is the discriminated per-flight result of one strategy solve.
type Outcome string

const (
	OutcomeOnTime    Outcome = "EXECUTE_ON_TIME"
	OutcomeDelayed   Outcome = "EXECUTE_DELAYED"
	OutcomeCancelled Outcome = "CANCELLED"
)

// AdjustmentDecision is the solver's verdict for one flight under one
// strategy. Exactly one per flight per strategy run.
type AdjustmentDecision struct {
	FlightID     string     `json:"flightId"`
	Outcome      Outcome    `json:"outcome"`
	DelayMinutes int        `json:"delayMinutes,omitempty"`
	SeverelyLate bool       `json:"severelyLate,omitempty"`
	Action       ActionType `json:"action,omitempty"`
	NewAircraft  string     `json:"newAircraftId,omitempty"`
	NewDeparture string     `json:"newDepartureAirport,omitempty"`
	NewArrival   string     `json:"newArrivalAirport,omitempty"`
	NewNature    string     `json:"newNature,omitempty"`

	// Soft violations priced into the objective for this decision.
	Violations []Violation `json:"violations,omitempty"`
	Cost       float64     `json:"cost"`
}

// SolveStatus mirrors the solver adapter's terminal states.
type SolveStatus string

const (
	StatusOptimal     SolveStatus = "OPTIMAL"
	StatusFeasible    SolveStatus = "FEASIBLE" // time-limited incumbent
	StatusInfeasible  SolveStatus = "INFEASIBLE"
	StatusSolverError SolveStatus = "SOLVER_ERROR"
)

// Plan is the immutable result of one strategy run.
type Plan struct {
	ID        string               `json:"id"`
	Strategy  string               `json:"strategy"`
	Status    SolveStatus          `json:"status"`
	TimedOut  bool                 `json:"timedOut,omitempty"`
	Objective float64              `json:"objective"`
	// CouplingPenalty is the share of the objective charged by soft
	// cross-flight constraints; Objective equals the sum of per-decision
	// costs plus this term.
	CouplingPenalty float64              `json:"couplingPenalty,omitempty"`
	Decisions       []AdjustmentDecision `json:"decisions"`

	Executed        int `json:"executed"`
	Cancelled       int `json:"cancelled"`
	Delayed         int `json:"delayed"`
	TotalDelayMin   int `json:"totalDelayMin"`
	SeverelyLatePax int `json:"severelyLatePax"`

	// BindingMust lists MUST restrictions that removed at least one
	// candidate option while building this plan's model.
	BindingMust []string `json:"bindingMust,omitempty"`
}

// DispatchAction is the executable instruction derived from one decision.
type DispatchAction struct {
	FlightID     string     `json:"flightId"`
	Type         ActionType `json:"type"`
	NewDeparture time.Time  `json:"newDepartureTime,omitempty"`
	NewAircraft  string     `json:"newAircraftId,omitempty"`
	NewAirport   string     `json:"newAirportCode,omitempty"`
	NewNature    string     `json:"newNature,omitempty"`
	DelayMinutes int        `json:"delayMinutes,omitempty"`
	Note         string     `json:"note,omitempty"`
}

// StrategyDiagnostic reports one strategy's solver outcome, including
// failures that produced no plan.
type StrategyDiagnostic struct {
	Strategy      string      `json:"strategy"`
	Status        SolveStatus `json:"status"`
	Error         string      `json:"error,omitempty"`
	ElapsedMs     int64       `json:"elapsedMs"`
	SoftViolation int         `json:"softViolations"`
	// SuspectMust echoes MUST restrictions with zero feasible options for
	// some flight when the model came back infeasible.
	SuspectMust []string `json:"suspectMust,omitempty"`
	// Unmodeled lists slot-limit restrictions the model could not count
	// because they matched flights only on the arrival side.
	Unmodeled []string `json:"unmodeledRestrictions,omitempty"`
}

// RankedPlan pairs a plan with its ranking score (lower is better).
type RankedPlan struct {
	PlanID   string  `json:"planId"`
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
}

// RunResult is everything one pipeline invocation produces.
type RunResult struct {
	RunID       string                      `json:"runId"`
	Plans       []Plan                      `json:"plans"`
	Ranked      []RankedPlan                `json:"ranked"`
	Recommended string                      `json:"recommendedPlanId,omitempty"`
	Dispatch    map[string][]DispatchAction `json:"dispatch,omitempty"` // planID -> actions
	Diagnostics []StrategyDiagnostic        `json:"diagnostics"`
}
