package milp

import (
	"math"
	"testing"
	"time"

	"irops/internal/catalog"
	"irops/internal/check"
	"irops/internal/model"
)

func testParams() Params {
	return Params{
		MaxDelayMinutes:    720,
		SevereDelayMinutes: 120,
		DelayPerMinute:     0.1,
		CancelQuota:        -1,
		SwapQuota:          -1,
	}
}

func costStrategy() model.WeightStrategy {
	return model.WeightStrategy{Name: "cost", Cancel: 1, Delay: 1, LatePax: 1}
}

func mkChecker(t *testing.T, rs ...model.Restriction) *check.Checker {
	t.Helper()
	cat, problems := catalog.Load(rs)
	if len(problems) != 0 {
		t.Fatalf("fixture restrictions rejected: %v", problems)
	}
	return check.New(cat)
}

func mkFlight(id string, depH, depM, blockMin int) model.Flight {
	dep := time.Date(2026, 3, 2, depH, depM, 0, 0, time.UTC)
	return model.Flight{
		ID:                 id,
		Number:             id,
		Carrier:            "XX",
		DepartureAirport:   "AAA",
		ArrivalAirport:     "BBB",
		ScheduledDeparture: dep,
		ScheduledArrival:   dep.Add(time.Duration(blockMin) * time.Minute),
		AircraftType:       "B738",
		Passengers:         150,
		Revenue:            50000,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBuildSortsFlightsAndOptions(t *testing.T) {
	ch := mkChecker(t)
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F2", 12, 0, 120), mkFlight("F1", 10, 0, 120)},
		Checker:  ch,
		Strategy: costStrategy(),
		Params:   testParams(),
	})
	if m.Flights[0].ID != "F1" || m.Flights[1].ID != "F2" {
		t.Fatalf("flights not sorted by id: %s, %s", m.Flights[0].ID, m.Flights[1].ID)
	}
	for i := range m.Flights {
		opts := m.Options[i]
		if len(opts) != 2 {
			t.Fatalf("flight %d: got %d options, want on-time and cancel", i, len(opts))
		}
		if opts[0].Cand.Cancel || !near(opts[0].Cost, 0) {
			t.Fatalf("cheapest option should be on-time at cost 0: %+v", opts[0])
		}
		if !opts[1].Cand.Cancel || !near(opts[1].Cost, 50000) {
			t.Fatalf("cancel should cost the revenue: %+v", opts[1])
		}
		if m.Vars[i].DelayUB != 720 {
			t.Fatalf("delay bound = %v, want 720", m.Vars[i].DelayUB)
		}
	}
	if len(m.Blocked) != 0 || len(m.BindingMust) != 0 {
		t.Fatalf("clean schedule should have no blocks or bindings: %+v %+v", m.Blocked, m.BindingMust)
	}
}

func TestBuildCurfewBreakpoints(t *testing.T) {
	ch := mkChecker(t, model.Restriction{
		ID: "CUR-M", Priority: model.PriorityMedium,
		Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 600, WindowEndMin: 720},
	})
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 11, 0, 180)}, // departs inside 10:00-12:00
		Checker:  ch,
		Strategy: costStrategy(),
		Params:   testParams(),
	})
	opts := m.Options[0]
	if len(opts) != 3 {
		t.Fatalf("want on-time, window-exit and cancel options, got %d: %+v", len(opts), opts)
	}
	// 60 min exits the window at 0.1/min: cheaper than one MEDIUM penalty.
	if opts[0].Cand.DelayMinutes != 60 || !near(opts[0].Cost, 6) {
		t.Fatalf("cheapest should be the 60 min exit at cost 6: %+v", opts[0])
	}
	if opts[1].Cand.DelayMinutes != 0 || !near(opts[1].Cost, 10) || len(opts[1].Violations) != 1 {
		t.Fatalf("on-time should carry one MEDIUM penalty at cost 10: %+v", opts[1])
	}
	if len(m.BindingMust) != 0 {
		t.Fatalf("soft curfew must not bind: %+v", m.BindingMust)
	}
}

func TestBuildMustCurfewPrunesToCancel(t *testing.T) {
	ch := mkChecker(t, model.Restriction{
		ID: "CUR-MUST", Priority: model.PriorityMust,
		Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 0, WindowEndMin: 0}, // whole day
	})
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 11, 0, 120)},
		Checker:  ch,
		Strategy: costStrategy(),
		Params:   testParams(),
	})
	opts := m.Options[0]
	if len(opts) != 1 || !opts[0].Cand.Cancel {
		t.Fatalf("whole-day MUST curfew leaves only cancellation: %+v", opts)
	}
	if len(m.BindingMust) != 1 || m.BindingMust[0] != "CUR-MUST" {
		t.Fatalf("pruning restriction should be reported binding: %+v", m.BindingMust)
	}
	if len(m.Blocked) != 0 {
		t.Fatalf("cancellation keeps the flight unblocked: %+v", m.Blocked)
	}
}

func TestBuildSpareAircraftOption(t *testing.T) {
	ch := mkChecker(t, model.Restriction{
		ID: "BAN-738", Priority: model.PriorityMust,
		Scope: model.Scope{Airport: "BBB", AirportRole: "ARRIVAL"},
		Cond:  model.Condition{Kind: model.CondAircraftType, BannedTypes: []string{"B738"}},
	})
	w := costStrategy()
	w.ActionAircraft = 2
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 11, 0, 120)},
		Checker:  ch,
		Strategy: w,
		Params:   testParams(),
		Spares:   []Spare{{AircraftID: "T9", AircraftType: "B772"}},
	})
	opts := m.Options[0]
	if len(opts) != 2 {
		t.Fatalf("want swap and cancel, got %d: %+v", len(opts), opts)
	}
	if opts[0].Action != model.ActionChangeAircraft || opts[0].Cand.NewAircraft != "T9" || !near(opts[0].Cost, 2) {
		t.Fatalf("spare swap should be the cheap option: %+v", opts[0])
	}
	if len(m.BindingMust) != 1 || m.BindingMust[0] != "BAN-738" {
		t.Fatalf("type ban should bind: %+v", m.BindingMust)
	}
}

func TestBuildRotationBreakpoint(t *testing.T) {
	f1 := mkFlight("F1", 10, 0, 60) // arrives HUB 11:00
	f1.ArrivalAirport = "HUB"
	f1.AircraftID = "T1"
	f2 := mkFlight("F2", 11, 30, 90) // departs HUB 11:30
	f2.DepartureAirport = "HUB"
	f2.AircraftID = "T1"
	ch := mkChecker(t, model.Restriction{
		ID: "TURN-HUB", Priority: model.PriorityMust,
		Scope: model.Scope{Airport: "HUB", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondTurnaround, MinTurnaroundMin: 50},
	})
	m := Build(Input{
		Flights:  []model.Flight{f1, f2},
		Checker:  ch,
		Strategy: costStrategy(),
		Params:   testParams(),
	})
	if len(m.Couplings) != 1 {
		t.Fatalf("want one rotation coupling: %+v", m.Couplings)
	}
	c := m.Couplings[0]
	if c.Kind != CoupleTurnaround || !c.Hard || c.PrevIdx != 0 || c.NextIdx != 1 || c.MinTurnMin != 50 {
		t.Fatalf("unexpected coupling: %+v", c)
	}
	// Successor needs 20 min to restore the minimum ground time when the
	// predecessor runs to schedule; that delay must be in its domain.
	found := false
	for _, o := range m.Options[1] {
		if o.Cand.DelayMinutes == 20 && !o.Cand.Cancel {
			found = true
		}
	}
	if !found {
		t.Fatalf("successor options missing the 20 min rotation point: %+v", m.Options[1])
	}
}

func TestBuildCapacityCoupling(t *testing.T) {
	ch := mkChecker(t, model.Restriction{
		ID: "CAP-AAA", Priority: model.PriorityMust,
		Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondCapacity, WindowStartMin: 600, WindowEndMin: 720, SlotLimit: 1},
	})
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 10, 30, 120), mkFlight("F2", 11, 0, 120), mkFlight("F3", 14, 0, 120)},
		Checker:  ch,
		Strategy: costStrategy(),
		Params:   testParams(),
	})
	if len(m.Couplings) != 1 {
		t.Fatalf("want one capacity coupling: %+v", m.Couplings)
	}
	c := m.Couplings[0]
	if c.Kind != CoupleCapacity || c.Limit != 1 || !c.Hard {
		t.Fatalf("unexpected coupling: %+v", c)
	}
	if len(c.Members) != 2 || c.Members[0] != 0 || c.Members[1] != 1 {
		t.Fatalf("membership should follow scheduled departures inside the window: %+v", c.Members)
	}
	if c.WindowStartMin != 600 || c.WindowEndMin != 720 {
		t.Fatalf("coupling should carry the window: %+v", c)
	}
}

// Slot counting follows scheduled departures; a limit scoped to the
// arrival airport cannot become a coupling and must be reported instead.
func TestBuildCapacityArrivalScopeReported(t *testing.T) {
	ch := mkChecker(t, model.Restriction{
		ID: "CAP-BBB", Priority: model.PriorityMust,
		Scope: model.Scope{Airport: "BBB", AirportRole: "ARRIVAL"},
		Cond:  model.Condition{Kind: model.CondCapacity, WindowStartMin: 600, WindowEndMin: 780, SlotLimit: 1},
	})
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 10, 0, 120)}, // arrives BBB at 12:00
		Checker:  ch,
		Strategy: costStrategy(),
		Params:   testParams(),
	})
	if len(m.Couplings) != 0 {
		t.Fatalf("arrival-scoped limit must not couple departures: %+v", m.Couplings)
	}
	if len(m.Unmodeled) != 1 || m.Unmodeled[0] != "CAP-BBB" {
		t.Fatalf("arrival-scoped limit should be reported unmodeled: %+v", m.Unmodeled)
	}
}

func TestBuildQuotaCouplings(t *testing.T) {
	p := testParams()
	p.CancelQuota = 1
	p.SwapQuota = 0
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 10, 0, 120), mkFlight("F2", 12, 0, 120)},
		Checker:  mkChecker(t),
		Strategy: costStrategy(),
		Params:   p,
	})
	if len(m.Couplings) != 2 {
		t.Fatalf("want cancel and swap quotas: %+v", m.Couplings)
	}
	if m.Couplings[0].Kind != CoupleQuotaCancel || m.Couplings[0].Limit != 1 || !m.Couplings[0].Hard {
		t.Fatalf("unexpected cancel quota: %+v", m.Couplings[0])
	}
	if m.Couplings[1].Kind != CoupleQuotaSwap || m.Couplings[1].Limit != 0 {
		t.Fatalf("unexpected swap quota: %+v", m.Couplings[1])
	}
	// Quotas carry synthetic IDs so infeasibility diagnostics can name them.
	if m.Couplings[0].RestrictionID != "CANCEL_QUOTA" || m.Couplings[1].RestrictionID != "SWAP_QUOTA" {
		t.Fatalf("quota couplings should be identifiable: %+v", m.Couplings)
	}
	if len(m.Couplings[0].Members) != 2 {
		t.Fatalf("quota should cover every flight: %+v", m.Couplings[0].Members)
	}
}

func TestDecisionCostRoundTrip(t *testing.T) {
	ch := mkChecker(t, model.Restriction{
		ID: "CUR-M", Priority: model.PriorityMedium,
		Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 600, WindowEndMin: 720},
	})
	p := testParams()
	w := costStrategy()
	m := Build(Input{
		Flights:  []model.Flight{mkFlight("F1", 11, 0, 180)},
		Checker:  ch,
		Strategy: w,
		Params:   p,
	})
	for oi, o := range m.Options[0] {
		d := m.Decisions([]int{oi})[0]
		if got := DecisionCost(m.Flights[0], d, w, p); !near(got, o.Cost) {
			t.Fatalf("option %d: recomputed cost %v, model cost %v", oi, got, o.Cost)
		}
	}
}

func TestWindowExit(t *testing.T) {
	cases := []struct {
		start, end, m int
		exit          int
		ok            bool
	}{
		{600, 720, 660, 60, true},
		{600, 720, 599, 0, false}, // outside
		{1320, 360, 1350, 450, true},
		{1320, 360, 30, 330, true},
		{0, 0, 500, 0, false}, // whole day never exits
	}
	for _, tc := range cases {
		exit, ok := windowExit(tc.start, tc.end, tc.m)
		if exit != tc.exit || ok != tc.ok {
			t.Fatalf("windowExit(%d,%d,%d) = (%d,%v), want (%d,%v)",
				tc.start, tc.end, tc.m, exit, ok, tc.exit, tc.ok)
		}
	}
}
