package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"irops/internal/catalog"
	"irops/internal/config"
	"irops/internal/milp"
	"irops/internal/model"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.Solver.TimeLimitSec = 5
	cfg.Solver.MaxDelayMinutes = 720
	cfg.Costs.DelayPerMinute = 0.1
	cfg.Costs.PerLatePax = 0
	return cfg
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func testCatalogue(t *testing.T, rs ...model.Restriction) *catalog.Catalogue {
	t.Helper()
	cat, problems := catalog.Load(rs)
	if len(problems) != 0 {
		t.Fatalf("fixture restrictions rejected: %v", problems)
	}
	return cat
}

func testFlight(id string, depH, depM, blockMin int) model.Flight {
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

func mediumCurfew() model.Restriction {
	return model.Restriction{
		ID: "CUR-M", Priority: model.PriorityMedium,
		Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 600, WindowEndMin: 720},
	}
}

// Two strategies over one soft curfew: the delay-tolerant one slides the
// flight out of the window, the delay-averse one keeps it on time and pays
// the penalty. Both produce plans and the ranking picks the undelayed one.
func TestRunMultiStrategy(t *testing.T) {
	e := testEngine(t)
	cat := testCatalogue(t, mediumCurfew())
	req := Request{
		Flights: []model.Flight{testFlight("F1", 11, 0, 180)},
		Strategies: []model.WeightStrategy{
			{Name: "balanced", Cancel: 1, Delay: 1, LatePax: 1},
			{Name: "hold-schedule", Cancel: 1, Delay: 1000, LatePax: 1},
		},
		CancelQuota: -1,
		SwapQuota:   -1,
	}
	res := e.Run(context.Background(), "run-1", cat, req)

	if len(res.Plans) != 2 || len(res.Diagnostics) != 2 {
		t.Fatalf("want 2 plans and 2 diagnostics: %+v", res)
	}
	// Plans join in strategy order regardless of worker completion order.
	if res.Plans[0].ID != "plan-balanced" || res.Plans[1].ID != "plan-hold-schedule" {
		t.Fatalf("plan order should follow strategies: %s, %s", res.Plans[0].ID, res.Plans[1].ID)
	}
	balanced, hold := res.Plans[0], res.Plans[1]
	if balanced.Delayed != 1 || balanced.TotalDelayMin != 60 || balanced.Objective != 6 {
		t.Fatalf("balanced should slide the flight 60 min: %+v", balanced)
	}
	if hold.Delayed != 0 || hold.Objective != 10 || len(hold.Decisions[0].Violations) != 1 {
		t.Fatalf("hold-schedule should pay the penalty: %+v", hold)
	}
	if res.Diagnostics[0].SoftViolation != 0 || res.Diagnostics[1].SoftViolation != 1 {
		t.Fatalf("unexpected soft violation counts: %+v", res.Diagnostics)
	}
	// Default ranking weighs delay heavily; the penalized plan wins.
	if res.Recommended != "plan-hold-schedule" {
		t.Fatalf("recommended %q, want plan-hold-schedule (ranked %+v)", res.Recommended, res.Ranked)
	}
	// Dispatch carries a retime for the delayed plan, nothing for the other.
	if as := res.Dispatch["plan-balanced"]; len(as) != 1 || as[0].Type != model.ActionChangeTime || as[0].DelayMinutes != 60 {
		t.Fatalf("balanced dispatch should retime the flight: %+v", as)
	}
	if as := res.Dispatch["plan-hold-schedule"]; len(as) != 0 {
		t.Fatalf("on-time plan needs no dispatch: %+v", as)
	}
}

func TestRunInfeasibleStrategyDiagnostics(t *testing.T) {
	e := testEngine(t)
	cat := testCatalogue(t, model.Restriction{
		ID: "CUR-ALL", Priority: model.PriorityMust,
		Scope: model.Scope{Airport: "AAA", AirportRole: "DEPARTURE"},
		Cond:  model.Condition{Kind: model.CondCurfew, WindowStartMin: 0, WindowEndMin: 0},
	})
	req := Request{
		Flights:     []model.Flight{testFlight("F1", 11, 0, 120)},
		Strategies:  []model.WeightStrategy{{Name: "a", Cancel: 1}, {Name: "b", Cancel: 1, Delay: 1}},
		CancelQuota: 0, // cancellation is the only option left and it is forbidden
		SwapQuota:   -1,
	}
	res := e.Run(context.Background(), "run-2", cat, req)
	if len(res.Plans) != 0 || res.Recommended != "" || len(res.Ranked) != 0 {
		t.Fatalf("fully infeasible run must produce no plans: %+v", res)
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("every strategy reports a diagnostic: %+v", res.Diagnostics)
	}
	for _, d := range res.Diagnostics {
		if d.Status != model.StatusInfeasible || !strings.Contains(d.Error, "no feasible") {
			t.Fatalf("unexpected diagnostic: %+v", d)
		}
	}
}

// flakyBackend delegates to the builtin solver except for one strategy
// name, which always errors.
type flakyBackend struct{ inner milp.Backend }

func (f flakyBackend) Name() string    { return "flaky" }
func (f flakyBackend) Available() bool { return true }
func (f flakyBackend) Solve(ctx context.Context, m *milp.Model, limit time.Duration) (milp.Result, error) {
	if m.Strategy.Name == "doomed" {
		return milp.Result{}, errors.New("pivot overflow")
	}
	return f.inner.Solve(ctx, m, limit)
}

// One failing strategy out of three yields two ranked plans plus a solver
// diagnostic, never a run failure.
func TestRunPartialFailure(t *testing.T) {
	inner, err := milp.Probe("bnb")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	milp.Register(flakyBackend{inner: inner})
	cfg := testConfig()
	cfg.Solver.Backend = "flaky"
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	cat := testCatalogue(t, mediumCurfew())
	req := Request{
		Flights: []model.Flight{testFlight("F1", 11, 0, 180)},
		Strategies: []model.WeightStrategy{
			{Name: "balanced", Cancel: 1, Delay: 1, LatePax: 1},
			{Name: "doomed", Cancel: 1, Delay: 2},
			{Name: "hold-schedule", Cancel: 1, Delay: 1000, LatePax: 1},
		},
		CancelQuota: -1,
		SwapQuota:   -1,
	}
	res := e.Run(context.Background(), "run-4", cat, req)

	if len(res.Plans) != 2 || len(res.Diagnostics) != 3 {
		t.Fatalf("want 2 plans and 3 diagnostics: %+v", res)
	}
	if res.Plans[0].ID != "plan-balanced" || res.Plans[1].ID != "plan-hold-schedule" {
		t.Fatalf("surviving plans keep strategy order: %+v", res.Plans)
	}
	d := res.Diagnostics[1]
	if d.Strategy != "doomed" || d.Status != model.StatusSolverError || !strings.Contains(d.Error, "pivot overflow") {
		t.Fatalf("failed strategy should surface its error: %+v", d)
	}
	if len(res.Ranked) != 2 || res.Recommended == "" {
		t.Fatalf("ranking covers the surviving plans: %+v", res.Ranked)
	}
}

func TestRunDeterminism(t *testing.T) {
	e := testEngine(t)
	cat := testCatalogue(t, mediumCurfew())
	req := Request{
		Flights: []model.Flight{testFlight("F2", 11, 0, 120), testFlight("F1", 10, 30, 120)},
		Strategies: []model.WeightStrategy{
			{Name: "balanced", Cancel: 1, Delay: 1},
			{Name: "hold-schedule", Cancel: 1, Delay: 1000},
		},
		CancelQuota: -1,
		SwapQuota:   -1,
	}
	a := e.Run(context.Background(), "run-3", cat, req)
	b := e.Run(context.Background(), "run-3", cat, req)
	if !reflect.DeepEqual(a.Plans, b.Plans) || !reflect.DeepEqual(a.Ranked, b.Ranked) || a.Recommended != b.Recommended {
		t.Fatalf("identical runs must produce identical results:\n%+v\n%+v", a, b)
	}
}

func TestDispatchTranslation(t *testing.T) {
	flights := []model.Flight{testFlight("F1", 10, 0, 120), testFlight("F2", 12, 0, 120), testFlight("F3", 14, 0, 120)}
	plan := model.Plan{
		ID: "plan-x",
		Decisions: []model.AdjustmentDecision{
			{FlightID: "F1", Outcome: model.OutcomeCancelled, Action: model.ActionCancelFlight},
			{FlightID: "F2", Outcome: model.OutcomeDelayed, DelayMinutes: 45, Action: model.ActionChangeTime},
			{FlightID: "F3", Outcome: model.OutcomeOnTime, Action: model.ActionChangeAircraft, NewAircraft: "T9"},
		},
	}
	as := Dispatch(flights, plan)
	if len(as) != 3 {
		t.Fatalf("want 3 actions: %+v", as)
	}
	if as[0].Type != model.ActionCancelFlight || !strings.Contains(as[0].Note, "cancel F1") {
		t.Fatalf("unexpected cancel action: %+v", as[0])
	}
	if as[1].Type != model.ActionChangeTime || as[1].DelayMinutes != 45 ||
		!as[1].NewDeparture.Equal(flights[1].ScheduledDeparture.Add(45*time.Minute)) {
		t.Fatalf("unexpected retime action: %+v", as[1])
	}
	if as[2].Type != model.ActionChangeAircraft || as[2].NewAircraft != "T9" {
		t.Fatalf("unexpected reassignment action: %+v", as[2])
	}
}

func TestRankTieBreaks(t *testing.T) {
	w := config.Ranking{Cost: 1}
	plans := []model.Plan{
		{ID: "plan-b", Strategy: "b", Objective: 5, Cancelled: 1, Executed: 1},
		{ID: "plan-a", Strategy: "a", Objective: 5, Executed: 2, Delayed: 1, TotalDelayMin: 30},
	}
	ranked := Rank(plans, w)
	if ranked[0].PlanID != "plan-a" {
		t.Fatalf("equal scores break on fewer cancellations: %+v", ranked)
	}
	if ranked[0].Score != 5 || ranked[1].Score != 5 {
		t.Fatalf("unexpected scores: %+v", ranked)
	}
}

func TestScore(t *testing.T) {
	p := model.Plan{
		Executed: 3, Cancelled: 1, Delayed: 2,
		TotalDelayMin: 80, SeverelyLatePax: 10, Objective: 100,
		BindingMust: []string{"R1"},
	}
	w := config.Ranking{
		Cancellations: 1000, CancelRatio: 400, TotalDelay: 1,
		MeanDelay: 5, LatePax: 10, Cost: 0.01, BindingMust: 50,
	}
	// 1000 + 400*(1/4) + 80 + 5*40 + 10*10 + 0.01*100 + 50
	if got := Score(p, w); got != 1531 {
		t.Fatalf("score = %v, want 1531", got)
	}
}
