// Package engine runs the recovery pipeline: one model build and solve per
// weight strategy on a bounded worker pool, then plan ranking and dispatch
// translation. Strategy runs share no mutable state; results join here.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"irops/internal/catalog"
	"irops/internal/check"
	"irops/internal/config"
	"irops/internal/metrics"
	"irops/internal/milp"
	"irops/internal/model"
)

// Request is one pipeline invocation.
type Request struct {
	Flights    []model.Flight
	Strategies []model.WeightStrategy

	Spares     []milp.Spare
	Alternates map[string][]model.Candidate
	Added      map[string]bool

	// Quotas; negative means unlimited.
	CancelQuota int
	SwapQuota   int
}

// Engine owns the solver backend and tuning parameters for a service
// lifetime. Safe for concurrent Run calls.
type Engine struct {
	backend   milp.Backend
	params    milp.Params
	ranking   config.Ranking
	workers   int
	timeLimit time.Duration
}

// New probes for a solver backend and configures the engine. A missing
// backend is fatal: without one no plan can ever be produced.
func New(cfg config.Config) (*Engine, error) {
	b, err := milp.Probe(cfg.Solver.Backend)
	if err != nil {
		return nil, err
	}
	log.Printf("engine: solver backend %q selected", b.Name())
	return &Engine{
		backend:   b,
		params:    milp.FromConfig(cfg),
		ranking:   cfg.Ranking,
		workers:   cfg.Workers,
		timeLimit: cfg.Solver.TimeLimit(),
	}, nil
}

// Backend reports the selected solver backend name.
func (e *Engine) Backend() string { return e.backend.Name() }

type strategyOutcome struct {
	plan *model.Plan
	diag model.StrategyDiagnostic
}

// Run executes every strategy against the shared read-only catalogue and
// returns plans, ranking and diagnostics. A failed strategy contributes a
// diagnostic, never a run failure. The result is a pure function of the
// inputs: ranking and ordering do not depend on completion order.
func (e *Engine) Run(ctx context.Context, runID string, cat *catalog.Catalogue, req Request) model.RunResult {
	ch := check.New(cat)
	n := len(req.Strategies)
	outcomes := make([]strategyOutcome, n)

	workers := e.workers
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = e.runStrategy(ctx, ch, req, req.Strategies[i])
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	res := model.RunResult{RunID: runID, Dispatch: map[string][]model.DispatchAction{}}
	for _, o := range outcomes {
		res.Diagnostics = append(res.Diagnostics, o.diag)
		if o.plan != nil {
			res.Plans = append(res.Plans, *o.plan)
			res.Dispatch[o.plan.ID] = Dispatch(req.Flights, *o.plan)
		}
	}
	res.Ranked = Rank(res.Plans, e.ranking)
	if len(res.Ranked) > 0 {
		res.Recommended = res.Ranked[0].PlanID
	}
	return res
}

func (e *Engine) runStrategy(ctx context.Context, ch *check.Checker, req Request, w model.WeightStrategy) strategyOutcome {
	start := time.Now()
	p := e.params
	p.CancelQuota = req.CancelQuota
	p.SwapQuota = req.SwapQuota
	m := milp.Build(milp.Input{
		Flights:    req.Flights,
		Checker:    ch,
		Strategy:   w,
		Params:     p,
		Spares:     req.Spares,
		Alternates: req.Alternates,
		Added:      req.Added,
	})

	solveCtx, cancel := context.WithTimeout(ctx, e.timeLimit)
	defer cancel()
	result, err := e.backend.Solve(solveCtx, m, e.timeLimit)
	elapsed := time.Since(start)
	metrics.SolveDuration.WithLabelValues(string(statusLabel(result, err))).Observe(elapsed.Seconds())

	diag := model.StrategyDiagnostic{
		Strategy:  w.Name,
		ElapsedMs: elapsed.Milliseconds(),
		Unmodeled: m.Unmodeled,
	}
	if err != nil {
		diag.Status = model.StatusSolverError
		diag.Error = err.Error()
		return strategyOutcome{diag: diag}
	}
	diag.Status = result.Status
	diag.SuspectMust = result.SuspectMust

	switch result.Status {
	case model.StatusInfeasible:
		diag.Error = fmt.Sprintf("%v: no feasible assignment", model.ErrInfeasible)
		return strategyOutcome{diag: diag}
	case model.StatusSolverError:
		diag.Error = "time limit reached before any incumbent"
		return strategyOutcome{diag: diag}
	}

	plan := buildPlan(m, result, w.Name)
	diag.SoftViolation = softCount(plan.Decisions)
	metrics.PlansProduced.WithLabelValues(w.Name).Inc()
	return strategyOutcome{plan: &plan, diag: diag}
}

func statusLabel(r milp.Result, err error) model.SolveStatus {
	if err != nil {
		return model.StatusSolverError
	}
	return r.Status
}

func softCount(ds []model.AdjustmentDecision) int {
	n := 0
	for _, d := range ds {
		n += len(d.Violations)
	}
	return n
}

// buildPlan freezes a solver result into an immutable Plan. Plan IDs are
// derived from the strategy name so identical runs yield identical plans.
func buildPlan(m *milp.Model, r milp.Result, strategy string) model.Plan {
	plan := model.Plan{
		ID:              "plan-" + sanitize(strategy),
		Strategy:        strategy,
		Status:          r.Status,
		TimedOut:        r.TimedOut,
		Objective:       r.Objective,
		CouplingPenalty: r.CouplingPenalty,
		Decisions:       m.Decisions(r.Choice),
		BindingMust:     m.BindingMust,
	}
	for _, d := range plan.Decisions {
		switch d.Outcome {
		case model.OutcomeCancelled:
			plan.Cancelled++
		case model.OutcomeDelayed:
			plan.Executed++
			plan.Delayed++
			plan.TotalDelayMin += d.DelayMinutes
		default:
			plan.Executed++
		}
	}
	byID := flightIndex(m.Flights)
	for _, d := range plan.Decisions {
		if d.SeverelyLate {
			plan.SeverelyLatePax += byID[d.FlightID].Passengers
		}
	}
	return plan
}

func flightIndex(fs []model.Flight) map[string]model.Flight {
	out := make(map[string]model.Flight, len(fs))
	for _, f := range fs {
		out[f.ID] = f
	}
	return out
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r == ' ' || r == '_':
			return '-'
		}
		return -1
	}, s)
}
