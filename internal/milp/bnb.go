package milp

import (
	"context"
	"time"

	"irops/internal/catalog"
	"irops/internal/model"
)

// branchBound is the builtin exact backend: depth-first search over the
// per-flight option domains with a lower bound from suffix option minima.
// Small recovery instances (a bank of flights at one hub) solve to
// optimality well inside the time limit; larger ones return the incumbent.
type branchBound struct{}

func init() { Register(branchBound{}) }

func (branchBound) Name() string    { return "bnb" }
func (branchBound) Available() bool { return true }

const eps = 1e-9

func (branchBound) Solve(ctx context.Context, m *Model, limit time.Duration) (Result, error) {
	if len(m.Blocked) > 0 {
		return Result{Status: model.StatusInfeasible, SuspectMust: suspectFromBlocked(m.Blocked)}, nil
	}
	n := len(m.Flights)
	if n == 0 {
		return Result{Status: model.StatusOptimal, Choice: []int{}}, nil
	}
	if limit <= 0 {
		limit = 30 * time.Second
	}
	s := &searchState{
		m:        m,
		deadline: time.Now().Add(limit),
		ctx:      ctx,
		choice:   make([]int, n),
		bestObj:  -1,
	}
	s.prepare()
	s.dfs(0, 0, 0)

	if s.best == nil {
		if s.timedOut {
			return Result{Status: model.StatusSolverError, TimedOut: true}, nil
		}
		return Result{Status: model.StatusInfeasible, SuspectMust: s.hardCouplingIDs()}, nil
	}
	status := model.StatusOptimal
	if s.timedOut {
		status = model.StatusFeasible
	}
	return Result{
		Status:          status,
		Objective:       s.bestObj,
		Choice:          s.best,
		CouplingPenalty: s.bestPenalty,
		TimedOut:        s.timedOut,
	}, nil
}

func suspectFromBlocked(blocked []Blocked) []string {
	set := map[string]bool{}
	for _, b := range blocked {
		for _, id := range b.MustIDs {
			set[id] = true
		}
	}
	return sortedKeys(set)
}

type searchState struct {
	m        *Model
	ctx      context.Context
	deadline time.Time
	timedOut bool
	nodes    int

	choice  []int
	best    []int
	bestObj float64
	// bestPenalty is the coupling share of bestObj, reported separately so
	// plans can reconcile objective = sum(decision costs) + penalty.
	bestPenalty float64
	penalty     float64

	suffixMin []float64
	counts    []int  // running counts per coupling
	memberOf  [][]int // flight -> coupling indices counting it
	checkAt   [][]int // flight -> turnaround couplings completed at it
}

func (s *searchState) prepare() {
	m := s.m
	n := len(m.Flights)
	s.suffixMin = make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		s.suffixMin[i] = s.suffixMin[i+1] + m.Options[i][0].Cost // options sorted cheap-first
	}
	s.counts = make([]int, len(m.Couplings))
	s.memberOf = make([][]int, n)
	s.checkAt = make([][]int, n)
	for ci, c := range m.Couplings {
		switch c.Kind {
		case CoupleCapacity, CoupleQuotaCancel, CoupleQuotaSwap:
			for _, fi := range c.Members {
				s.memberOf[fi] = append(s.memberOf[fi], ci)
			}
		case CoupleTurnaround:
			at := c.PrevIdx
			if c.NextIdx > at {
				at = c.NextIdx
			}
			s.checkAt[at] = append(s.checkAt[at], ci)
		}
	}
}

func (s *searchState) expired() bool {
	if s.timedOut {
		return true
	}
	s.nodes++
	if s.nodes%512 == 0 {
		if s.ctx.Err() != nil || time.Now().After(s.deadline) {
			s.timedOut = true
		}
	}
	return s.timedOut
}

// counted reports whether an option increments coupling ci's counter.
func counted(c Coupling, o Option, f model.Flight) bool {
	switch c.Kind {
	case CoupleCapacity:
		if o.Cand.Cancel {
			return false
		}
		// A departure delayed past the window end releases its slot.
		return catalog.InWindow(c.WindowStartMin, c.WindowEndMin, catalog.MinuteOfDay(o.Cand.Departure(f)))
	case CoupleQuotaCancel:
		return o.Cand.Cancel
	case CoupleQuotaSwap:
		return o.Cand.NewAircraft != "" || o.Cand.NewType != ""
	}
	return false
}

// turnaroundOK checks one rotation pair under the current partial choice.
func (s *searchState) turnaroundOK(c Coupling) bool {
	m := s.m
	po := m.Options[c.PrevIdx][s.choice[c.PrevIdx]]
	no := m.Options[c.NextIdx][s.choice[c.NextIdx]]
	if po.Cand.Cancel || no.Cand.Cancel {
		return true
	}
	if no.Cand.NewAircraft != "" { // reassignment breaks the rotation link
		return true
	}
	prev := m.Flights[c.PrevIdx]
	next := m.Flights[c.NextIdx]
	ready := po.Cand.Arrival(prev).Add(time.Duration(c.MinTurnMin) * time.Minute)
	return !no.Cand.Departure(next).Before(ready)
}

func (s *searchState) dfs(i int, cost float64, penalty float64) {
	if s.expired() {
		return
	}
	if s.best != nil && cost+penalty+s.suffixMin[i] >= s.bestObj-eps {
		return
	}
	m := s.m
	if i == len(m.Flights) {
		obj := cost + penalty
		if s.best == nil || obj < s.bestObj-eps {
			s.best = append([]int(nil), s.choice...)
			s.bestObj = obj
			s.bestPenalty = penalty
		}
		return
	}
	for oi, o := range m.Options[i] {
		s.choice[i] = oi

		feasible := true
		extra := 0.0
		var bumped []int
		for _, ci := range s.memberOf[i] {
			c := m.Couplings[ci]
			if !counted(c, o, m.Flights[i]) {
				continue
			}
			s.counts[ci]++
			bumped = append(bumped, ci)
			if s.counts[ci] > c.Limit {
				if c.Hard {
					feasible = false
					break
				}
				extra += c.PenaltyWeight
			}
		}
		if feasible {
			for _, ci := range s.checkAt[i] {
				c := m.Couplings[ci]
				if s.turnaroundOK(c) {
					continue
				}
				if c.Hard {
					feasible = false
					break
				}
				extra += c.PenaltyWeight
			}
		}
		if feasible {
			s.dfs(i+1, cost+o.Cost, penalty+extra)
		}
		for _, ci := range bumped {
			s.counts[ci]--
		}
		if s.timedOut {
			return
		}
	}
}

func (s *searchState) hardCouplingIDs() []string {
	set := map[string]bool{}
	for _, c := range s.m.Couplings {
		if c.Hard && c.RestrictionID != "" {
			set[c.RestrictionID] = true
		}
	}
	return sortedKeys(set)
}
