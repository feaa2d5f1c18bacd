package milp

import (
	"irops/internal/config"
	"irops/internal/model"
)

// Params carries model construction constants: variable bounds, the big-M
// constant, base cost parameters and the priority-to-penalty mapping.
type Params struct {
	MaxDelayMinutes    int
	SevereDelayMinutes int
	DelayStepMinutes   int
	BigM               float64

	DelayPerMinute float64
	PerLatePax     float64

	PenaltyHigh   float64
	PenaltyMedium float64
	PenaltyLow    float64

	DutyPrepMinutes int
	DutyPostMinutes int
	DutyMaxMinutes  int

	// Quotas cap plan-wide action counts. Negative means unlimited.
	CancelQuota int
	SwapQuota   int
}

// FromConfig builds Params from service configuration.
func FromConfig(cfg config.Config) Params {
	p := Params{
		MaxDelayMinutes:    cfg.Solver.MaxDelayMinutes,
		SevereDelayMinutes: cfg.Solver.SevereDelayMinutes,
		DelayStepMinutes:   cfg.Solver.DelayStepMinutes,
		BigM:               cfg.Solver.BigM,
		DelayPerMinute:     cfg.Costs.DelayPerMinute,
		PerLatePax:         cfg.Costs.PerLatePax,
		PenaltyHigh:        cfg.Costs.PenaltyHigh,
		PenaltyMedium:      cfg.Costs.PenaltyMedium,
		PenaltyLow:         cfg.Costs.PenaltyLow,
		DutyPrepMinutes:    cfg.Duty.PrepMinutes,
		DutyPostMinutes:    cfg.Duty.PostMinutes,
		DutyMaxMinutes:     cfg.Duty.MaxMinutes,
		CancelQuota:        -1,
		SwapQuota:          -1,
	}
	return p.withDefaults()
}

func (p Params) withDefaults() Params {
	if p.MaxDelayMinutes <= 0 {
		p.MaxDelayMinutes = 24 * 60
	}
	if p.SevereDelayMinutes <= 0 {
		p.SevereDelayMinutes = 120
	}
	if p.DelayStepMinutes <= 0 {
		p.DelayStepMinutes = 5
	}
	if p.BigM <= 0 {
		// The late indicator is linked to delay through two inequalities;
		// any M strictly above the delay upper bound is sufficient.
		p.BigM = float64(p.MaxDelayMinutes + 1)
	}
	if p.PenaltyHigh <= 0 {
		p.PenaltyHigh = 100
	}
	if p.PenaltyMedium <= 0 {
		p.PenaltyMedium = 10
	}
	if p.PenaltyLow <= 0 {
		p.PenaltyLow = 1
	}
	return p
}

// PriorityWeight maps a soft-violation priority to its penalty multiplier.
// MUST never reaches the objective; it is excluded from the domain.
func (p Params) PriorityWeight(pr model.Priority) float64 {
	switch pr {
	case model.PriorityHigh:
		return p.PenaltyHigh
	case model.PriorityMedium:
		return p.PenaltyMedium
	case model.PriorityLow:
		return p.PenaltyLow
	}
	return 0
}
