package engine

import (
	"sort"

	"irops/internal/config"
	"irops/internal/model"
)

// Rank scores plans with a fixed weighted sum over plan summary metrics,
// all lower-better: cancellations, cancel ratio, total and mean delay,
// severely-late passengers, weighted cost and binding-MUST count. Ties
// break on fewer cancellations, then lower total delay, then strategy
// name. The weights are configurable; defaults live in config.Default.
func Rank(plans []model.Plan, w config.Ranking) []model.RankedPlan {
	out := make([]model.RankedPlan, 0, len(plans))
	for _, p := range plans {
		out = append(out, model.RankedPlan{
			PlanID:   p.ID,
			Strategy: p.Strategy,
			Score:    Score(p, w),
		})
	}
	byID := map[string]model.Plan{}
	for _, p := range plans {
		byID[p.ID] = p
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		pi, pj := byID[out[i].PlanID], byID[out[j].PlanID]
		if pi.Cancelled != pj.Cancelled {
			return pi.Cancelled < pj.Cancelled
		}
		if pi.TotalDelayMin != pj.TotalDelayMin {
			return pi.TotalDelayMin < pj.TotalDelayMin
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// Score computes one plan's ranking scalar.
func Score(p model.Plan, w config.Ranking) float64 {
	total := p.Executed + p.Cancelled
	ratio := 0.0
	meanDelay := 0.0
	if total > 0 {
		ratio = float64(p.Cancelled) / float64(total)
	}
	if p.Delayed > 0 {
		meanDelay = float64(p.TotalDelayMin) / float64(p.Delayed)
	}
	return w.Cancellations*float64(p.Cancelled) +
		w.CancelRatio*ratio +
		w.TotalDelay*float64(p.TotalDelayMin) +
		w.MeanDelay*meanDelay +
		w.LatePax*float64(p.SeverelyLatePax) +
		w.Cost*p.Objective +
		w.BindingMust*float64(len(p.BindingMust))
}
