package api

import (
	"fmt"
)

func validateRecoverRequest(req *RecoverRequest) error {
	if len(req.Flights) == 0 {
		return fmt.Errorf("flights must not be empty")
	}
	if len(req.Strategies) == 0 {
		return fmt.Errorf("strategies must not be empty")
	}
	seen := map[string]bool{}
	for i, f := range req.Flights {
		if f.ID == "" {
			return fmt.Errorf("flight[%d]: id required", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate flight id: %s", f.ID)
		}
		seen[f.ID] = true
		if !f.ScheduledArrival.After(f.ScheduledDeparture) {
			return fmt.Errorf("flight %s: arrival must be after departure", f.ID)
		}
		if f.Passengers < 0 {
			return fmt.Errorf("flight %s: passengers must be >= 0", f.ID)
		}
	}
	names := map[string]bool{}
	for i, st := range req.Strategies {
		if st.Name == "" {
			return fmt.Errorf("strategy[%d]: name required", i)
		}
		if names[st.Name] {
			return fmt.Errorf("duplicate strategy name: %s", st.Name)
		}
		names[st.Name] = true
	}
	for fid := range req.Alternates {
		if !seen[fid] {
			return fmt.Errorf("alternates reference unknown flight: %s", fid)
		}
	}
	for fid := range req.Added {
		if !seen[fid] {
			return fmt.Errorf("added references unknown flight: %s", fid)
		}
	}
	if req.CancelQuota != nil && *req.CancelQuota < -1 {
		return fmt.Errorf("cancelQuota must be >= -1")
	}
	if req.SwapQuota != nil && *req.SwapQuota < -1 {
		return fmt.Errorf("swapQuota must be >= -1")
	}
	return nil
}
