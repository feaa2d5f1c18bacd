package engine

import (
	"fmt"
	"time"

	"irops/internal/model"
)

// Dispatch translates a plan into executable instructions, one per flight
// whose decision is anything other than executing on time.
func Dispatch(flights []model.Flight, p model.Plan) []model.DispatchAction {
	byID := flightIndex(flights)
	var out []model.DispatchAction
	for _, d := range p.Decisions {
		if d.Outcome == model.OutcomeOnTime && d.Action == "" {
			continue
		}
		f := byID[d.FlightID]
		a := model.DispatchAction{FlightID: d.FlightID}
		switch {
		case d.Outcome == model.OutcomeCancelled:
			a.Type = model.ActionCancelFlight
			a.Note = fmt.Sprintf("cancel %s %s-%s", f.Number, f.DepartureAirport, f.ArrivalAirport)
		case d.Action == model.ActionChangeAircraft:
			a.Type = model.ActionChangeAircraft
			a.NewAircraft = d.NewAircraft
			a.DelayMinutes = d.DelayMinutes
			a.NewDeparture = delayed(f, d.DelayMinutes)
			a.Note = fmt.Sprintf("reassign %s to %s", f.Number, d.NewAircraft)
		case d.Action == model.ActionChangeAirport:
			a.Type = model.ActionChangeAirport
			a.NewAirport = firstNonEmpty(d.NewDeparture, d.NewArrival)
			a.DelayMinutes = d.DelayMinutes
			a.NewDeparture = delayed(f, d.DelayMinutes)
			a.Note = fmt.Sprintf("reroute %s via %s", f.Number, a.NewAirport)
		case d.Action == model.ActionChangeNature:
			a.Type = model.ActionChangeNature
			a.NewNature = d.NewNature
			a.DelayMinutes = d.DelayMinutes
			a.NewDeparture = delayed(f, d.DelayMinutes)
			a.Note = fmt.Sprintf("operate %s as %s", f.Number, d.NewNature)
		case d.Action == model.ActionAddFlight:
			a.Type = model.ActionAddFlight
			a.DelayMinutes = d.DelayMinutes
			a.NewDeparture = delayed(f, d.DelayMinutes)
			a.Note = fmt.Sprintf("add section %s %s-%s", f.Number, f.DepartureAirport, f.ArrivalAirport)
		default:
			a.Type = model.ActionChangeTime
			a.DelayMinutes = d.DelayMinutes
			a.NewDeparture = delayed(f, d.DelayMinutes)
			a.Note = fmt.Sprintf("retime %s +%d min", f.Number, d.DelayMinutes)
		}
		out = append(out, a)
	}
	return out
}

func delayed(f model.Flight, delayMin int) time.Time {
	return f.ScheduledDeparture.Add(time.Duration(delayMin) * time.Minute)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
