package arbiter

import (
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/sequencer"
)

// DisplayPortConfig mirrors the DisplayPort PHY configure options. Nil fields are left as they are.
type DisplayPortConfig struct {
	SSC     *bool
	Lanes   *int
	Rate    *phy.LinkRate
	Voltage *phy.VoltageLevels
}

// Request returns the validation request covering every set field.
func (c DisplayPortConfig) Request() Request {
	req := Request{Protocol: phy.DisplayPort, Voltage: c.Voltage}
	if c.Lanes != nil {
		req.LaneCount = *c.Lanes
	}
	if c.Rate != nil {
		req.LinkRate = *c.Rate
	}
	return req
}

// Step is one sub-step of a configure request. Decide runs against the state committed by the
// previous step.
type Step struct {
	Name   string
	Decide func(st State) (Transition, error)
}

// ConfigureDisplayPort validates a configure request as a whole and splits it into sub-steps in
// the fixed order SSC, lanes, rate, voltage. Voltage levels are looked up at the rate in force when
// that step runs, and a lane change hard-resets the PHY ahead of the rate and voltage programming.
func (a Arbiter) ConfigureDisplayPort(st State, cfg DisplayPortConfig) ([]Step, error) {
	// A zero value in the request means "unchanged"; an explicit one is never a valid setting.
	if cfg.Lanes != nil && !validLaneCount(*cfg.Lanes) {
		return nil, errors.Wrapf(phy.ErrInvalidLaneCount, "%d", *cfg.Lanes)
	}
	if cfg.Rate != nil && !cfg.Rate.Valid() {
		return nil, errors.Wrapf(phy.ErrUnsupportedRate, "%s", *cfg.Rate)
	}
	if err := Validate(st, a.Caps, cfg.Request()); err != nil {
		return nil, err
	}
	if !a.HasLanes {
		return nil, errors.Wrapf(phy.ErrProtocolNotSupported, "%s has no DisplayPort lanes", st.ID)
	}
	if !st.Orientation.Known() {
		return nil, errors.Wrapf(phy.ErrInvalidOrientation, "%s", st.Orientation)
	}
	if !st.Owned.Has(phy.DisplayPort) {
		return nil, errors.Wrapf(phy.ErrNotOwned, "%s on %s", phy.DisplayPort, st.ID)
	}

	var steps []Step
	if cfg.SSC != nil {
		ssc := *cfg.SSC
		steps = append(steps, Step{Name: "ssc", Decide: func(st State) (Transition, error) {
			next := st
			next.SSC = ssc
			return a.reconfigure(st, next, sequencer.SoftReconfigure, Request{Protocol: phy.DisplayPort})
		}})
	}
	if cfg.Lanes != nil {
		lanes := *cfg.Lanes
		steps = append(steps, Step{Name: "lanes", Decide: func(st State) (Transition, error) {
			next := st
			next.Lanes = lanes
			return a.reconfigure(st, next, sequencer.HardReset, Request{Protocol: phy.DisplayPort, LaneCount: lanes})
		}})
	}
	if cfg.Rate != nil {
		rate := *cfg.Rate
		steps = append(steps, Step{Name: "rate", Decide: func(st State) (Transition, error) {
			next := st
			next.Rate = rate
			return a.reconfigure(st, next, sequencer.SoftReconfigure, Request{Protocol: phy.DisplayPort, LinkRate: rate})
		}})
	}
	if cfg.Voltage != nil {
		voltage := *cfg.Voltage
		steps = append(steps, Step{Name: "voltage", Decide: func(st State) (Transition, error) {
			next := st
			next.Voltage = voltage
			return a.reconfigure(st, next, sequencer.SoftReconfigure, Request{Protocol: phy.DisplayPort, Voltage: &voltage})
		}})
	}
	return steps, nil
}

// reconfigure re-validates one sub-step against the state it runs on. A step that changes nothing
// touches no hardware.
func (a Arbiter) reconfigure(st, next State, kind sequencer.PlanKind, req Request) (Transition, error) {
	if err := Validate(st, a.Caps, req); err != nil {
		return Transition{}, err
	}
	if next == st {
		return Transition{Next: st}, nil
	}
	return Transition{Next: next, Plan: a.plan(kind, next)}, nil
}
