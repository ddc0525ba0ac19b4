// Package arbiter decides which protocol owns each combo-PHY instance and what hardware sequence a
// request needs, and serializes those decisions per instance.
//
// Decisions are pure: an Arbiter maps the current State and a request to a Transition, the next
// State plus the sequencer plan that gets there. The Subsystem runs the plan and commits the next
// State only when the plan succeeds.
package arbiter

import (
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/sequencer"
)

// Link parameters DisplayPort starts with when it takes a laned instance.
const (
	DefaultRate          = phy.Rate2700
	DefaultLanes         = 4
	DefaultCombinedLanes = 2
	minCombinedLinkRate  = phy.Rate2700
	maxCombinedLaneCount = DefaultCombinedLanes
)

// Transition is the outcome of a decision. A nil Plan means no hardware change is needed and Next
// can be committed directly.
type Transition struct {
	Next State
	Plan *sequencer.Plan
}

// An Arbiter holds the static facts about one instance that decisions depend on.
type Arbiter struct {
	Caps     Capabilities
	TypeC    bool
	HasLanes bool
}

// NewArbiter returns the arbiter for a board instance.
func NewArbiter(board sequencer.Board) Arbiter {
	return Arbiter{Caps: CapabilitiesOf(board.ID), TypeC: board.TypeC, HasLanes: board.HasLanes}
}

// Init decides an init(protocol) request. It does not require a known orientation: host
// controllers may come up before the first Type-C event, in which case lanes are programmed in
// normal order and the orientation stays unknown.
func (a Arbiter) Init(st State, p phy.Protocol) (Transition, error) {
	if !a.Caps.Supports(p) {
		return Transition{}, errors.Wrapf(phy.ErrProtocolNotSupported, "%s on %s", p, st.ID)
	}
	if st.Owned.Has(p) {
		return Transition{Next: st}, nil
	}
	if !st.Owned.IsEmpty() && !a.combines(st, st.Owned.With(p)) {
		return Transition{}, errors.Wrapf(phy.ErrBusy, "%s is %s", st.ID, st.Mode())
	}

	next := st
	next.Owned = st.Owned.With(p)
	switch {
	case p == phy.DisplayPort:
		a.resetLink(&next)
	case p == phy.USB3 && a.Caps.Combinable && st.Combined && !st.Owned.Has(phy.DisplayPort):
		// The altmode already entered D or F, so USB3 takes the instance combined.
		next.Owned = next.Owned.With(phy.DisplayPort)
		a.resetLink(&next)
	}
	return a.hardReset(next), nil
}

// Exit decides an exit(protocol) request. The last owner powers the instance off; otherwise the
// remaining owner gets a fresh hard reset.
func (a Arbiter) Exit(st State, p phy.Protocol) (Transition, error) {
	if !a.Caps.Supports(p) {
		return Transition{}, errors.Wrapf(phy.ErrProtocolNotSupported, "%s on %s", p, st.ID)
	}
	if !st.Owned.Has(p) {
		return Transition{}, errors.Wrapf(phy.ErrNotOwned, "%s on %s", p, st.ID)
	}

	next := st
	next.Owned = st.Owned.Without(p)
	if p == phy.DisplayPort {
		clearLink(&next)
	}
	if next.Owned.IsEmpty() {
		return a.Shutdown(st), nil
	}
	return a.hardReset(next), nil
}

// Shutdown powers the instance off, dropping every owner. An idle instance needs nothing.
func (a Arbiter) Shutdown(st State) Transition {
	if st.Owned.IsEmpty() {
		return Transition{Next: st}
	}
	next := st
	next.Owned = 0
	clearLink(&next)
	next.LaneOrder = lanemap.Order{}
	return Transition{Next: next, Plan: &sequencer.Plan{Kind: sequencer.PowerOff}}
}

// SetMode decides a Type-C event. HPD is not part of the decision; it never reconfigures the PHY.
//
// On a combinable instance USB3 ownership pulls DisplayPort in when the altmode enters state D or
// F, and drops it again when the altmode leaves them. A hard reset follows any change to
// orientation, combined mode or ownership.
func (a Arbiter) SetMode(st State, orientation phy.Orientation, altmode phy.AltmodeState) (Transition, error) {
	if !orientation.Known() {
		return Transition{}, errors.Wrapf(phy.ErrInvalidOrientation, "%s", orientation)
	}
	if orientation == phy.OrientationReverse && !a.TypeC {
		return Transition{}, errors.Wrapf(phy.ErrInvalidOrientation, "%s is not behind a Type-C receptacle", st.ID)
	}
	if altmode.DisplayPort() && !a.Caps.Supports(phy.DisplayPort) {
		return Transition{}, errors.Wrapf(phy.ErrProtocolNotSupported, "altmode %s on %s", altmode, st.ID)
	}

	next := st
	next.Orientation = orientation
	next.Altmode = altmode
	next.Combined = altmode.Combined()

	if a.Caps.Combinable {
		combinedOwners := phy.NewProtocolSet(phy.USB3, phy.DisplayPort)
		switch {
		case next.Combined && st.Owned == phy.NewProtocolSet(phy.USB3):
			next.Owned = combinedOwners
			a.resetLink(&next)
		case !next.Combined && st.Owned == combinedOwners:
			next.Owned = st.Owned.Without(phy.DisplayPort)
			clearLink(&next)
		}
	}
	if next.Combined && next.Owned.Has(phy.DisplayPort) && a.HasLanes {
		if next.Lanes > maxCombinedLaneCount {
			next.Lanes = maxCombinedLaneCount
		}
		if next.Rate < minCombinedLinkRate {
			next.Rate = minCombinedLinkRate
		}
	}

	if next.Owned.IsEmpty() {
		return Transition{Next: next}, nil
	}
	if next.Orientation != st.Orientation || next.Combined != st.Combined || next.Owned != st.Owned ||
		next.Lanes != st.Lanes || next.Rate != st.Rate {
		return a.hardReset(next), nil
	}
	return Transition{Next: next}, nil
}

// combines reports whether owners may hold the instance together given its current altmode.
func (a Arbiter) combines(st State, owners phy.ProtocolSet) bool {
	return a.Caps.Combinable && st.Combined && owners == phy.NewProtocolSet(phy.USB3, phy.DisplayPort)
}

func (a Arbiter) hardReset(next State) Transition {
	return Transition{Next: next, Plan: a.plan(sequencer.HardReset, next)}
}

func (a Arbiter) plan(kind sequencer.PlanKind, st State) *sequencer.Plan {
	orientation := st.Orientation
	if !orientation.Known() {
		orientation = phy.OrientationNormal
	}
	return &sequencer.Plan{
		Kind:        kind,
		Protocols:   st.Owned,
		Orientation: orientation,
		Rate:        st.Rate,
		Lanes:       st.Lanes,
		Voltage:     st.Voltage,
		SSC:         st.SSC,
	}
}

// resetLink gives DisplayPort its starting link parameters. The AUX-only instance has none.
func (a Arbiter) resetLink(st *State) {
	clearLink(st)
	if !a.HasLanes {
		return
	}
	st.Rate = DefaultRate
	st.Lanes = DefaultLanes
	if st.Combined {
		st.Lanes = DefaultCombinedLanes
	}
}

func clearLink(st *State) {
	st.Rate = phy.RateUnset
	st.Lanes = 0
	st.SSC = false
	st.Voltage = phy.VoltageLevels{}
}
