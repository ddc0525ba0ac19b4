package arbiter

import (
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
)

// Request is a speculative configuration to check against an instance. Zero LinkRate and
// LaneCount, and a nil Voltage, mean the parameter is not being changed.
type Request struct {
	Protocol  phy.Protocol
	LinkRate  phy.LinkRate
	LaneCount int
	Voltage   *phy.VoltageLevels
}

// Validate rejects illegal configurations. It is pure: it reads st and never changes anything, so
// a negotiator may call it before committing to a configuration with its partner.
func Validate(st State, caps Capabilities, req Request) error {
	dp := req.Protocol == phy.DisplayPort

	if dp && st.Combined && req.LaneCount > 2 {
		return errors.Wrapf(phy.ErrLaneCountExceedsCombinedLimit, "%d lanes requested", req.LaneCount)
	}
	if dp && req.LinkRate == phy.Rate8100 {
		return errors.Wrapf(phy.ErrUnsupportedRate, "%s has no link-training table", req.LinkRate)
	}
	if dp && st.Combined && req.LinkRate == phy.Rate1620 {
		return errors.Wrapf(phy.ErrRateUnsupportedInCombinedMode, "%s", req.LinkRate)
	}

	if !caps.Supports(req.Protocol) {
		return errors.Wrapf(phy.ErrProtocolNotSupported, "%s on %s", req.Protocol, st.ID)
	}
	if !dp {
		return nil
	}
	if req.LaneCount != 0 && !validLaneCount(req.LaneCount) {
		return errors.Wrapf(phy.ErrInvalidLaneCount, "%d", req.LaneCount)
	}
	if req.LinkRate != phy.RateUnset && !req.LinkRate.Valid() {
		return errors.Wrapf(phy.ErrUnsupportedRate, "%s", req.LinkRate)
	}
	if req.Voltage != nil && !req.Voltage.InRange() {
		return errors.Wrapf(phy.ErrInvalidVoltageLevel, "swing %v pre-emphasis %v",
			req.Voltage.Swing, req.Voltage.PreEmphasis)
	}
	return nil
}

func validLaneCount(n int) bool {
	switch n {
	case 1, 2, 4:
		return true
	}
	return false
}
