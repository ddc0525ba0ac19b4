// Package lanemap computes the physical-to-logical lane assignment of a combo-PHY from the Type-C
// orientation and the board's static remap vectors.
package lanemap

import (
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
)

// Order maps each physical lane (index) to the logical lane it carries (value).
type Order [phy.MaxLanes]uint8

// Identity is the unremapped lane order.
var Identity = Order{0, 1, 2, 3}

// ComputeLaneOrder returns remap read in the order selected by orientation. A reversed plug
// reverses the whole vector.
func ComputeLaneOrder(orientation phy.Orientation, remap Order) (Order, error) {
	return Reorder(orientation, remap)
}

// Reorder applies the orientation's read order to any per-physical-lane vector, such as the
// lane-invert flags.
func Reorder[T any](orientation phy.Orientation, v [phy.MaxLanes]T) ([phy.MaxLanes]T, error) {
	var out [phy.MaxLanes]T
	switch orientation {
	case phy.OrientationNormal:
		return v, nil
	case phy.OrientationReverse:
		for i := range v {
			out[i] = v[phy.MaxLanes-1-i]
		}
		return out, nil
	}
	return out, errors.Wrapf(phy.ErrInvalidOrientation, "cannot order lanes for %s orientation", orientation)
}

// IsPermutation reports whether remap uses every logical lane exactly once.
func IsPermutation(remap Order) bool {
	var seen [phy.MaxLanes]bool
	for _, logical := range remap {
		if int(logical) >= phy.MaxLanes || seen[logical] {
			return false
		}
		seen[logical] = true
	}
	return true
}

// PhysicalLane returns the physical lane carrying logical lane l.
func (o Order) PhysicalLane(l uint8) (int, bool) {
	for physical, logical := range o {
		if logical == l {
			return physical, true
		}
	}
	return 0, false
}

// Pack encodes the order two bits per physical lane, lane 0 in the low bits.
func (o Order) Pack() uint32 {
	var v uint32
	for physical, logical := range o {
		v |= uint32(logical&0x3) << (2 * physical)
	}
	return v
}

// PackFlags encodes one bit per physical lane, lane 0 in bit 0.
func PackFlags(flags [phy.MaxLanes]bool) uint32 {
	var v uint32
	for physical, set := range flags {
		if set {
			v |= 1 << physical
		}
	}
	return v
}
