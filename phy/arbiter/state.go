package arbiter

import (
	"fmt"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
)

// Mode is the arbiter state of one instance, derived from its owners.
type Mode int

// Arbiter states.
const (
	Idle Mode = iota
	UsbOwned
	DpOwned
	PcieOwned
	CombinedUsbDp
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case UsbOwned:
		return "usb_owned"
	case DpOwned:
		return "dp_owned"
	case PcieOwned:
		return "pcie_owned"
	case CombinedUsbDp:
		return "combined_usb_dp"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Capabilities describe what an instance's hardware variant can carry.
type Capabilities struct {
	Protocols phy.ProtocolSet
	// Combinable means USB3 and DisplayPort may own the instance together in a combined altmode.
	Combinable bool
}

// Supports reports whether the hardware can carry p.
func (c Capabilities) Supports(p phy.Protocol) bool {
	return c.Protocols.Has(p)
}

// CapabilitiesOf returns the fixed capabilities of an instance.
func CapabilitiesOf(id phy.InstanceID) Capabilities {
	switch id {
	case phy.Combo0:
		return Capabilities{Protocols: phy.NewProtocolSet(phy.USB3, phy.DisplayPort), Combinable: true}
	case phy.Combo1:
		return Capabilities{Protocols: phy.NewProtocolSet(phy.USB3, phy.PCIe)}
	case phy.AuxHpd:
		return Capabilities{Protocols: phy.NewProtocolSet(phy.DisplayPort)}
	}
	return Capabilities{}
}

// State is the mutable part of a PHY instance. Values are copies; the arbiter publishes a new one
// after every committed operation.
type State struct {
	ID          phy.InstanceID
	Owned       phy.ProtocolSet
	Orientation phy.Orientation
	Altmode     phy.AltmodeState
	HPD         bool

	// DisplayPort link parameters. Zero while DisplayPort does not own a laned instance.
	Rate    phy.LinkRate
	Lanes   int
	SSC     bool
	Voltage phy.VoltageLevels

	// Combined is true exactly when Altmode is DP state D or F.
	Combined bool
	// LaneOrder is the physical to logical lane order last programmed.
	LaneOrder lanemap.Order
}

// InitialState is the state of an instance at construction. Only Type-C instances start with an
// unknown orientation.
func InitialState(id phy.InstanceID, typeC bool) State {
	st := State{ID: id, Orientation: phy.OrientationNormal, Altmode: phy.AltmodeSafe}
	if typeC {
		st.Orientation = phy.OrientationUnknown
	}
	return st
}

// Mode returns the arbiter state.
func (s State) Mode() Mode {
	switch {
	case s.Owned.Has(phy.USB3) && s.Owned.Has(phy.DisplayPort):
		return CombinedUsbDp
	case s.Owned.Has(phy.USB3):
		return UsbOwned
	case s.Owned.Has(phy.DisplayPort):
		return DpOwned
	case s.Owned.Has(phy.PCIe):
		return PcieOwned
	}
	return Idle
}

func (s State) String() string {
	return fmt.Sprintf("%s: %s owned=%s orientation=%s altmode=%s hpd=%t rate=%s lanes=%d ssc=%t",
		s.ID, s.Mode(), s.Owned, s.Orientation, s.Altmode, s.HPD, s.Rate, s.Lanes, s.SSC)
}
