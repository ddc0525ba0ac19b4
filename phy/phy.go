// Package phy defines the vocabulary shared by every layer of the combo-PHY stack: the closed set of
// PHY instances and protocols, Type-C orientation and altmode states, DisplayPort link rates, the
// error taxonomy and the hardware ports the sequencer drives.
package phy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"periph.io/x/conn/v3/physic"
)

const (
	// MaxLanes is the number of physical lanes on a combo-PHY macro.
	MaxLanes = 4
	// MaxLevel is the highest DisplayPort voltage swing or pre-emphasis level.
	MaxLevel = 3
)

// InstanceID names one physical combo-PHY block.
type InstanceID int

const (
	// Combo0 is the USB3 | DisplayPort macro behind the Type-C receptacle.
	Combo0 InstanceID = iota
	// Combo1 is the USB3 | PCIe macro.
	Combo1
	// AuxHpd carries only the DisplayPort AUX channel and HPD sideband.
	AuxHpd
)

// InstanceIDs lists every instance in the subsystem.
var InstanceIDs = []InstanceID{Combo0, Combo1, AuxHpd}

func (id InstanceID) String() string {
	switch id {
	case Combo0:
		return "combo0"
	case Combo1:
		return "combo1"
	case AuxHpd:
		return "aux_hpd"
	}
	return fmt.Sprintf("instance(%d)", int(id))
}

// InstanceIDFromString parses the board-configuration name of an instance.
func InstanceIDFromString(s string) (InstanceID, error) {
	for _, id := range InstanceIDs {
		if strings.EqualFold(s, id.String()) {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownInstance, "%q", s)
}

// Protocol is a wire protocol a combo-PHY can be initialized for.
type Protocol int

const (
	// USB3 is USB 3.1 SuperSpeed.
	USB3 Protocol = iota + 1
	// DisplayPort covers native DP, DP Alternate Mode and, on AuxHpd, the AUX channel.
	DisplayPort
	// PCIe is PCI Express.
	PCIe
)

// Protocols lists every protocol in declaration order.
var Protocols = []Protocol{USB3, DisplayPort, PCIe}

func (p Protocol) String() string {
	switch p {
	case USB3:
		return "usb3"
	case DisplayPort:
		return "displayport"
	case PCIe:
		return "pcie"
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// ProtocolFromString parses a protocol name. "dp" and "usb" are accepted as short forms.
func ProtocolFromString(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "usb3", "usb":
		return USB3, nil
	case "displayport", "dp":
		return DisplayPort, nil
	case "pcie":
		return PCIe, nil
	}
	return 0, errors.Errorf("unknown protocol %q", s)
}

// ProtocolSet is a small set of protocols.
type ProtocolSet uint8

// NewProtocolSet returns the set holding ps.
func NewProtocolSet(ps ...Protocol) ProtocolSet {
	var s ProtocolSet
	for _, p := range ps {
		s = s.With(p)
	}
	return s
}

// Has reports whether p is in the set.
func (s ProtocolSet) Has(p Protocol) bool {
	return s&(1<<uint(p)) != 0
}

// With returns the set plus p.
func (s ProtocolSet) With(p Protocol) ProtocolSet {
	return s | 1<<uint(p)
}

// Without returns the set minus p.
func (s ProtocolSet) Without(p Protocol) ProtocolSet {
	return s &^ (1 << uint(p))
}

// IsEmpty reports whether no protocol is in the set.
func (s ProtocolSet) IsEmpty() bool {
	return s == 0
}

// Len returns the number of protocols in the set.
func (s ProtocolSet) Len() int {
	return len(s.Protocols())
}

// Protocols returns the members in declaration order.
func (s ProtocolSet) Protocols() []Protocol {
	return lo.Filter(Protocols, func(p Protocol, _ int) bool { return s.Has(p) })
}

func (s ProtocolSet) String() string {
	names := lo.Map(s.Protocols(), func(p Protocol, _ int) string { return p.String() })
	return "{" + strings.Join(names, ",") + "}"
}

// Orientation is the Type-C plug orientation.
type Orientation int

const (
	// OrientationUnknown is only valid as the initial value of a Type-C instance.
	OrientationUnknown Orientation = iota
	// OrientationNormal means the plug is not flipped.
	OrientationNormal
	// OrientationReverse means the plug is flipped and lane order is reversed.
	OrientationReverse
)

// Known reports whether the orientation has been resolved.
func (o Orientation) Known() bool {
	return o == OrientationNormal || o == OrientationReverse
}

func (o Orientation) String() string {
	switch o {
	case OrientationUnknown:
		return "unknown"
	case OrientationNormal:
		return "normal"
	case OrientationReverse:
		return "reverse"
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

// OrientationFromString parses an orientation name.
func OrientationFromString(s string) (Orientation, error) {
	switch strings.ToLower(s) {
	case "unknown", "":
		return OrientationUnknown, nil
	case "normal":
		return OrientationNormal, nil
	case "reverse", "flipped":
		return OrientationReverse, nil
	}
	return 0, errors.Errorf("unknown orientation %q", s)
}

// AltmodeState is the Type-C / DisplayPort Alternate Mode pin-assignment state.
type AltmodeState int

const (
	// AltmodeSafe is the USB Safe state; no high-speed signaling.
	AltmodeSafe AltmodeState = iota
	// AltmodeUSBOnly is plain USB, no DisplayPort.
	AltmodeUSBOnly
	// AltmodeDPStateC assigns all four lanes to DisplayPort.
	AltmodeDPStateC
	// AltmodeDPStateD shares the lanes: two DisplayPort, two USB3.
	AltmodeDPStateD
	// AltmodeDPStateE assigns all four lanes to DisplayPort.
	AltmodeDPStateE
	// AltmodeDPStateF shares the lanes: two DisplayPort, two USB3.
	AltmodeDPStateF
)

// Combined reports whether USB3 and DisplayPort share the lanes in this state.
func (a AltmodeState) Combined() bool {
	return a == AltmodeDPStateD || a == AltmodeDPStateF
}

// DisplayPort reports whether the state carries DisplayPort at all.
func (a AltmodeState) DisplayPort() bool {
	return a >= AltmodeDPStateC && a <= AltmodeDPStateF
}

func (a AltmodeState) String() string {
	switch a {
	case AltmodeSafe:
		return "safe"
	case AltmodeUSBOnly:
		return "usb"
	case AltmodeDPStateC:
		return "dp_c"
	case AltmodeDPStateD:
		return "dp_d"
	case AltmodeDPStateE:
		return "dp_e"
	case AltmodeDPStateF:
		return "dp_f"
	}
	return fmt.Sprintf("altmode(%d)", int(a))
}

// AltmodeStateFromString parses an altmode state name.
func AltmodeStateFromString(s string) (AltmodeState, error) {
	for a := AltmodeSafe; a <= AltmodeDPStateF; a++ {
		if strings.EqualFold(s, a.String()) {
			return a, nil
		}
	}
	return 0, errors.Errorf("unknown altmode state %q", s)
}

// LinkRate is a DisplayPort per-lane link rate.
type LinkRate int

const (
	// RateUnset means no rate has been requested or trained.
	RateUnset LinkRate = iota
	// Rate1620 is RBR, 1.62 Gb/s per lane.
	Rate1620
	// Rate2700 is HBR, 2.7 Gb/s per lane.
	Rate2700
	// Rate5400 is HBR2, 5.4 Gb/s per lane.
	Rate5400
	// Rate8100 is HBR3, 8.1 Gb/s per lane. Declared, but the current hardware generation has no
	// calibration for it.
	Rate8100
)

// LinkRates lists every declared rate.
var LinkRates = []LinkRate{Rate1620, Rate2700, Rate5400, Rate8100}

// Mbps returns the per-lane rate in Mb/s, the unit used by DisplayPort PHY configuration requests.
func (r LinkRate) Mbps() int {
	switch r {
	case Rate1620:
		return 1620
	case Rate2700:
		return 2700
	case Rate5400:
		return 5400
	case Rate8100:
		return 8100
	}
	return 0
}

// Frequency returns the per-lane symbol rate.
func (r LinkRate) Frequency() physic.Frequency {
	return physic.Frequency(r.Mbps()) * physic.MegaHertz
}

// Valid reports whether r is one of the declared rates.
func (r LinkRate) Valid() bool {
	return r >= Rate1620 && r <= Rate8100
}

func (r LinkRate) String() string {
	switch r {
	case RateUnset:
		return "unset"
	case Rate1620:
		return "1.62G"
	case Rate2700:
		return "2.7G"
	case Rate5400:
		return "5.4G"
	case Rate8100:
		return "8.1G"
	}
	return fmt.Sprintf("rate(%d)", int(r))
}

// LinkRateFromMbps maps a per-lane rate in Mb/s to a declared rate.
func LinkRateFromMbps(mbps int) (LinkRate, error) {
	for _, r := range LinkRates {
		if r.Mbps() == mbps {
			return r, nil
		}
	}
	return RateUnset, errors.Wrapf(ErrUnsupportedRate, "%d Mb/s", mbps)
}

// LinkRateFromString parses either the short form ("2.7G") or Mb/s ("2700").
func LinkRateFromString(s string) (LinkRate, error) {
	for _, r := range LinkRates {
		if strings.EqualFold(s, r.String()) || s == fmt.Sprint(r.Mbps()) {
			return r, nil
		}
	}
	return RateUnset, errors.Wrapf(ErrUnsupportedRate, "%q", s)
}

// ResetLine is one of the reset inputs of a combo-PHY block.
type ResetLine int

const (
	// PhyReset is the top-level PHY reset.
	PhyReset ResetLine = iota
	// LinkReset resets the protocol link layer glue.
	LinkReset
	// PmaReset resets the physical medium attachment.
	PmaReset
)

// ResetLines lists the resets in deassert order.
var ResetLines = []ResetLine{PhyReset, LinkReset, PmaReset}

func (l ResetLine) String() string {
	switch l {
	case PhyReset:
		return "phy"
	case LinkReset:
		return "link"
	case PmaReset:
		return "pma"
	}
	return fmt.Sprintf("reset(%d)", int(l))
}

// VoltageLevels holds per-lane DisplayPort drive settings, indexed by logical lane.
type VoltageLevels struct {
	Swing       [MaxLanes]uint8 `json:"swing"`
	PreEmphasis [MaxLanes]uint8 `json:"pre_emphasis"`
}

// InRange reports whether every level is within 0..MaxLevel.
func (v VoltageLevels) InRange() bool {
	for lane := 0; lane < MaxLanes; lane++ {
		if v.Swing[lane] > MaxLevel || v.PreEmphasis[lane] > MaxLevel {
			return false
		}
	}
	return true
}
