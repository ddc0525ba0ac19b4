// Package phyreg is the register map of a combo-PHY block and of the subsystem's shared top-level
// register page.
package phyreg

// Per-instance block.
const (
	// Control holds the analog power-down and Type-C connector-direction bits.
	Control uint32 = 0x000
	// Status holds the readiness bits polled by the sequencer.
	Status uint32 = 0x004
	// LaneMode selects the protocol of each physical lane, two bits per lane.
	LaneMode uint32 = 0x010
	// LaneMap selects the logical lane of each physical lane, two bits per lane.
	LaneMap uint32 = 0x014
	// LaneInvert flips the polarity of a physical lane, one bit per lane.
	LaneInvert uint32 = 0x018
	// LinkRate holds the DisplayPort rate code.
	LinkRate uint32 = 0x020
	// SSC enables spread-spectrum clocking.
	SSC uint32 = 0x024
	// TxDrive0 is the drive setting of physical lane 0; lane n is at TxDrive0 + 4n.
	TxDrive0 uint32 = 0x040
)

// Control bits.
const (
	ControlIDDQ      uint32 = 1 << 0
	ControlTypeCFlip uint32 = 1 << 4
)

// Status bits.
const (
	StatusPMACommonReady uint32 = 1 << 0
	StatusLinkPowerAck   uint32 = 1 << 8
)

// Lane modes.
const (
	LaneOff  uint32 = 0
	LaneUSB3 uint32 = 1
	LaneDP   uint32 = 2
	LanePCIe uint32 = 3
)

// SSCEnable is the only bit of the SSC register.
const SSCEnable uint32 = 1 << 0

// TxDrive returns the drive register of a physical lane.
func TxDrive(physical int) uint32 {
	return TxDrive0 + 4*uint32(physical)
}

// Shared top-level page. Each instance owns one TypeCRemap slot.
const (
	// RefClockEnable gates the reference clock shared by every instance.
	RefClockEnable uint32 = 0x000
	// TypeCRemap0 is the subsystem-level Type-C pin remap of instance 0; instance n is at
	// TypeCRemap0 + 4n.
	TypeCRemap0 uint32 = 0x010
)

// RefClockOn is the enable bit of RefClockEnable.
const RefClockOn uint32 = 1 << 0

// TypeCRemap returns the shared remap register of an instance index.
func TypeCRemap(instance int) uint32 {
	return TypeCRemap0 + 4*uint32(instance)
}
