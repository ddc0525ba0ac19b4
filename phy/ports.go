package phy

// RegisterPort is raw 32-bit access to one register block. Offsets are byte offsets from the start
// of the block.
type RegisterPort interface {
	Read32(offset uint32) (uint32, error)
	Write32(offset, value uint32) error
}

// ClockPort gates the clocks feeding one instance. Enable and Disable set the gate rather than
// count: a hard reset re-enables clocks that are already running, and one Disable stops a clock
// however many times it was enabled.
type ClockPort interface {
	Enable(name string) error
	Disable(name string) error
}

// ResetPort drives the reset lines of one instance.
type ResetPort interface {
	Assert(line ResetLine) error
	Deassert(line ResetLine) error
}

// NotificationPort forwards sideband events to the rest of the system. Delivery is fire and
// forget; a slow or absent listener never fails a PHY operation.
type NotificationPort interface {
	NotifyHPD(id InstanceID, asserted bool)
	NotifyOrientation(id InstanceID, orientation Orientation)
}

// Read32 reads a register and tags any failure as a RegisterError.
func Read32(port RegisterPort, offset uint32) (uint32, error) {
	v, err := port.Read32(offset)
	if err != nil {
		return 0, &RegisterError{Offset: offset, Err: err}
	}
	return v, nil
}

// Write32 writes a register and tags any failure as a RegisterError.
func Write32(port RegisterPort, offset, value uint32) error {
	if err := port.Write32(offset, value); err != nil {
		return &RegisterError{Write: true, Offset: offset, Err: err}
	}
	return nil
}

// Update32 is a read-modify-write of the bits in mask.
func Update32(port RegisterPort, offset, mask, value uint32) error {
	v, err := Read32(port, offset)
	if err != nil {
		return err
	}
	return Write32(port, offset, (v&^mask)|(value&mask))
}
