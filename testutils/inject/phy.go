package inject

import (
	"go.viam.com/combophy/phy"
)

// RegisterPort is an injectable phy.RegisterPort.
type RegisterPort struct {
	phy.RegisterPort
	Read32Func  func(offset uint32) (uint32, error)
	Write32Func func(offset, value uint32) error
}

// Read32 calls the injected Read32Func or the real version.
func (r *RegisterPort) Read32(offset uint32) (uint32, error) {
	if r.Read32Func == nil {
		return r.RegisterPort.Read32(offset)
	}
	return r.Read32Func(offset)
}

// Write32 calls the injected Write32Func or the real version.
func (r *RegisterPort) Write32(offset, value uint32) error {
	if r.Write32Func == nil {
		return r.RegisterPort.Write32(offset, value)
	}
	return r.Write32Func(offset, value)
}

// ClockPort is an injectable phy.ClockPort.
type ClockPort struct {
	phy.ClockPort
	EnableFunc  func(name string) error
	DisableFunc func(name string) error
}

// Enable calls the injected EnableFunc or the real version.
func (c *ClockPort) Enable(name string) error {
	if c.EnableFunc == nil {
		return c.ClockPort.Enable(name)
	}
	return c.EnableFunc(name)
}

// Disable calls the injected DisableFunc or the real version.
func (c *ClockPort) Disable(name string) error {
	if c.DisableFunc == nil {
		return c.ClockPort.Disable(name)
	}
	return c.DisableFunc(name)
}

// ResetPort is an injectable phy.ResetPort.
type ResetPort struct {
	phy.ResetPort
	AssertFunc   func(line phy.ResetLine) error
	DeassertFunc func(line phy.ResetLine) error
}

// Assert calls the injected AssertFunc or the real version.
func (r *ResetPort) Assert(line phy.ResetLine) error {
	if r.AssertFunc == nil {
		return r.ResetPort.Assert(line)
	}
	return r.AssertFunc(line)
}

// Deassert calls the injected DeassertFunc or the real version.
func (r *ResetPort) Deassert(line phy.ResetLine) error {
	if r.DeassertFunc == nil {
		return r.ResetPort.Deassert(line)
	}
	return r.DeassertFunc(line)
}

// NotificationPort is an injectable phy.NotificationPort.
type NotificationPort struct {
	phy.NotificationPort
	NotifyHPDFunc         func(id phy.InstanceID, asserted bool)
	NotifyOrientationFunc func(id phy.InstanceID, orientation phy.Orientation)
}

// NotifyHPD calls the injected NotifyHPDFunc or the real version.
func (n *NotificationPort) NotifyHPD(id phy.InstanceID, asserted bool) {
	if n.NotifyHPDFunc == nil {
		n.NotificationPort.NotifyHPD(id, asserted)
		return
	}
	n.NotifyHPDFunc(id, asserted)
}

// NotifyOrientation calls the injected NotifyOrientationFunc or the real version.
func (n *NotificationPort) NotifyOrientation(id phy.InstanceID, orientation phy.Orientation) {
	if n.NotifyOrientationFunc == nil {
		n.NotificationPort.NotifyOrientation(id, orientation)
		return
	}
	n.NotifyOrientationFunc(id, orientation)
}
