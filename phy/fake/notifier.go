package fake

import (
	"sync"

	"go.viam.com/combophy/phy"
)

// HPDEvent is one recorded hot-plug notification.
type HPDEvent struct {
	ID       phy.InstanceID
	Asserted bool
}

// OrientationEvent is one recorded orientation notification.
type OrientationEvent struct {
	ID          phy.InstanceID
	Orientation phy.Orientation
}

// Notifier records notifications. It implements phy.NotificationPort.
type Notifier struct {
	mu           sync.Mutex
	hpd          []HPDEvent
	orientations []OrientationEvent
}

// NotifyHPD implements phy.NotificationPort.
func (n *Notifier) NotifyHPD(id phy.InstanceID, asserted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hpd = append(n.hpd, HPDEvent{id, asserted})
}

// NotifyOrientation implements phy.NotificationPort.
func (n *Notifier) NotifyOrientation(id phy.InstanceID, orientation phy.Orientation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orientations = append(n.orientations, OrientationEvent{id, orientation})
}

// HPD returns the recorded hot-plug events.
func (n *Notifier) HPD() []HPDEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]HPDEvent(nil), n.hpd...)
}

// Orientations returns the recorded orientation events.
func (n *Notifier) Orientations() []OrientationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]OrientationEvent(nil), n.orientations...)
}
