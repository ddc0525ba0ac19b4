package sequencer

import (
	"sync"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/phyreg"
)

// Shared serializes access to the subsystem's top-level registers: the shared reference-clock
// enable and the per-instance Type-C remap slots.
//
// Lock order: callers already hold their instance lock when they reach Shared, and Shared never
// calls back into an instance, so the order is always instance then subsystem.
type Shared struct {
	mu       sync.Mutex
	regs     phy.RegisterPort
	refUsers map[phy.InstanceID]struct{}
}

// NewShared wraps the top-level register page.
func NewShared(regs phy.RegisterPort) *Shared {
	return &Shared{regs: regs, refUsers: map[phy.InstanceID]struct{}{}}
}

// AcquireRefClock records id as a user of the reference clock, enabling it for the first user.
func (s *Shared) AcquireRefClock(id phy.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refUsers[id]; ok {
		return nil
	}
	if len(s.refUsers) == 0 {
		if err := phy.Update32(s.regs, phyreg.RefClockEnable, phyreg.RefClockOn, phyreg.RefClockOn); err != nil {
			return err
		}
	}
	s.refUsers[id] = struct{}{}
	return nil
}

// ReleaseRefClock drops id as a user, gating the clock after the last user leaves.
func (s *Shared) ReleaseRefClock(id phy.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refUsers[id]; !ok {
		return nil
	}
	delete(s.refUsers, id)
	if len(s.refUsers) == 0 {
		return phy.Update32(s.regs, phyreg.RefClockEnable, phyreg.RefClockOn, 0)
	}
	return nil
}

// RefClockUsers returns the number of instances holding the reference clock.
func (s *Shared) RefClockUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refUsers)
}

// WriteTypeCRemap programs the subsystem-level pin remap of an instance.
func (s *Shared) WriteTypeCRemap(id phy.InstanceID, order lanemap.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return phy.Write32(s.regs, phyreg.TypeCRemap(int(id)), order.Pack())
}
