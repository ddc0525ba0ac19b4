// Package periphport implements the combo-PHY hardware ports on top of periph.io: register blocks
// through physical memory mappings, and reset lines, clock gates and HPD through GPIO pins.
package periphport

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/pmem"
)

// Init loads the periph.io host drivers. It must run before any pin is looked up by name.
func Init() error {
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "initializing periph host drivers")
	}
	return nil
}

// MMIO is a phy.RegisterPort over a mapped register window.
type MMIO struct {
	mu    sync.Mutex
	regs  []uint32
	close func() error
}

// OpenMMIO maps size bytes of physical memory at base.
func OpenMMIO(base uint64, size int) (*MMIO, error) {
	if base%4 != 0 || size <= 0 || size%4 != 0 {
		return nil, errors.Errorf("register window 0x%x+0x%x is not word aligned", base, size)
	}
	view, err := pmem.Map(base, size)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping register window 0x%x", base)
	}
	return &MMIO{regs: view.Uint32(), close: view.Close}, nil
}

// newMMIO wraps memory that is already mapped.
func newMMIO(regs []uint32) *MMIO {
	return &MMIO{regs: regs, close: func() error { return nil }}
}

// Read32 implements phy.RegisterPort.
func (m *MMIO) Read32(offset uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.index(offset)
	if err != nil {
		return 0, err
	}
	return m.regs[i], nil
}

// Write32 implements phy.RegisterPort.
func (m *MMIO) Write32(offset, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.index(offset)
	if err != nil {
		return err
	}
	m.regs[i] = value
	return nil
}

// Close unmaps the window. Accesses after Close fail.
func (m *MMIO) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.regs == nil {
		return nil
	}
	m.regs = nil
	return m.close()
}

// expects lock held.
func (m *MMIO) index(offset uint32) (int, error) {
	if m.regs == nil {
		return 0, errors.New("register window is closed")
	}
	if offset%4 != 0 {
		return 0, errors.Errorf("unaligned register offset 0x%x", offset)
	}
	i := int(offset / 4)
	if i >= len(m.regs) {
		return 0, errors.Errorf("register offset 0x%x is outside the 0x%x byte window", offset, 4*len(m.regs))
	}
	return i, nil
}
