// Package fake implements simulated combo-PHY hardware: a register block whose readiness bits
// follow its resets and power-down bit, plus recording clock, reset and notification ports.
package fake

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/phyreg"
)

// Never disables a readiness bit for good.
const Never = -1

// PHY is one simulated register block with its clock and reset inputs. It implements
// phy.RegisterPort, phy.ClockPort and phy.ResetPort. The zero value is not usable; use NewPHY.
type PHY struct {
	mu       sync.Mutex
	regs     map[uint32]uint32
	asserted map[phy.ResetLine]bool
	clocks   map[string]bool
	powered  int
	journal  []string

	// ReadyAfter is the number of status reads after power-up before PMA common ready is set.
	ReadyAfter int
	// AckAfter is the same for the DisplayPort link power-state ack.
	AckAfter int
	// WriteErrors fails writes to the given offsets.
	WriteErrors map[uint32]error
}

// NewPHY returns a block with every reset asserted, every clock gated and readiness reported on the
// first read after power-up.
func NewPHY() *PHY {
	p := &PHY{
		regs:        map[uint32]uint32{phyreg.Control: phyreg.ControlIDDQ},
		asserted:    map[phy.ResetLine]bool{},
		clocks:      map[string]bool{},
		WriteErrors: map[uint32]error{},
	}
	for _, line := range phy.ResetLines {
		p.asserted[line] = true
	}
	return p
}

// Read32 implements phy.RegisterPort.
func (p *PHY) Read32(offset uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset != phyreg.Status {
		return p.regs[offset], nil
	}
	if !p.poweredUp() {
		p.powered = 0
		return 0, nil
	}
	p.powered++
	var v uint32
	if p.ReadyAfter != Never && p.powered > p.ReadyAfter {
		v |= phyreg.StatusPMACommonReady
	}
	if p.AckAfter != Never && p.powered > p.AckAfter {
		v |= phyreg.StatusLinkPowerAck
	}
	return v, nil
}

// Write32 implements phy.RegisterPort.
func (p *PHY) Write32(offset, value uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.WriteErrors[offset]; err != nil {
		return err
	}
	if offset == phyreg.Status {
		return errors.New("status register is read-only")
	}
	p.regs[offset] = value
	p.record("write 0x%03x=0x%08x", offset, value)
	if !p.poweredUp() {
		p.powered = 0
	}
	return nil
}

// Enable implements phy.ClockPort.
func (p *PHY) Enable(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clocks[name] = true
	p.record("enable %s", name)
	return nil
}

// Disable implements phy.ClockPort.
func (p *PHY) Disable(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clocks[name] = false
	p.record("disable %s", name)
	return nil
}

// Assert implements phy.ResetPort.
func (p *PHY) Assert(line phy.ResetLine) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asserted[line] = true
	p.powered = 0
	p.record("assert %s", line)
	return nil
}

// Deassert implements phy.ResetPort.
func (p *PHY) Deassert(line phy.ResetLine) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asserted[line] = false
	p.record("deassert %s", line)
	return nil
}

// Register returns the last value written to offset.
func (p *PHY) Register(offset uint32) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[offset]
}

// ClockEnabled reports whether a clock is running.
func (p *PHY) ClockEnabled(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clocks[name]
}

// ResetAsserted reports whether a reset line is held.
func (p *PHY) ResetAsserted(line phy.ResetLine) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asserted[line]
}

// Journal returns every clock, reset and register write operation in order.
func (p *PHY) Journal() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.journal...)
}

// ResetJournal clears the journal.
func (p *PHY) ResetJournal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = nil
}

// expects lock held.
func (p *PHY) poweredUp() bool {
	if p.regs[phyreg.Control]&phyreg.ControlIDDQ != 0 {
		return false
	}
	for _, asserted := range p.asserted {
		if asserted {
			return false
		}
	}
	return true
}

// expects lock held.
func (p *PHY) record(format string, args ...interface{}) {
	p.journal = append(p.journal, fmt.Sprintf(format, args...))
}
