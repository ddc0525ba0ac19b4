package fake

import (
	"sync"
)

// Page is a plain register page without side effects, such as the subsystem's shared top-level
// registers. It implements phy.RegisterPort.
type Page struct {
	mu   sync.Mutex
	regs map[uint32]uint32

	// WriteErrors fails writes to the given offsets.
	WriteErrors map[uint32]error
}

// NewPage returns an all-zero page.
func NewPage() *Page {
	return &Page{regs: map[uint32]uint32{}, WriteErrors: map[uint32]error{}}
}

// Read32 implements phy.RegisterPort.
func (p *Page) Read32(offset uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[offset], nil
}

// Write32 implements phy.RegisterPort.
func (p *Page) Write32(offset, value uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.WriteErrors[offset]; err != nil {
		return err
	}
	p.regs[offset] = value
	return nil
}
