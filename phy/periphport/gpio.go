package periphport

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"go.viam.com/combophy/logging"
	"go.viam.com/combophy/phy"
)

func pinByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no gpio pin named %q", name)
	}
	return p, nil
}

// Resets is a phy.ResetPort whose lines are active-low GPIO outputs.
type Resets struct {
	pins map[phy.ResetLine]gpio.PinIO
}

// NewResets looks up the pin of every reset line by name.
func NewResets(names map[phy.ResetLine]string) (*Resets, error) {
	pins := map[phy.ResetLine]gpio.PinIO{}
	for _, line := range phy.ResetLines {
		name, ok := names[line]
		if !ok {
			return nil, errors.Errorf("no gpio configured for the %s reset", line)
		}
		p, err := pinByName(name)
		if err != nil {
			return nil, err
		}
		pins[line] = p
	}
	return newResets(pins), nil
}

func newResets(pins map[phy.ResetLine]gpio.PinIO) *Resets {
	return &Resets{pins: pins}
}

// Assert implements phy.ResetPort.
func (r *Resets) Assert(line phy.ResetLine) error {
	return r.drive(line, gpio.Low)
}

// Deassert implements phy.ResetPort.
func (r *Resets) Deassert(line phy.ResetLine) error {
	return r.drive(line, gpio.High)
}

func (r *Resets) drive(line phy.ResetLine, l gpio.Level) error {
	p, ok := r.pins[line]
	if !ok {
		return errors.Errorf("no gpio for the %s reset", line)
	}
	return errors.Wrapf(p.Out(l), "driving %s reset on %s", line, p.Name())
}

// Clocks is a phy.ClockPort gating named clocks through active-high GPIO enables.
type Clocks struct {
	pins map[string]gpio.PinIO
}

// NewClocks looks up the enable pin of every clock by name.
func NewClocks(names map[string]string) (*Clocks, error) {
	pins := map[string]gpio.PinIO{}
	for clk, name := range names {
		p, err := pinByName(name)
		if err != nil {
			return nil, errors.Wrapf(err, "clock %q", clk)
		}
		pins[clk] = p
	}
	return newClocks(pins), nil
}

func newClocks(pins map[string]gpio.PinIO) *Clocks {
	return &Clocks{pins: pins}
}

// Enable implements phy.ClockPort.
func (c *Clocks) Enable(name string) error {
	return c.drive(name, gpio.High)
}

// Disable implements phy.ClockPort.
func (c *Clocks) Disable(name string) error {
	return c.drive(name, gpio.Low)
}

func (c *Clocks) drive(name string, l gpio.Level) error {
	p, ok := c.pins[name]
	if !ok {
		return errors.Errorf("no gpio for clock %q", name)
	}
	return errors.Wrapf(p.Out(l), "gating clock %q on %s", name, p.Name())
}

// Notifier is a phy.NotificationPort that mirrors HPD onto per-instance GPIO outputs and logs
// orientation changes. Notifications never fail the caller; pin errors are logged.
type Notifier struct {
	pins   map[phy.InstanceID]gpio.PinIO
	logger logging.Logger
}

// NewNotifier looks up the HPD output of each instance that has one.
func NewNotifier(names map[phy.InstanceID]string, logger logging.Logger) (*Notifier, error) {
	pins := map[phy.InstanceID]gpio.PinIO{}
	for id, name := range names {
		p, err := pinByName(name)
		if err != nil {
			return nil, errors.Wrapf(err, "%s hpd", id)
		}
		pins[id] = p
	}
	return newNotifier(pins, logger), nil
}

func newNotifier(pins map[phy.InstanceID]gpio.PinIO, logger logging.Logger) *Notifier {
	return &Notifier{pins: pins, logger: logger}
}

// NotifyHPD implements phy.NotificationPort.
func (n *Notifier) NotifyHPD(id phy.InstanceID, asserted bool) {
	p, ok := n.pins[id]
	if !ok {
		n.logger.Debugw("hpd", "instance", id.String(), "asserted", asserted)
		return
	}
	if err := p.Out(gpio.Level(asserted)); err != nil {
		n.logger.Warnw("failed to drive hpd", "instance", id.String(), "pin", p.Name(), "error", err)
	}
}

// NotifyOrientation implements phy.NotificationPort.
func (n *Notifier) NotifyOrientation(id phy.InstanceID, orientation phy.Orientation) {
	n.logger.Infow("orientation changed", "instance", id.String(), "orientation", orientation.String())
}

// Close drives every pin it owns to a safe level: HPD deasserted.
func (n *Notifier) Close() error {
	var err error
	for _, p := range n.pins {
		err = multierr.Combine(err, p.Out(gpio.Low))
	}
	return err
}
