// Package sequencer drives the ordered, hardware-facing steps that bring a combo-PHY instance into a
// planned layout: power-down, clocks, resets, lane direction, bounded readiness polls and the
// protocol register program.
//
// Readiness polls are best effort. A poll that runs out of iterations is logged and the sequence
// continues, since the hardware has historically come up usable anyway. Register port failures
// abort the sequence and unwind every step already taken.
package sequencer

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/combophy/logging"
	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/linktrain"
	"go.viam.com/combophy/phy/phyreg"
)

// Names of the polled readiness bits, as logged and reported in Result.TimedOut.
const (
	BitPMACommonReady = "pma_common_ready"
	BitLinkPowerAck   = "link_power_ack"
)

// A Sequencer applies plans. It holds no per-instance state; callers serialize Apply per instance.
type Sequencer struct {
	table  *linktrain.Table
	shared *Shared
	opts   Options
}

// New returns a Sequencer using table for DisplayPort drive levels and shared for top-level
// registers.
func New(table *linktrain.Table, shared *Shared, opts Options) *Sequencer {
	return &Sequencer{table: table, shared: shared, opts: opts.withDefaults()}
}

// Options returns the effective timing options.
func (s *Sequencer) Options() Options {
	return s.opts
}

// Apply runs plan against one instance. It blocks for the length of the readiness polls and cannot
// be cancelled.
func (s *Sequencer) Apply(logger logging.Logger, board Board, hw Hardware, plan Plan) (Result, error) {
	logger.Debugw("applying plan", "plan", plan.Kind.String(), "protocols", plan.Protocols.String(),
		"orientation", plan.Orientation.String())
	switch plan.Kind {
	case HardReset:
		return s.hardReset(logger, board, hw, plan)
	case SoftReconfigure:
		return s.softReconfigure(board, hw, plan)
	case PowerOff:
		return Result{}, s.powerOff(board, hw)
	}
	return Result{}, &StageError{Stage: StagePlan, Err: errors.Errorf("unknown plan kind %d", plan.Kind)}
}

// teardown is a stack of undo steps taken on failure, newest first.
type teardown []func() error

func (t *teardown) push(undo func() error) {
	*t = append(*t, undo)
}

func (t teardown) unwind() error {
	var err error
	for i := len(t) - 1; i >= 0; i-- {
		err = multierr.Combine(err, t[i]())
	}
	return err
}

func (s *Sequencer) hardReset(logger logging.Logger, board Board, hw Hardware, plan Plan) (res Result, err error) {
	fail := func(stage Stage, cause error) error {
		return &StageError{Stage: stage, Err: cause}
	}

	// Everything that can be rejected without touching hardware is resolved first.
	var order lanemap.Order
	var writes []regWrite
	if board.HasLanes {
		order, writes, err = s.program(board, plan)
		if err != nil {
			return Result{}, fail(StagePlan, err)
		}
	}

	var undo teardown
	defer func() {
		if err != nil {
			if undoErr := undo.unwind(); undoErr != nil {
				err = multierr.Combine(err, errors.Wrap(undoErr, "unwinding"))
			}
		}
	}()

	// 1. Quiesce the analog front end.
	regs := hw.Registers
	if err := phy.Update32(regs, phyreg.Control, phyreg.ControlIDDQ, phyreg.ControlIDDQ); err != nil {
		return Result{}, fail(StagePowerDown, err)
	}
	for i := len(phy.ResetLines) - 1; i >= 0; i-- {
		if err := hw.Resets.Assert(phy.ResetLines[i]); err != nil {
			return Result{}, fail(StagePowerDown, err)
		}
	}

	if err := s.shared.AcquireRefClock(board.ID); err != nil {
		return Result{}, fail(StageClocks, err)
	}
	undo.push(func() error { return s.shared.ReleaseRefClock(board.ID) })
	for _, name := range board.Clocks {
		if err := hw.Clocks.Enable(name); err != nil {
			return Result{}, fail(StageClocks, errors.Wrapf(err, "enabling clock %q", name))
		}
		undo.push(func() error { return hw.Clocks.Disable(name) })
	}

	// 2. Power the front end back up and release resets in fixed order.
	if err := phy.Update32(regs, phyreg.Control, phyreg.ControlIDDQ, 0); err != nil {
		return Result{}, fail(StageReset, err)
	}
	undo.push(func() error {
		return phy.Update32(regs, phyreg.Control, phyreg.ControlIDDQ, phyreg.ControlIDDQ)
	})
	for _, line := range phy.ResetLines {
		if err := hw.Resets.Deassert(line); err != nil {
			return Result{}, fail(StageReset, errors.Wrapf(err, "deasserting %s reset", line))
		}
		undo.push(func() error { return hw.Resets.Assert(line) })
		s.settle()
	}

	// 3. Connector direction.
	if board.TypeC {
		var flip uint32
		if plan.Orientation == phy.OrientationReverse {
			flip = phyreg.ControlTypeCFlip
		}
		if err := phy.Update32(regs, phyreg.Control, phyreg.ControlTypeCFlip, flip); err != nil {
			return Result{}, fail(StageLaneDirection, err)
		}
	}

	// 4. Readiness. Timeouts are tolerated; read failures are not.
	if err := s.pollBit(logger, regs, BitPMACommonReady, phyreg.StatusPMACommonReady,
		s.opts.FastPollIterations, &res); err != nil {
		return Result{}, fail(StagePollReady, err)
	}
	if plan.Protocols.Has(phy.DisplayPort) {
		if err := s.pollBit(logger, regs, BitLinkPowerAck, phyreg.StatusLinkPowerAck,
			s.opts.SlowPollIterations, &res); err != nil {
			return Result{}, fail(StagePollReady, err)
		}
	}

	// 5. Protocol registers.
	for _, w := range writes {
		if err := phy.Write32(regs, w.offset, w.value); err != nil {
			return Result{}, fail(StageProgram, err)
		}
	}
	if board.TypeC && board.HasLanes {
		typecOrder, err := lanemap.ComputeLaneOrder(plan.Orientation, board.TypeCRemap)
		if err != nil {
			return Result{}, fail(StageProgram, err)
		}
		if err := s.shared.WriteTypeCRemap(board.ID, typecOrder); err != nil {
			return Result{}, fail(StageProgram, err)
		}
	}

	// 6. Confirm.
	if err := s.pollBit(logger, regs, BitPMACommonReady, phyreg.StatusPMACommonReady,
		s.opts.FastPollIterations, &res); err != nil {
		return Result{}, fail(StageRepoll, err)
	}

	res.LaneOrder = order
	return res, nil
}

func (s *Sequencer) softReconfigure(board Board, hw Hardware, plan Plan) (Result, error) {
	if !board.HasLanes {
		return Result{}, &StageError{Stage: StagePlan, Err: errors.Wrapf(phy.ErrProtocolNotSupported,
			"%s has no lanes to reconfigure", board.ID)}
	}
	order, writes, err := s.program(board, plan)
	if err != nil {
		return Result{}, &StageError{Stage: StagePlan, Err: err}
	}
	for _, w := range writes {
		// Lane map and polarity only change with orientation, which always takes a hard reset.
		if w.offset == phyreg.LaneMap || w.offset == phyreg.LaneInvert {
			continue
		}
		if err := phy.Write32(hw.Registers, w.offset, w.value); err != nil {
			return Result{}, &StageError{Stage: StageSoftReconfigure, Err: err}
		}
	}
	return Result{LaneOrder: order}, nil
}

// powerOff is best effort: every step runs and the failures are combined.
func (s *Sequencer) powerOff(board Board, hw Hardware) error {
	err := phy.Update32(hw.Registers, phyreg.Control, phyreg.ControlIDDQ, phyreg.ControlIDDQ)
	for i := len(phy.ResetLines) - 1; i >= 0; i-- {
		err = multierr.Combine(err, hw.Resets.Assert(phy.ResetLines[i]))
	}
	for i := len(board.Clocks) - 1; i >= 0; i-- {
		err = multierr.Combine(err, hw.Clocks.Disable(board.Clocks[i]))
	}
	err = multierr.Combine(err, s.shared.ReleaseRefClock(board.ID))
	if err != nil {
		return &StageError{Stage: StagePowerOff, Err: err}
	}
	return nil
}

func (s *Sequencer) pollBit(
	logger logging.Logger,
	regs phy.RegisterPort,
	name string,
	bit uint32,
	maxIters int,
	res *Result,
) error {
	iters, err := PollWithBound(s.opts.Clock, statusBit(regs, phyreg.Status, bit), maxIters, s.opts.PollInterval)
	switch {
	case err == nil:
		logger.Debugw("ready", "bit", name, "iterations", iters)
		return nil
	case errors.Is(err, phy.ErrHardwareTimeout):
		logger.Warnw("readiness poll timed out, continuing", "bit", name, "iterations", iters)
		res.TimedOut = append(res.TimedOut, name)
		return nil
	default:
		return err
	}
}

func (s *Sequencer) settle() {
	if s.opts.SettleDelay > 0 {
		s.opts.Clock.Sleep(s.opts.SettleDelay)
	}
}
