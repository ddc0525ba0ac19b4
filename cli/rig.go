package cli

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/combophy/config"
	"go.viam.com/combophy/logging"
	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/arbiter"
	"go.viam.com/combophy/phy/fake"
	"go.viam.com/combophy/phy/linktrain"
	"go.viam.com/combophy/phy/periphport"
	"go.viam.com/combophy/phy/sequencer"
)

// rig is a subsystem together with the ports it owns.
type rig struct {
	subsystem *arbiter.Subsystem
	closers   []io.Closer
}

func (r *rig) close(ctx context.Context) error {
	err := r.subsystem.Close(ctx)
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Combine(err, r.closers[i].Close())
	}
	return err
}

// defaultBoard describes the reference board: combo0 behind the Type-C receptacle, combo1 wired
// straight and the AUX/HPD block.
func defaultBoard() *config.Board {
	return &config.Board{
		Instances: []config.Instance{
			{ID: phy.Combo0.String(), Clocks: []string{"ref", "pipe"}},
			{ID: phy.Combo1.String(), Clocks: []string{"ref"}},
			{ID: phy.AuxHpd.String(), Clocks: []string{"aux"}},
		},
	}
}

func tableFor(board *config.Board) (*linktrain.Table, error) {
	if board.CalibrationFile == "" {
		return fake.LinkTrainingTable(), nil
	}
	return board.LinkTrainingTable()
}

func newFakeRig(board *config.Board, logger logging.Logger) (*rig, error) {
	table, err := tableFor(board)
	if err != nil {
		return nil, err
	}
	cfg := arbiter.Config{
		Shared:   fake.NewPage(),
		Table:    table,
		Options:  board.SequencerOptions(),
		Notifier: &fake.Notifier{},
	}
	for _, inst := range board.Instances {
		sb, err := inst.SequencerBoard()
		if err != nil {
			return nil, err
		}
		p := fake.NewPHY()
		cfg.Instances = append(cfg.Instances, arbiter.InstanceConfig{
			Board:    sb,
			Hardware: sequencer.Hardware{Registers: p, Clocks: p, Resets: p},
		})
	}
	sub, err := arbiter.NewSubsystem(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &rig{subsystem: sub}, nil
}

func newHardwareRig(board *config.Board, logger logging.Logger) (_ *rig, err error) {
	if board.SharedRegisters == nil {
		return nil, errors.New("board configuration has no hardware description")
	}
	table, err := tableFor(board)
	if err != nil {
		return nil, err
	}
	if err := periphport.Init(); err != nil {
		return nil, err
	}

	r := &rig{}
	defer func() {
		if err != nil {
			for i := len(r.closers) - 1; i >= 0; i-- {
				err = multierr.Combine(err, r.closers[i].Close())
			}
		}
	}()

	shared, err := periphport.OpenMMIO(board.SharedRegisters.Base, board.SharedRegisters.Size)
	if err != nil {
		return nil, errors.Wrap(err, "shared registers")
	}
	r.closers = append(r.closers, shared)

	cfg := arbiter.Config{
		Shared:  shared,
		Table:   table,
		Options: board.SequencerOptions(),
	}
	hpd := map[phy.InstanceID]string{}
	for _, inst := range board.Instances {
		sb, err := inst.SequencerBoard()
		if err != nil {
			return nil, err
		}
		hw := inst.Hardware
		regs, err := periphport.OpenMMIO(hw.Registers.Base, hw.Registers.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "%s registers", sb.ID)
		}
		r.closers = append(r.closers, regs)

		resetNames := map[phy.ResetLine]string{}
		for _, line := range phy.ResetLines {
			resetNames[line] = hw.ResetGPIOs[line.String()]
		}
		resets, err := periphport.NewResets(resetNames)
		if err != nil {
			return nil, errors.Wrapf(err, "%s resets", sb.ID)
		}
		clocks, err := periphport.NewClocks(hw.ClockGPIOs)
		if err != nil {
			return nil, errors.Wrapf(err, "%s clocks", sb.ID)
		}
		if hw.HPDGPIO != "" {
			hpd[sb.ID] = hw.HPDGPIO
		}
		cfg.Instances = append(cfg.Instances, arbiter.InstanceConfig{
			Board:    sb,
			Hardware: sequencer.Hardware{Registers: regs, Clocks: clocks, Resets: resets},
		})
	}
	notifier, err := periphport.NewNotifier(hpd, logger.Sublogger("notify"))
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, notifier)
	cfg.Notifier = notifier

	if r.subsystem, err = arbiter.NewSubsystem(cfg, logger); err != nil {
		return nil, err
	}
	return r, nil
}
