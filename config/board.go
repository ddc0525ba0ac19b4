// Package config defines the board configuration of a combo-PHY subsystem: which instances exist,
// their static lane wiring, where their hardware lives and how long readiness polls may run.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/sequencer"
)

// Board is a whole board configuration.
type Board struct {
	// ConfigFilePath is where the configuration was read from; relative paths resolve against it.
	ConfigFilePath string `json:"-"`

	Instances       []Instance    `json:"instances"`
	SharedRegisters *Window       `json:"shared_registers,omitempty"`
	CalibrationFile string        `json:"calibration_file,omitempty"`
	Poll            Poll          `json:"poll"`
	SettleDelay     time.Duration `json:"settle_delay,omitempty"`
}

// Instance is the static description of one PHY instance.
type Instance struct {
	ID string `json:"id"`

	// TypeC overrides whether the instance sits behind a Type-C receptacle. Defaults to true for
	// combo0 only.
	TypeC      *bool     `json:"typec,omitempty"`
	LaneRemap  []uint8   `json:"lane_remap,omitempty"`
	LaneInvert []bool    `json:"lane_invert,omitempty"`
	TypeCRemap []uint8   `json:"typec_remap,omitempty"`
	Clocks     []string  `json:"clocks,omitempty"`
	Hardware   *Hardware `json:"hardware,omitempty"`
}

// Hardware locates an instance's register block and the GPIO lines wired to it.
type Hardware struct {
	Registers Window `json:"registers"`

	// ResetGPIOs maps each reset line (phy, link, pma) to a GPIO name.
	ResetGPIOs map[string]string `json:"reset_gpios"`
	// ClockGPIOs maps each clock to the GPIO name of its gate.
	ClockGPIOs map[string]string `json:"clock_gpios,omitempty"`
	HPDGPIO    string            `json:"hpd_gpio,omitempty"`
}

// Window is a physical register window. Base may be written as a hex string.
type Window struct {
	Base uint64 `json:"base"`
	Size int    `json:"size"`
}

// Poll bounds the readiness polls. Zero values select the hardware defaults.
type Poll struct {
	Interval       time.Duration `json:"interval,omitempty"`
	FastIterations int           `json:"fast_iterations,omitempty"`
	SlowIterations int           `json:"slow_iterations,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (b *Board) Validate(path string) error {
	if len(b.Instances) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "instances")
	}
	for i, inst := range b.Instances {
		if err := inst.Validate(fmt.Sprintf("%s.instances.%d", path, i)); err != nil {
			return err
		}
	}
	ids := lo.Map(b.Instances, func(inst Instance, _ int) string { return strings.ToLower(inst.ID) })
	if dups := lo.FindDuplicates(ids); len(dups) != 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("instance %q configured more than once", dups[0]))
	}

	withHardware := lo.CountBy(b.Instances, func(inst Instance) bool { return inst.Hardware != nil })
	if withHardware != 0 && withHardware != len(b.Instances) {
		return utils.NewConfigValidationError(path, errors.New("either every instance or none has hardware"))
	}
	if withHardware != 0 && b.SharedRegisters == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "shared_registers")
	}
	if b.SharedRegisters != nil {
		if err := b.SharedRegisters.Validate(path + ".shared_registers"); err != nil {
			return err
		}
	}

	if b.Poll.Interval < 0 || b.SettleDelay < 0 {
		return utils.NewConfigValidationError(path, errors.New("durations must not be negative"))
	}
	if b.Poll.FastIterations < 0 || b.Poll.SlowIterations < 0 {
		return utils.NewConfigValidationError(path+".poll", errors.New("iteration counts must not be negative"))
	}
	return nil
}

// Validate ensures the instance is well formed.
func (inst *Instance) Validate(path string) error {
	if inst.ID == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "id")
	}
	id, err := phy.InstanceIDFromString(inst.ID)
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if id == phy.AuxHpd && (inst.LaneRemap != nil || inst.LaneInvert != nil || inst.TypeCRemap != nil) {
		return utils.NewConfigValidationError(path, errors.Errorf("%s has no lanes to map", id))
	}
	if inst.LaneRemap != nil {
		if _, err := toOrder(inst.LaneRemap); err != nil {
			return utils.NewConfigValidationError(path+".lane_remap", err)
		}
	}
	if inst.TypeCRemap != nil {
		if _, err := toOrder(inst.TypeCRemap); err != nil {
			return utils.NewConfigValidationError(path+".typec_remap", err)
		}
	}
	if inst.LaneInvert != nil && len(inst.LaneInvert) != phy.MaxLanes {
		return utils.NewConfigValidationError(path+".lane_invert",
			errors.Errorf("expected %d entries, got %d", phy.MaxLanes, len(inst.LaneInvert)))
	}
	if inst.Hardware != nil {
		return inst.Hardware.Validate(path+".hardware", inst.Clocks)
	}
	return nil
}

// Validate ensures the hardware section names every line the sequencer drives.
func (hw *Hardware) Validate(path string, clocks []string) error {
	if err := hw.Registers.Validate(path + ".registers"); err != nil {
		return err
	}
	if hw.ResetGPIOs == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "reset_gpios")
	}
	for _, line := range phy.ResetLines {
		if hw.ResetGPIOs[line.String()] == "" {
			return utils.NewConfigValidationFieldRequiredError(path+".reset_gpios", line.String())
		}
	}
	for _, clk := range clocks {
		if hw.ClockGPIOs[clk] == "" {
			return utils.NewConfigValidationFieldRequiredError(path+".clock_gpios", clk)
		}
	}
	return nil
}

// Validate ensures the window is word aligned and non-empty.
func (w *Window) Validate(path string) error {
	if w.Size <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "size")
	}
	if w.Base%4 != 0 || w.Size%4 != 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("window 0x%x+0x%x is not word aligned", w.Base, w.Size))
	}
	return nil
}

// SequencerBoard converts the instance to the sequencer's view of it. The instance must be valid.
func (inst *Instance) SequencerBoard() (sequencer.Board, error) {
	id, err := phy.InstanceIDFromString(inst.ID)
	if err != nil {
		return sequencer.Board{}, err
	}
	board := sequencer.Board{
		ID:         id,
		TypeC:      id == phy.Combo0,
		HasLanes:   id != phy.AuxHpd,
		LaneRemap:  lanemap.Identity,
		TypeCRemap: lanemap.Identity,
		Clocks:     append([]string(nil), inst.Clocks...),
	}
	if inst.TypeC != nil {
		board.TypeC = *inst.TypeC
	}
	if !board.HasLanes {
		board.LaneRemap = lanemap.Order{}
		board.TypeCRemap = lanemap.Order{}
	}
	if inst.LaneRemap != nil {
		if board.LaneRemap, err = toOrder(inst.LaneRemap); err != nil {
			return sequencer.Board{}, err
		}
	}
	if inst.TypeCRemap != nil {
		if board.TypeCRemap, err = toOrder(inst.TypeCRemap); err != nil {
			return sequencer.Board{}, err
		}
	}
	copy(board.LaneInvert[:], inst.LaneInvert)
	return board, nil
}

// String renders the instances as a table, with defaults filled in.
func (b *Board) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Type-C", "Lanes", "Remap", "Type-C Remap", "Invert", "Clocks", "Hardware"})
	for _, inst := range b.Instances {
		sb, err := inst.SequencerBoard()
		if err != nil {
			t.AppendRow(table.Row{inst.ID, err.Error()})
			continue
		}
		t.AppendRow(table.Row{
			sb.ID.String(),
			sb.TypeC,
			sb.HasLanes,
			fmt.Sprint(sb.LaneRemap),
			fmt.Sprint(sb.TypeCRemap),
			fmt.Sprint(sb.LaneInvert),
			strings.Join(sb.Clocks, ","),
			inst.Hardware != nil,
		})
	}
	return t.Render()
}

// SequencerOptions returns the poll and settle timing, with defaults for unset values.
func (b *Board) SequencerOptions() sequencer.Options {
	opts := sequencer.DefaultOptions()
	if b.Poll.Interval != 0 {
		opts.PollInterval = b.Poll.Interval
	}
	if b.Poll.FastIterations != 0 {
		opts.FastPollIterations = b.Poll.FastIterations
	}
	if b.Poll.SlowIterations != 0 {
		opts.SlowPollIterations = b.Poll.SlowIterations
	}
	if b.SettleDelay != 0 {
		opts.SettleDelay = b.SettleDelay
	}
	return opts
}

func toOrder(remap []uint8) (lanemap.Order, error) {
	var order lanemap.Order
	if len(remap) != phy.MaxLanes {
		return order, errors.Errorf("expected %d entries, got %d", phy.MaxLanes, len(remap))
	}
	copy(order[:], remap)
	if !lanemap.IsPermutation(order) {
		return order, errors.Errorf("%v is not a permutation of the lanes", remap)
	}
	return order, nil
}
