package sequencer

import (
	"fmt"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
)

// PlanKind selects the sequence Apply runs.
type PlanKind int

const (
	// HardReset power-cycles the PHY: quiesce, reinitialize, reprogram.
	HardReset PlanKind = iota
	// SoftReconfigure rewrites rate, lane-enable and drive registers only; no reset line is touched.
	SoftReconfigure
	// PowerOff quiesces the PHY and releases its clocks.
	PowerOff
)

func (k PlanKind) String() string {
	switch k {
	case HardReset:
		return "hard_reset"
	case SoftReconfigure:
		return "soft_reconfigure"
	case PowerOff:
		return "power_off"
	}
	return fmt.Sprintf("plan(%d)", int(k))
}

// Plan is the target layout of one instance.
type Plan struct {
	Kind        PlanKind
	Protocols   phy.ProtocolSet
	Orientation phy.Orientation
	// DisplayPort parameters; ignored unless Protocols has DisplayPort.
	Rate    phy.LinkRate
	Lanes   int
	Voltage phy.VoltageLevels
	SSC     bool
}

// Board is the static, construction-time description of one instance.
type Board struct {
	ID         phy.InstanceID
	TypeC      bool
	HasLanes   bool
	LaneRemap  lanemap.Order
	LaneInvert [phy.MaxLanes]bool
	TypeCRemap lanemap.Order
	Clocks     []string
}

// Hardware bundles the ports of one instance.
type Hardware struct {
	Registers phy.RegisterPort
	Clocks    phy.ClockPort
	Resets    phy.ResetPort
}

// Result reports what a successful Apply programmed.
type Result struct {
	LaneOrder lanemap.Order
	// TimedOut names the readiness bits whose bounded polls ran out. The sequence continued.
	TimedOut []string
}

// Stage names a step of a sequence.
type Stage int

// Stages, in the order a hard reset runs them.
const (
	StagePlan Stage = iota
	StagePowerDown
	StageClocks
	StageReset
	StageLaneDirection
	StagePollReady
	StageProgram
	StageRepoll
	StageSoftReconfigure
	StagePowerOff
)

func (s Stage) String() string {
	switch s {
	case StagePlan:
		return "plan"
	case StagePowerDown:
		return "power_down"
	case StageClocks:
		return "clocks"
	case StageReset:
		return "reset"
	case StageLaneDirection:
		return "lane_direction"
	case StagePollReady:
		return "poll_ready"
	case StageProgram:
		return "program"
	case StageRepoll:
		return "repoll"
	case StageSoftReconfigure:
		return "soft_reconfigure"
	case StagePowerOff:
		return "power_off"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError is a sequence that failed at Stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the reason for the failure.
func (e *StageError) Unwrap() error {
	return e.Err
}
