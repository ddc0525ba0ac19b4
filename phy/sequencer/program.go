package sequencer

import (
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/phyreg"
)

type regWrite struct {
	offset uint32
	value  uint32
}

// program computes the protocol register set for plan: lane map, polarity, lane modes and, when
// DisplayPort is present, rate, SSC and per-lane drive levels.
func (s *Sequencer) program(board Board, plan Plan) (lanemap.Order, []regWrite, error) {
	order, err := lanemap.ComputeLaneOrder(plan.Orientation, board.LaneRemap)
	if err != nil {
		return order, nil, err
	}
	invert, err := lanemap.Reorder(plan.Orientation, board.LaneInvert)
	if err != nil {
		return order, nil, err
	}

	writes := []regWrite{
		{phyreg.LaneMap, order.Pack()},
		{phyreg.LaneInvert, lanemap.PackFlags(invert)},
		{phyreg.LaneMode, laneModes(order, plan)},
	}
	if !plan.Protocols.Has(phy.DisplayPort) {
		return order, writes, nil
	}

	var ssc uint32
	if plan.SSC {
		ssc = phyreg.SSCEnable
	}
	writes = append(writes,
		regWrite{phyreg.LinkRate, uint32(plan.Rate)},
		regWrite{phyreg.SSC, ssc},
	)
	for logical := 0; logical < plan.Lanes; logical++ {
		physical, ok := order.PhysicalLane(uint8(logical))
		if !ok {
			return order, nil, errors.Errorf("logical lane %d is not mapped", logical)
		}
		level, err := s.table.Lookup(plan.Rate, plan.Voltage.Swing[logical], plan.Voltage.PreEmphasis[logical])
		if err != nil {
			return order, nil, err
		}
		writes = append(writes, regWrite{phyreg.TxDrive(physical), level.Pack()})
	}
	return order, writes, nil
}

// laneModes assigns a protocol to each physical lane. DisplayPort takes logical lanes from 0 up,
// USB3 takes logical lanes 2 and 3, PCIe logical lanes 0 and 1.
func laneModes(order lanemap.Order, plan Plan) uint32 {
	var v uint32
	for physical, logical := range order {
		mode := phyreg.LaneOff
		switch {
		case plan.Protocols.Has(phy.DisplayPort) && int(logical) < plan.Lanes:
			mode = phyreg.LaneDP
		case plan.Protocols.Has(phy.USB3) && logical >= 2:
			mode = phyreg.LaneUSB3
		case plan.Protocols.Has(phy.PCIe) && logical < 2:
			mode = phyreg.LanePCIe
		}
		v |= mode << (2 * physical)
	}
	return v
}
