package fake

import (
	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/linktrain"
)

// LinkTrainingTable returns a table with a distinct, predictable entry for every populated rate,
// swing and pre-emphasis: drive = rate<<4 | swing<<2 | pre, margin = swing, post-cursor = pre.
func LinkTrainingTable() *linktrain.Table {
	grids := map[phy.LinkRate]linktrain.Grid{}
	for _, rate := range []phy.LinkRate{phy.Rate1620, phy.Rate2700, phy.Rate5400} {
		var grid linktrain.Grid
		for swing := range grid {
			for pre := range grid[swing] {
				grid[swing][pre] = linktrain.DriveLevel{
					Drive:      uint8(rate)<<4 | uint8(swing)<<2 | uint8(pre),
					Margin:     uint8(swing),
					PostCursor: uint8(pre),
				}
			}
		}
		grids[rate] = grid
	}
	table, err := linktrain.NewTable(grids)
	if err != nil {
		panic(err)
	}
	return table
}
