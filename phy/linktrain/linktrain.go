// Package linktrain holds the DisplayPort link-training calibration: for each populated link rate a
// 4x4 table, indexed by voltage swing and pre-emphasis level, of transmitter drive settings.
//
// The values are vendor calibration data. They are supplied at construction and never computed;
// a Table is immutable afterwards and safe for concurrent readers.
package linktrain

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
)

// Levels is the number of discrete swing (and pre-emphasis) levels.
const Levels = phy.MaxLevel + 1

// DriveLevel is one transmitter setting.
type DriveLevel struct {
	Drive      uint8 `json:"drive"`
	Margin     uint8 `json:"margin"`
	PostCursor uint8 `json:"post_cursor"`
}

// Pack encodes the setting as drive | margin<<8 | postCursor<<16.
func (d DriveLevel) Pack() uint32 {
	return uint32(d.Drive) | uint32(d.Margin)<<8 | uint32(d.PostCursor)<<16
}

// Grid is the per-rate table, indexed [swing][preEmphasis].
type Grid [Levels][Levels]DriveLevel

// Table is an immutable set of per-rate grids.
type Table struct {
	grids map[phy.LinkRate]Grid
}

// NewTable copies grids into a Table. HBR3 must stay unpopulated on this hardware generation.
func NewTable(grids map[phy.LinkRate]Grid) (*Table, error) {
	t := &Table{grids: make(map[phy.LinkRate]Grid, len(grids))}
	for rate, grid := range grids {
		switch rate {
		case phy.Rate1620, phy.Rate2700, phy.Rate5400:
			t.grids[rate] = grid
		case phy.Rate8100:
			return nil, errors.Wrap(phy.ErrUnsupportedRate, "8.1G calibration is not supported on this hardware")
		default:
			return nil, errors.Wrapf(phy.ErrUnsupportedRate, "cannot populate %s", rate)
		}
	}
	return t, nil
}

// Lookup returns the drive setting for a rate, swing and pre-emphasis level.
func (t *Table) Lookup(rate phy.LinkRate, swing, preEmphasis uint8) (DriveLevel, error) {
	if swing > phy.MaxLevel || preEmphasis > phy.MaxLevel {
		return DriveLevel{}, errors.Wrapf(phy.ErrInvalidVoltageLevel, "swing %d pre-emphasis %d", swing, preEmphasis)
	}
	grid, ok := t.grids[rate]
	if !ok {
		return DriveLevel{}, errors.Wrapf(phy.ErrUnsupportedRate, "no link-training table for %s", rate)
	}
	return grid[swing][preEmphasis], nil
}

// Rates returns the populated rates in ascending order.
func (t *Table) Rates() []phy.LinkRate {
	rates := make([]phy.LinkRate, 0, len(t.grids))
	for rate := range t.grids {
		rates = append(rates, rate)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	return rates
}

// Load reads a calibration file: a JSON object keyed by per-lane rate in Mb/s, each value a 4x4
// array of drive settings indexed [swing][pre_emphasis].
func Load(r io.Reader) (*Table, error) {
	var raw map[string]Grid
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding link-training calibration")
	}
	grids := make(map[phy.LinkRate]Grid, len(raw))
	for key, grid := range raw {
		mbps, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "calibration key %q is not a rate in Mb/s", key)
		}
		rate, err := phy.LinkRateFromMbps(mbps)
		if err != nil {
			return nil, err
		}
		grids[rate] = grid
	}
	return NewTable(grids)
}
