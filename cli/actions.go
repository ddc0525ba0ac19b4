package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/combophy/config"
	"go.viam.com/combophy/logging"
	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/fake"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/linktrain"
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// newLogger returns the command's logger and a function closing its log file, if any.
func newLogger(c *cli.Context) (logging.Logger, func() error) {
	logger := logging.NewLogger("combophy")
	logger.SetLevel(logging.WARN)
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	if path := c.String(flagLogFile); path != "" {
		const maxSizeMB, maxBackups = 10, 3
		file := logging.NewFileAppender(path, maxSizeMB, maxBackups)
		logger.AddAppender(file)
		return logger, file.Close
	}
	return logger, func() error { return nil }
}

func readBoard(c *cli.Context) (*config.Board, error) {
	path := c.String(flagConfig)
	if path == "" {
		return nil, errors.New("no board configuration given; use --config")
	}
	return config.Read(path)
}

// ValidateConfigAction reads the board configuration and its calibration file and reports what
// the sequencer would be built with.
func ValidateConfigAction(c *cli.Context) error {
	board, err := readBoard(c)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", board)
	if board.CalibrationFile != "" {
		table, err := board.LinkTrainingTable()
		if err != nil {
			return err
		}
		printf(c.App.Writer, "calibration: %v", table.Rates())
	}
	opts := board.SequencerOptions()
	printf(c.App.Writer, "poll: interval=%s fast=%d slow=%d settle=%s",
		opts.PollInterval, opts.FastPollIterations, opts.SlowPollIterations, opts.SettleDelay)
	printf(c.App.Writer, "board configuration is valid")
	return nil
}

// SchemaAction prints the board configuration schema.
func SchemaAction(c *cli.Context) error {
	js, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", js)
	return nil
}

// LanesAction prints the lane order a remap produces under an orientation.
func LanesAction(c *cli.Context) error {
	orientation, err := phy.OrientationFromString(c.String(flagOrientation))
	if err != nil {
		return err
	}
	values := c.IntSlice(flagRemap)
	if len(values) != phy.MaxLanes {
		return errors.Errorf("--%s needs %d lanes, got %d", flagRemap, phy.MaxLanes, len(values))
	}
	var remap lanemap.Order
	for i, v := range values {
		if v < 0 || v >= phy.MaxLanes {
			return errors.Errorf("lane %d is out of range", v)
		}
		remap[i] = uint8(v)
	}
	if !lanemap.IsPermutation(remap) {
		return errors.Errorf("%v is not a permutation of the lanes", values)
	}
	order, err := lanemap.ComputeLaneOrder(orientation, remap)
	if err != nil {
		return err
	}
	for physical, logical := range order {
		printf(c.App.Writer, "physical lane %d: logical lane %d", physical, logical)
	}
	printf(c.App.Writer, "lane map register: 0x%02x", order.Pack())
	return nil
}

// LookupAction prints the drive level for one rate, swing and pre-emphasis.
func LookupAction(c *cli.Context) error {
	table, err := lookupTable(c)
	if err != nil {
		return err
	}
	rate, err := phy.LinkRateFromString(c.String(flagRate))
	if err != nil {
		return err
	}
	swing, pre := c.Uint(flagSwing), c.Uint(flagPreEmphasis)
	if swing > phy.MaxLevel || pre > phy.MaxLevel {
		return errors.Wrapf(phy.ErrInvalidVoltageLevel, "swing %d pre-emphasis %d", swing, pre)
	}
	level, err := table.Lookup(rate, uint8(swing), uint8(pre))
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s swing=%d pre-emphasis=%d: drive=0x%02x margin=0x%02x post_cursor=0x%02x (0x%06x)",
		rate, swing, pre, level.Drive, level.Margin, level.PostCursor, level.Pack())
	return nil
}

func lookupTable(c *cli.Context) (*linktrain.Table, error) {
	if path := c.String(flagCalibration); path != "" {
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = f.Close()
		}()
		return linktrain.Load(f)
	}
	if c.String(flagConfig) != "" {
		board, err := readBoard(c)
		if err != nil {
			return nil, err
		}
		return board.LinkTrainingTable()
	}
	return fake.LinkTrainingTable(), nil
}

// SimulateAction replays the event script named by the first argument.
func SimulateAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("simulate needs exactly one script file")
	}
	//nolint:gosec
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	script, err := ReadScript(f)
	if err != nil {
		return err
	}

	board := defaultBoard()
	if c.String(flagConfig) != "" {
		if board, err = readBoard(c); err != nil {
			return err
		}
	}

	logger, closeLog := newLogger(c)
	defer func() {
		_ = closeLog()
	}()
	var r *rig
	if c.Bool(flagHardware) {
		r, err = newHardwareRig(board, logger)
	} else {
		r, err = newFakeRig(board, logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := r.close(c.Context); err != nil {
			logger.Errorw("closing", "error", err)
		}
	}()
	return script.Run(r.subsystem, c.App.Writer)
}
