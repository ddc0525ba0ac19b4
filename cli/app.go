// Package cli implements the combophy command line: board configuration checks, lane order and
// drive level inspection, and replay of event scripts against simulated or real combo-PHYs.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig      = "config"
	flagDebug       = "debug"
	flagLogFile     = "log-file"
	flagOrientation = "orientation"
	flagRemap       = "remap"
	flagCalibration = "calibration"
	flagRate        = "rate"
	flagSwing       = "swing"
	flagPreEmphasis = "pre-emphasis"
	flagHardware    = "hardware"
)

var app = &cli.App{
	Name:            "combophy",
	Usage:           "inspect and exercise combo-PHY mode arbitration",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load board configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagLogFile,
			Usage: "also write logs to `FILE`, rotated at 10MB",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "validate-config",
			Usage:  "check a board configuration and its calibration file",
			Action: ValidateConfigAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of a board configuration",
			Action: SchemaAction,
		},
		{
			Name:  "lanes",
			Usage: "compute the physical to logical lane order for an orientation",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagOrientation,
					Value: "normal",
					Usage: "plug orientation (normal or reverse)",
				},
				&cli.IntSliceFlag{
					Name:  flagRemap,
					Value: cli.NewIntSlice(0, 1, 2, 3),
					Usage: "board lane remap, one logical lane per physical lane",
				},
			},
			Action: LanesAction,
		},
		{
			Name:  "lookup",
			Usage: "look up the link-training drive level for a rate and voltage level",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagCalibration,
					Usage: "calibration `FILE`; defaults to the board's, then to the simulated table",
				},
				&cli.StringFlag{
					Name:     flagRate,
					Required: true,
					Usage:    "link rate, e.g. 2.7G or 2700",
				},
				&cli.UintFlag{
					Name:  flagSwing,
					Usage: "voltage swing level (0-3)",
				},
				&cli.UintFlag{
					Name:  flagPreEmphasis,
					Usage: "pre-emphasis level (0-3)",
				},
			},
			Action: LookupAction,
		},
		{
			Name:      "simulate",
			Usage:     "replay an event script and print the state after every event",
			ArgsUsage: "<script.json>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  flagHardware,
					Usage: "drive the board's real registers and GPIOs instead of simulated PHYs",
				},
			},
			Action: SimulateAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
