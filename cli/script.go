package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/arbiter"
)

// Event ops.
const (
	OpInit        = "init"
	OpExit        = "exit"
	OpSetMode     = "set-mode"
	OpConfigureDP = "configure-dp"
	OpValidate    = "validate"
)

// Event is one step of a script. Fields not used by the op must be left empty.
type Event struct {
	Op       string `json:"op"`
	Instance string `json:"instance"`

	Protocol    string             `json:"protocol,omitempty"`
	Orientation string             `json:"orientation,omitempty"`
	Altmode     string             `json:"altmode,omitempty"`
	HPD         bool               `json:"hpd,omitempty"`
	SSC         *bool              `json:"ssc,omitempty"`
	Lanes       *int               `json:"lanes,omitempty"`
	Rate        string             `json:"rate,omitempty"`
	Voltage     *phy.VoltageLevels `json:"voltage,omitempty"`

	// ExpectError, when set, is a substring the event's error must contain. An empty value
	// expects success.
	ExpectError string `json:"expect_error,omitempty"`
}

// Script is an ordered list of events replayed against one subsystem.
type Script struct {
	Events []Event `json:"events"`

	calls []func(*arbiter.Subsystem) error
}

// ReadScript decodes a JSON script and checks every event up front.
func ReadScript(r io.Reader) (*Script, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode script from json")
	}
	var script Script
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &script,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "failed to convert script")
	}
	for i, ev := range script.Events {
		call, err := ev.compile()
		if err != nil {
			return nil, errors.Wrapf(err, "event %d", i)
		}
		script.calls = append(script.calls, call)
	}
	return &script, nil
}

// Run replays the script, printing each outcome and the instance state after it. Events keep
// running after a failure; the returned error lists every event whose outcome did not match its
// expectation.
func (s *Script) Run(sub *arbiter.Subsystem, w io.Writer) error {
	var mismatches error
	for i, ev := range s.Events {
		err := s.calls[i](sub)
		outcome := "ok"
		if err != nil {
			outcome = err.Error()
		}
		printf(w, "%d: %s -> %s", i, ev, outcome)

		id, idErr := phy.InstanceIDFromString(ev.Instance)
		if idErr == nil {
			if st, stErr := sub.State(id); stErr == nil {
				printf(w, "   %s", st)
			}
		}

		switch {
		case ev.ExpectError == "" && err != nil:
			mismatches = multierr.Append(mismatches, errors.Errorf("event %d (%s): unexpected error: %v", i, ev, err))
		case ev.ExpectError != "" && err == nil:
			mismatches = multierr.Append(mismatches, errors.Errorf("event %d (%s): expected error %q", i, ev, ev.ExpectError))
		case ev.ExpectError != "" && !strings.Contains(err.Error(), ev.ExpectError):
			mismatches = multierr.Append(mismatches,
				errors.Errorf("event %d (%s): expected error %q, got %v", i, ev, ev.ExpectError, err))
		}
	}
	return mismatches
}

func (e Event) String() string {
	parts := []string{e.Op, e.Instance}
	switch e.Op {
	case OpInit, OpExit, OpValidate:
		parts = append(parts, e.Protocol)
	case OpSetMode:
		parts = append(parts, e.Orientation, e.Altmode, fmt.Sprintf("hpd=%t", e.HPD))
	}
	if e.SSC != nil {
		parts = append(parts, fmt.Sprintf("ssc=%t", *e.SSC))
	}
	if e.Lanes != nil {
		parts = append(parts, fmt.Sprintf("lanes=%d", *e.Lanes))
	}
	if e.Rate != "" {
		parts = append(parts, "rate="+e.Rate)
	}
	if e.Voltage != nil {
		parts = append(parts, fmt.Sprintf("swing=%v pre=%v", e.Voltage.Swing, e.Voltage.PreEmphasis))
	}
	return strings.Join(parts, " ")
}

// compile parses the event's names once so that a malformed script fails before touching any PHY.
func (e Event) compile() (func(*arbiter.Subsystem) error, error) {
	id, err := phy.InstanceIDFromString(e.Instance)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case OpInit, OpExit:
		protocol, err := phy.ProtocolFromString(e.Protocol)
		if err != nil {
			return nil, err
		}
		if e.Op == OpInit {
			return func(sub *arbiter.Subsystem) error { return sub.Init(id, protocol) }, nil
		}
		return func(sub *arbiter.Subsystem) error { return sub.Exit(id, protocol) }, nil

	case OpSetMode:
		orientation, err := phy.OrientationFromString(e.Orientation)
		if err != nil {
			return nil, err
		}
		altmode, err := phy.AltmodeStateFromString(e.Altmode)
		if err != nil {
			return nil, err
		}
		hpd := e.HPD
		return func(sub *arbiter.Subsystem) error { return sub.SetMode(id, orientation, altmode, hpd) }, nil

	case OpConfigureDP:
		cfg := arbiter.DisplayPortConfig{SSC: e.SSC, Lanes: e.Lanes, Voltage: e.Voltage}
		if e.Rate != "" {
			rate, err := phy.LinkRateFromString(e.Rate)
			if err != nil {
				return nil, err
			}
			cfg.Rate = &rate
		}
		return func(sub *arbiter.Subsystem) error { return sub.ConfigureDisplayPort(id, cfg) }, nil

	case OpValidate:
		protocol, err := phy.ProtocolFromString(e.Protocol)
		if err != nil {
			return nil, err
		}
		req := arbiter.Request{Protocol: protocol, Voltage: e.Voltage}
		if e.Lanes != nil {
			req.LaneCount = *e.Lanes
		}
		if e.Rate != "" {
			if req.LinkRate, err = phy.LinkRateFromString(e.Rate); err != nil {
				return nil, err
			}
		}
		return func(sub *arbiter.Subsystem) error { return sub.Validate(id, req) }, nil
	}
	return nil, errors.Errorf("unknown op %q", e.Op)
}
