package sequencer

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultPollInterval is the spacing between readiness reads.
	DefaultPollInterval = 5 * time.Microsecond
	// DefaultFastPollIterations bounds the PMA common-ready poll.
	DefaultFastPollIterations = 1000
	// DefaultSlowPollIterations bounds the DisplayPort link power-state ack poll.
	DefaultSlowPollIterations = 100000
	// DefaultSettleDelay separates consecutive reset deasserts.
	DefaultSettleDelay = 10 * time.Microsecond
)

// Options tune the timing of every sequence.
type Options struct {
	PollInterval       time.Duration
	FastPollIterations int
	SlowPollIterations int
	SettleDelay        time.Duration
	Clock              clock.Clock
}

// DefaultOptions returns the hardware-documented bounds and the wall clock.
func DefaultOptions() Options {
	return Options{
		PollInterval:       DefaultPollInterval,
		FastPollIterations: DefaultFastPollIterations,
		SlowPollIterations: DefaultSlowPollIterations,
		SettleDelay:        DefaultSettleDelay,
		Clock:              clock.New(),
	}
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.FastPollIterations <= 0 {
		o.FastPollIterations = DefaultFastPollIterations
	}
	if o.SlowPollIterations <= 0 {
		o.SlowPollIterations = DefaultSlowPollIterations
	}
	return o
}
