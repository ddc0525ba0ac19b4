package sequencer

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy"
)

// PollWithBound calls ready until it reports true, at most maxIters times, sleeping interval
// between calls. It returns the number of calls made. Running out of iterations returns
// phy.ErrHardwareTimeout; an error from ready is returned at once.
func PollWithBound(clk clock.Clock, ready func() (bool, error), maxIters int, interval time.Duration) (int, error) {
	for i := 1; i <= maxIters; i++ {
		ok, err := ready()
		if err != nil {
			return i, err
		}
		if ok {
			return i, nil
		}
		if i < maxIters && interval > 0 {
			clk.Sleep(interval)
		}
	}
	return maxIters, errors.Wrapf(phy.ErrHardwareTimeout, "not ready after %d polls", maxIters)
}

// statusBit returns a readiness predicate over one bit of the status register.
func statusBit(regs phy.RegisterPort, offset, bit uint32) func() (bool, error) {
	return func() (bool, error) {
		v, err := phy.Read32(regs, offset)
		if err != nil {
			return false, err
		}
		return v&bit != 0, nil
	}
}
