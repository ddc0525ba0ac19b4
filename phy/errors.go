package phy

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidOrientation is returned when an operation needs a resolved Type-C orientation.
	ErrInvalidOrientation = errors.New("invalid orientation")
	// ErrBusy is returned when a requested ownership conflicts with the current owner.
	ErrBusy = errors.New("phy busy")
	// ErrLaneCountExceedsCombinedLimit is returned for more than two DisplayPort lanes while USB3
	// shares the PHY.
	ErrLaneCountExceedsCombinedLimit = errors.New("lane count exceeds combined USB+DP limit")
	// ErrRateUnsupportedInCombinedMode is returned for RBR while USB3 shares the PHY.
	ErrRateUnsupportedInCombinedMode = errors.New("link rate unsupported in combined USB+DP mode")
	// ErrUnsupportedRate is returned for link rates with no link-training calibration.
	ErrUnsupportedRate = errors.New("unsupported link rate")
	// ErrHardwareTimeout is returned by bounded polls that ran out of iterations.
	ErrHardwareTimeout = errors.New("hardware readiness timeout")
	// ErrRegisterPortFailure is matched by every error coming from the register I/O layer.
	ErrRegisterPortFailure = errors.New("register port failure")

	// ErrProtocolNotSupported is returned for a protocol the instance's hardware cannot carry.
	ErrProtocolNotSupported = errors.New("protocol not supported by instance")
	// ErrNotOwned is returned when an operation names a protocol that does not own the PHY.
	ErrNotOwned = errors.New("protocol does not own the phy")
	// ErrInvalidLaneCount is returned for lane counts other than 1, 2 or 4.
	ErrInvalidLaneCount = errors.New("invalid lane count")
	// ErrInvalidVoltageLevel is returned for swing or pre-emphasis levels above MaxLevel.
	ErrInvalidVoltageLevel = errors.New("invalid voltage level")
	// ErrUnknownInstance is returned for instance ids the subsystem was not built with.
	ErrUnknownInstance = errors.New("unknown phy instance")
)

// IsRejection reports whether err is a caller-driven rejection (validation or arbitration) as
// opposed to a hardware failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidOrientation,
		ErrBusy,
		ErrLaneCountExceedsCombinedLimit,
		ErrRateUnsupportedInCombinedMode,
		ErrUnsupportedRate,
		ErrProtocolNotSupported,
		ErrNotOwned,
		ErrInvalidLaneCount,
		ErrInvalidVoltageLevel,
		ErrUnknownInstance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RegisterError is a failed access through a RegisterPort.
type RegisterError struct {
	Write  bool
	Offset uint32
	Err    error
}

func (e *RegisterError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("register %s at 0x%04x: %v", op, e.Offset, e.Err)
}

// Unwrap returns the port's own error.
func (e *RegisterError) Unwrap() error {
	return e.Err
}

// Is makes every RegisterError match ErrRegisterPortFailure.
func (e *RegisterError) Is(target error) bool {
	return target == ErrRegisterPortFailure
}
