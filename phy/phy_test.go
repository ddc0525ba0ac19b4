package phy

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"periph.io/x/conn/v3/physic"
)

func TestProtocolSet(t *testing.T) {
	var s ProtocolSet
	test.That(t, s.IsEmpty(), test.ShouldBeTrue)
	test.That(t, s.String(), test.ShouldEqual, "{}")

	s = s.With(DisplayPort).With(USB3)
	test.That(t, s.Has(USB3), test.ShouldBeTrue)
	test.That(t, s.Has(DisplayPort), test.ShouldBeTrue)
	test.That(t, s.Has(PCIe), test.ShouldBeFalse)
	test.That(t, s.Len(), test.ShouldEqual, 2)
	test.That(t, s.Protocols(), test.ShouldResemble, []Protocol{USB3, DisplayPort})
	test.That(t, s.String(), test.ShouldEqual, "{usb3,displayport}")
	test.That(t, s, test.ShouldEqual, NewProtocolSet(USB3, DisplayPort))

	s = s.Without(USB3)
	test.That(t, s, test.ShouldEqual, NewProtocolSet(DisplayPort))
	test.That(t, s.Without(DisplayPort).IsEmpty(), test.ShouldBeTrue)
}

func TestParsing(t *testing.T) {
	t.Run("instances", func(t *testing.T) {
		for _, id := range InstanceIDs {
			parsed, err := InstanceIDFromString(id.String())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, parsed, test.ShouldEqual, id)
		}
		_, err := InstanceIDFromString("combo7")
		test.That(t, errors.Is(err, ErrUnknownInstance), test.ShouldBeTrue)
	})

	t.Run("protocols", func(t *testing.T) {
		p, err := ProtocolFromString("dp")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p, test.ShouldEqual, DisplayPort)
		_, err = ProtocolFromString("sata")
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("altmode", func(t *testing.T) {
		a, err := AltmodeStateFromString("DP_D")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, a, test.ShouldEqual, AltmodeDPStateD)
		test.That(t, a.Combined(), test.ShouldBeTrue)
		test.That(t, AltmodeDPStateC.Combined(), test.ShouldBeFalse)
		test.That(t, AltmodeDPStateE.DisplayPort(), test.ShouldBeTrue)
		test.That(t, AltmodeUSBOnly.DisplayPort(), test.ShouldBeFalse)
	})

	t.Run("rates", func(t *testing.T) {
		r, err := LinkRateFromString("5.4G")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r, test.ShouldEqual, Rate5400)

		r, err = LinkRateFromString("1620")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r, test.ShouldEqual, Rate1620)

		r, err = LinkRateFromMbps(8100)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r, test.ShouldEqual, Rate8100)

		_, err = LinkRateFromMbps(10000)
		test.That(t, errors.Is(err, ErrUnsupportedRate), test.ShouldBeTrue)

		test.That(t, Rate2700.Frequency(), test.ShouldEqual, 2700*physic.MegaHertz)
		test.That(t, RateUnset.Valid(), test.ShouldBeFalse)
	})
}

func TestRegisterError(t *testing.T) {
	cause := errors.New("device removed")
	var err error = &RegisterError{Write: true, Offset: 0x40, Err: cause}
	wrapped := errors.Wrap(err, "programming lanes")

	test.That(t, errors.Is(wrapped, ErrRegisterPortFailure), test.ShouldBeTrue)
	test.That(t, errors.Is(wrapped, cause), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "register write at 0x0040: device removed")
	test.That(t, IsRejection(wrapped), test.ShouldBeFalse)
	test.That(t, IsRejection(errors.Wrap(ErrBusy, "combo1")), test.ShouldBeTrue)
}

func TestVoltageLevelsInRange(t *testing.T) {
	var v VoltageLevels
	test.That(t, v.InRange(), test.ShouldBeTrue)
	v.Swing[3] = MaxLevel
	v.PreEmphasis[0] = MaxLevel
	test.That(t, v.InRange(), test.ShouldBeTrue)
	v.PreEmphasis[2] = MaxLevel + 1
	test.That(t, v.InRange(), test.ShouldBeFalse)
}
