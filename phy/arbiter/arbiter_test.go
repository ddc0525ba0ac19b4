package arbiter

import (
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/lanemap"
	"go.viam.com/combophy/phy/sequencer"
)

var (
	combo0 = Arbiter{Caps: CapabilitiesOf(phy.Combo0), TypeC: true, HasLanes: true}
	combo1 = Arbiter{Caps: CapabilitiesOf(phy.Combo1), HasLanes: true}
	auxHpd = Arbiter{Caps: CapabilitiesOf(phy.AuxHpd)}
)

func ptr[T any](v T) *T {
	return &v
}

func usbOwned(orientation phy.Orientation) State {
	st := InitialState(phy.Combo0, true)
	st.Owned = phy.NewProtocolSet(phy.USB3)
	st.Orientation = orientation
	st.Altmode = phy.AltmodeUSBOnly
	return st
}

func combinedState() State {
	st := usbOwned(phy.OrientationNormal)
	st.Owned = phy.NewProtocolSet(phy.USB3, phy.DisplayPort)
	st.Altmode = phy.AltmodeDPStateD
	st.Combined = true
	st.Rate = phy.Rate2700
	st.Lanes = 2
	return st
}

func TestValidate(t *testing.T) {
	combined := combinedState()
	plain := InitialState(phy.Combo0, true)
	bad := phy.VoltageLevels{Swing: [phy.MaxLanes]uint8{0, 4, 0, 0}}

	for _, tc := range []struct {
		name     string
		st       State
		caps     Capabilities
		req      Request
		expected error
	}{
		{"combined lane limit", combined, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LaneCount: 4}, phy.ErrLaneCountExceedsCombinedLimit},
		{"lane limit checked before rate", combined, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LaneCount: 4, LinkRate: phy.Rate8100}, phy.ErrLaneCountExceedsCombinedLimit},
		{"hbr3", plain, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LinkRate: phy.Rate8100}, phy.ErrUnsupportedRate},
		{"hbr3 checked before combined rate", combined, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LinkRate: phy.Rate8100}, phy.ErrUnsupportedRate},
		{"hbr3 on an instance without dp", InitialState(phy.Combo1, false), combo1.Caps,
			Request{Protocol: phy.DisplayPort, LinkRate: phy.Rate8100}, phy.ErrUnsupportedRate},
		{"rbr while combined", combined, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LinkRate: phy.Rate1620}, phy.ErrRateUnsupportedInCombinedMode},
		{"rbr alone", plain, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LinkRate: phy.Rate1620}, nil},
		{"four lanes alone", plain, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LaneCount: 4, LinkRate: phy.Rate5400}, nil},
		{"two lanes combined", combined, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LaneCount: 2, LinkRate: phy.Rate5400}, nil},
		{"dp on combo1", InitialState(phy.Combo1, false), combo1.Caps,
			Request{Protocol: phy.DisplayPort, LinkRate: phy.Rate2700}, phy.ErrProtocolNotSupported},
		{"pcie on combo0", plain, combo0.Caps, Request{Protocol: phy.PCIe}, phy.ErrProtocolNotSupported},
		{"three lanes", plain, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LaneCount: 3}, phy.ErrInvalidLaneCount},
		{"voltage out of range", plain, combo0.Caps,
			Request{Protocol: phy.DisplayPort, Voltage: &bad}, phy.ErrInvalidVoltageLevel},
		{"usb3", plain, combo0.Caps, Request{Protocol: phy.USB3, LaneCount: 4}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.st, tc.caps, tc.req)
			if tc.expected == nil {
				test.That(t, err, test.ShouldBeNil)
				return
			}
			test.That(t, err, test.ShouldWrap, tc.expected)
			test.That(t, phy.IsRejection(err), test.ShouldBeTrue)
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	st := combinedState()
	before := st
	req := Request{Protocol: phy.DisplayPort, LaneCount: 4, LinkRate: phy.Rate5400}

	first := Validate(st, combo0.Caps, req)
	second := Validate(st, combo0.Caps, req)
	test.That(t, first, test.ShouldNotBeNil)
	test.That(t, second.Error(), test.ShouldEqual, first.Error())
	test.That(t, st, test.ShouldResemble, before)
}

func TestInit(t *testing.T) {
	t.Run("idle to usb", func(t *testing.T) {
		tr, err := combo0.Init(InitialState(phy.Combo0, true), phy.USB3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, UsbOwned)
		test.That(t, tr.Plan, test.ShouldNotBeNil)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
		test.That(t, tr.Plan.Protocols, test.ShouldEqual, phy.NewProtocolSet(phy.USB3))
		// Lanes come up in normal order before the first Type-C event.
		test.That(t, tr.Plan.Orientation, test.ShouldEqual, phy.OrientationNormal)
		test.That(t, tr.Next.Orientation, test.ShouldEqual, phy.OrientationUnknown)
	})

	t.Run("idle to dp", func(t *testing.T) {
		st := InitialState(phy.Combo0, true)
		st.Orientation = phy.OrientationReverse
		tr, err := combo0.Init(st, phy.DisplayPort)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, DpOwned)
		test.That(t, tr.Next.Rate, test.ShouldEqual, DefaultRate)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, DefaultLanes)
		test.That(t, tr.Plan.Orientation, test.ShouldEqual, phy.OrientationReverse)
	})

	t.Run("aux dp has no link state", func(t *testing.T) {
		tr, err := auxHpd.Init(InitialState(phy.AuxHpd, false), phy.DisplayPort)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Owned, test.ShouldEqual, phy.NewProtocolSet(phy.DisplayPort))
		test.That(t, tr.Next.Rate, test.ShouldEqual, phy.RateUnset)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, 0)
	})

	t.Run("already owned", func(t *testing.T) {
		st := usbOwned(phy.OrientationNormal)
		tr, err := combo0.Init(st, phy.USB3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Plan, test.ShouldBeNil)
		test.That(t, tr.Next, test.ShouldResemble, st)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := combo0.Init(InitialState(phy.Combo0, true), phy.PCIe)
		test.That(t, err, test.ShouldWrap, phy.ErrProtocolNotSupported)
		_, err = auxHpd.Init(InitialState(phy.AuxHpd, false), phy.USB3)
		test.That(t, err, test.ShouldWrap, phy.ErrProtocolNotSupported)
	})

	t.Run("usb and pcie exclude each other", func(t *testing.T) {
		st := InitialState(phy.Combo1, false)
		st.Owned = phy.NewProtocolSet(phy.USB3)
		_, err := combo1.Init(st, phy.PCIe)
		test.That(t, err, test.ShouldWrap, phy.ErrBusy)
	})

	t.Run("usb after a combined altmode takes dp along", func(t *testing.T) {
		st := InitialState(phy.Combo0, true)
		st.Orientation = phy.OrientationNormal
		st.Altmode = phy.AltmodeDPStateD
		st.Combined = true
		tr, err := combo0.Init(st, phy.USB3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Owned, test.ShouldEqual, phy.NewProtocolSet(phy.USB3, phy.DisplayPort))
		test.That(t, tr.Next.Mode(), test.ShouldEqual, CombinedUsbDp)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, DefaultCombinedLanes)
		test.That(t, tr.Next.Rate, test.ShouldEqual, DefaultRate)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
		test.That(t, tr.Plan.Protocols, test.ShouldEqual, tr.Next.Owned)

		st.Altmode = phy.AltmodeUSBOnly
		st.Combined = false
		tr, err = combo0.Init(st, phy.USB3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Owned, test.ShouldEqual, phy.NewProtocolSet(phy.USB3))
	})

	t.Run("dp joins usb only in a combined altmode", func(t *testing.T) {
		st := usbOwned(phy.OrientationNormal)
		_, err := combo0.Init(st, phy.DisplayPort)
		test.That(t, err, test.ShouldWrap, phy.ErrBusy)

		st.Altmode = phy.AltmodeDPStateF
		st.Combined = true
		tr, err := combo0.Init(st, phy.DisplayPort)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, CombinedUsbDp)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, DefaultCombinedLanes)
	})
}

func TestSetMode(t *testing.T) {
	t.Run("orientation flip hard resets", func(t *testing.T) {
		st := usbOwned(phy.OrientationNormal)
		tr, err := combo0.SetMode(st, phy.OrientationReverse, phy.AltmodeUSBOnly)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Plan, test.ShouldNotBeNil)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
		test.That(t, tr.Plan.Orientation, test.ShouldEqual, phy.OrientationReverse)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, UsbOwned)
	})

	t.Run("repeated event changes nothing", func(t *testing.T) {
		st := usbOwned(phy.OrientationNormal)
		tr, err := combo0.SetMode(st, phy.OrientationNormal, phy.AltmodeUSBOnly)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Plan, test.ShouldBeNil)
		test.That(t, tr.Next, test.ShouldResemble, st)
	})

	t.Run("first orientation of an owned instance", func(t *testing.T) {
		st := usbOwned(phy.OrientationUnknown)
		tr, err := combo0.SetMode(st, phy.OrientationNormal, phy.AltmodeUSBOnly)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
	})

	t.Run("idle instances only record the event", func(t *testing.T) {
		tr, err := combo0.SetMode(InitialState(phy.Combo0, true), phy.OrientationReverse, phy.AltmodeDPStateD)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Plan, test.ShouldBeNil)
		test.That(t, tr.Next.Orientation, test.ShouldEqual, phy.OrientationReverse)
		test.That(t, tr.Next.Combined, test.ShouldBeTrue)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, Idle)
	})

	t.Run("rejections", func(t *testing.T) {
		_, err := combo0.SetMode(usbOwned(phy.OrientationNormal), phy.OrientationUnknown, phy.AltmodeUSBOnly)
		test.That(t, err, test.ShouldWrap, phy.ErrInvalidOrientation)
		_, err = combo1.SetMode(InitialState(phy.Combo1, false), phy.OrientationReverse, phy.AltmodeUSBOnly)
		test.That(t, err, test.ShouldWrap, phy.ErrInvalidOrientation)
		_, err = combo1.SetMode(InitialState(phy.Combo1, false), phy.OrientationNormal, phy.AltmodeDPStateC)
		test.That(t, err, test.ShouldWrap, phy.ErrProtocolNotSupported)
	})

	t.Run("entering and leaving a combined altmode", func(t *testing.T) {
		st := usbOwned(phy.OrientationNormal)
		tr, err := combo0.SetMode(st, phy.OrientationNormal, phy.AltmodeDPStateD)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, CombinedUsbDp)
		test.That(t, tr.Next.Combined, test.ShouldBeTrue)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, 2)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
		test.That(t, tr.Plan.Protocols, test.ShouldEqual, phy.NewProtocolSet(phy.USB3, phy.DisplayPort))

		tr, err = combo0.SetMode(tr.Next, phy.OrientationNormal, phy.AltmodeUSBOnly)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, UsbOwned)
		test.That(t, tr.Next.Combined, test.ShouldBeFalse)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, 0)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
	})

	t.Run("dp alone is clamped when the lanes become shared", func(t *testing.T) {
		st := InitialState(phy.Combo0, true)
		st.Orientation = phy.OrientationNormal
		st.Altmode = phy.AltmodeDPStateC
		st.Owned = phy.NewProtocolSet(phy.DisplayPort)
		st.Lanes = 4
		st.Rate = phy.Rate1620

		tr, err := combo0.SetMode(st, phy.OrientationNormal, phy.AltmodeDPStateD)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Next.Mode(), test.ShouldEqual, DpOwned)
		test.That(t, tr.Next.Lanes, test.ShouldEqual, 2)
		test.That(t, tr.Next.Rate, test.ShouldEqual, phy.Rate2700)
		test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
		test.That(t, Validate(tr.Next, combo0.Caps,
			Request{Protocol: phy.DisplayPort, LaneCount: tr.Next.Lanes, LinkRate: tr.Next.Rate}), test.ShouldBeNil)
	})
}

func TestExit(t *testing.T) {
	_, err := combo0.Exit(InitialState(phy.Combo0, true), phy.USB3)
	test.That(t, err, test.ShouldWrap, phy.ErrNotOwned)
	_, err = combo1.Exit(InitialState(phy.Combo1, false), phy.DisplayPort)
	test.That(t, err, test.ShouldWrap, phy.ErrProtocolNotSupported)

	st := usbOwned(phy.OrientationReverse)
	st.LaneOrder = lanemap.Order{3, 2, 1, 0}
	tr, err := combo0.Exit(st, phy.USB3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.PowerOff)
	test.That(t, tr.Next.Mode(), test.ShouldEqual, Idle)
	test.That(t, tr.Next.LaneOrder, test.ShouldResemble, lanemap.Order{})
	test.That(t, tr.Next.Orientation, test.ShouldEqual, phy.OrientationReverse)

	tr, err = combo0.Exit(combinedState(), phy.USB3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.HardReset)
	test.That(t, tr.Next.Mode(), test.ShouldEqual, DpOwned)
	test.That(t, tr.Next.Lanes, test.ShouldEqual, 2)

	tr, err = combo0.Exit(combinedState(), phy.DisplayPort)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Next.Mode(), test.ShouldEqual, UsbOwned)
	test.That(t, tr.Next.Rate, test.ShouldEqual, phy.RateUnset)
	test.That(t, tr.Plan.Protocols, test.ShouldEqual, phy.NewProtocolSet(phy.USB3))
}

func TestShutdown(t *testing.T) {
	idle := InitialState(phy.Combo1, false)
	test.That(t, combo1.Shutdown(idle).Plan, test.ShouldBeNil)

	tr := combo0.Shutdown(combinedState())
	test.That(t, tr.Plan.Kind, test.ShouldEqual, sequencer.PowerOff)
	test.That(t, tr.Next.Owned.IsEmpty(), test.ShouldBeTrue)
	test.That(t, tr.Next.Combined, test.ShouldBeTrue)
}

func TestConfigureDisplayPortSteps(t *testing.T) {
	dpOwned := InitialState(phy.Combo0, true)
	dpOwned.Orientation = phy.OrientationNormal
	dpOwned.Owned = phy.NewProtocolSet(phy.DisplayPort)
	dpOwned.Rate = phy.Rate2700
	dpOwned.Lanes = 4

	t.Run("fixed order", func(t *testing.T) {
		steps, err := combo0.ConfigureDisplayPort(dpOwned, DisplayPortConfig{
			Voltage: &phy.VoltageLevels{},
			Rate:    ptr(phy.Rate5400),
			Lanes:   ptr(2),
			SSC:     ptr(true),
		})
		test.That(t, err, test.ShouldBeNil)
		names := make([]string, 0, len(steps))
		for _, step := range steps {
			names = append(names, step.Name)
		}
		test.That(t, names, test.ShouldResemble, []string{"ssc", "lanes", "rate", "voltage"})

		st := dpOwned
		var kinds []sequencer.PlanKind
		for _, step := range steps {
			tr, err := step.Decide(st)
			test.That(t, err, test.ShouldBeNil)
			if tr.Plan != nil {
				kinds = append(kinds, tr.Plan.Kind)
			}
			st = tr.Next
		}
		// The voltage step matches the current levels and is skipped.
		test.That(t, kinds, test.ShouldResemble, []sequencer.PlanKind{
			sequencer.SoftReconfigure, sequencer.HardReset, sequencer.SoftReconfigure,
		})
		test.That(t, st.SSC, test.ShouldBeTrue)
		test.That(t, st.Lanes, test.ShouldEqual, 2)
		test.That(t, st.Rate, test.ShouldEqual, phy.Rate5400)
	})

	t.Run("combined lane limit", func(t *testing.T) {
		_, err := combo0.ConfigureDisplayPort(combinedState(), DisplayPortConfig{Lanes: ptr(4)})
		test.That(t, err, test.ShouldWrap, phy.ErrLaneCountExceedsCombinedLimit)
	})

	t.Run("explicit zero lanes or unset rate", func(t *testing.T) {
		_, err := combo0.ConfigureDisplayPort(dpOwned, DisplayPortConfig{Lanes: ptr(0)})
		test.That(t, err, test.ShouldWrap, phy.ErrInvalidLaneCount)
		_, err = combo0.ConfigureDisplayPort(dpOwned, DisplayPortConfig{Lanes: ptr(-2)})
		test.That(t, err, test.ShouldWrap, phy.ErrInvalidLaneCount)
		_, err = combo0.ConfigureDisplayPort(dpOwned, DisplayPortConfig{Rate: ptr(phy.RateUnset)})
		test.That(t, err, test.ShouldWrap, phy.ErrUnsupportedRate)
	})

	t.Run("hbr3 regardless of state", func(t *testing.T) {
		for _, a := range []struct {
			arbiter Arbiter
			st      State
		}{
			{combo0, dpOwned},
			{combo0, combinedState()},
			{combo0, InitialState(phy.Combo0, true)},
			{combo1, InitialState(phy.Combo1, false)},
			{auxHpd, InitialState(phy.AuxHpd, false)},
		} {
			_, err := a.arbiter.ConfigureDisplayPort(a.st, DisplayPortConfig{Rate: ptr(phy.Rate8100)})
			test.That(t, err, test.ShouldWrap, phy.ErrUnsupportedRate)
		}
	})

	t.Run("preconditions", func(t *testing.T) {
		_, err := auxHpd.ConfigureDisplayPort(InitialState(phy.AuxHpd, false), DisplayPortConfig{SSC: ptr(true)})
		test.That(t, err, test.ShouldWrap, phy.ErrProtocolNotSupported)

		unknown := dpOwned
		unknown.Orientation = phy.OrientationUnknown
		_, err = combo0.ConfigureDisplayPort(unknown, DisplayPortConfig{SSC: ptr(true)})
		test.That(t, err, test.ShouldWrap, phy.ErrInvalidOrientation)

		_, err = combo0.ConfigureDisplayPort(usbOwned(phy.OrientationNormal), DisplayPortConfig{SSC: ptr(true)})
		test.That(t, err, test.ShouldWrap, phy.ErrNotOwned)
	})
}

// Combo1 must never hold USB3 and PCIe at once, whatever the call sequence.
func TestCombo1Exclusion(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	protocols := []phy.Protocol{phy.USB3, phy.PCIe, phy.DisplayPort}
	orientations := []phy.Orientation{phy.OrientationUnknown, phy.OrientationNormal, phy.OrientationReverse}
	both := phy.NewProtocolSet(phy.USB3, phy.PCIe)

	st := InitialState(phy.Combo1, false)
	for i := 0; i < 5000; i++ {
		var (
			tr  Transition
			err error
		)
		switch rng.Intn(3) {
		case 0:
			tr, err = combo1.Init(st, protocols[rng.Intn(len(protocols))])
		case 1:
			tr, err = combo1.Exit(st, protocols[rng.Intn(len(protocols))])
		default:
			altmode := phy.AltmodeState(rng.Intn(int(phy.AltmodeDPStateF) + 1))
			tr, err = combo1.SetMode(st, orientations[rng.Intn(len(orientations))], altmode)
		}
		if err == nil {
			st = tr.Next
		}
		test.That(t, st.Owned&both, test.ShouldNotEqual, both)
		test.That(t, st.Owned.Has(phy.DisplayPort), test.ShouldBeFalse)
	}
}
