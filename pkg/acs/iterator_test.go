package acs

import "testing"

func TestAdvanceSkipsDisabled(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412, Flags: ChanDisabled},
		{Chan: 6, Freq: 2437, Flags: ChanDisabled},
		{Chan: 11, Freq: 2462},
	}}
	iface := newIface(mode, 1, 100)

	var requested []int
	status, err := advance(iface, func(freq, dur int) error {
		requested = append(requested, freq)
		return nil
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if status != StatusACS {
		t.Fatalf("status = %v, want ACS", status)
	}
	if len(requested) != 1 || requested[0] != 2462 {
		t.Fatalf("requested = %v, want [2462]", requested)
	}
	if iface.offChannelFreqIdx != 2 {
		t.Fatalf("cursor = %d, want 2", iface.offChannelFreqIdx)
	}
}

func TestAdvanceExhaustedWithoutAnySurveyIsInvalid(t *testing.T) {
	mode := &Mode{Channels: []*Channel{{Chan: 1, Freq: 2412}}}
	iface := newIface(mode, 1, 100)
	iface.offChannelFreqIdx = 1 // past the only channel

	status, err := advance(iface, func(int, int) error { return nil })
	if err == nil {
		t.Fatal("expected error")
	}
	if status != StatusInvalid {
		t.Fatalf("status = %v, want Invalid", status)
	}
}

func TestAdvanceExhaustedWithSurveyedIsValid(t *testing.T) {
	mode := &Mode{Channels: []*Channel{{Chan: 1, Freq: 2412}}}
	iface := newIface(mode, 1, 100)
	iface.offChannelFreqIdx = 1
	iface.chansSurveyed = 1

	status, err := advance(iface, func(int, int) error { return nil })
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if status != StatusValid {
		t.Fatalf("status = %v, want Valid", status)
	}
}

func TestAdvanceCursorNeverExceedsChannelCount(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412},
		{Chan: 6, Freq: 2437},
	}}
	iface := newIface(mode, 1, 100)

	for i := 0; i < 3; i++ {
		status, err := advance(iface, func(int, int) error { return nil })
		if status == StatusACS {
			iface.offChannelFreqIdx++
		}
		if err != nil && status == StatusInvalid && iface.chansSurveyed == 0 {
			break
		}
		if iface.offChannelFreqIdx > len(mode.Channels) {
			t.Fatalf("cursor %d exceeded channel count %d", iface.offChannelFreqIdx, len(mode.Channels))
		}
	}
}

func TestAdvancePropagatesRocError(t *testing.T) {
	mode := &Mode{Channels: []*Channel{{Chan: 1, Freq: 2412}}}
	iface := newIface(mode, 1, 100)

	status, err := advance(iface, func(int, int) error { return errDwellRefused })
	if err == nil {
		t.Fatal("expected error")
	}
	if status != StatusInvalid {
		t.Fatalf("status = %v, want Invalid", status)
	}
}

var errDwellRefused = errShim("dwell refused")

type errShim string

func (e errShim) Error() string { return string(e) }
