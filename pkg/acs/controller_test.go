package acs

import (
	"errors"
	"testing"
)

// fakeDriver is a deterministic, synchronous stand-in for the radio driver.
// Tests drive the asynchronous event hooks manually to simulate the driver
// completing scans and dwells.
type fakeDriver struct {
	flags      DrvFlag
	scanErr    error
	rocErr     error
	surveyErr  error
	surveyQ    map[int][][]Survey // freq -> queue of survey batches, consumed FIFO
	rocCalls   []int              // freqs requested, in order
	scanCalled int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		flags:   DrvOffchannelTX,
		surveyQ: make(map[int][][]Survey),
	}
}

func (f *fakeDriver) queueSurvey(freq int, s Survey) {
	f.surveyQ[freq] = append(f.surveyQ[freq], []Survey{s})
}

func (f *fakeDriver) Scan(ScanParams) error {
	f.scanCalled++
	return f.scanErr
}

func (f *fakeDriver) RemainOnChannel(freqMHz, durationMs int) error {
	f.rocCalls = append(f.rocCalls, freqMHz)
	return f.rocErr
}

func (f *fakeDriver) SurveyFreq(freqMHz int) ([]Survey, error) {
	if f.surveyErr != nil {
		return nil, f.surveyErr
	}
	q := f.surveyQ[freqMHz]
	if len(q) == 0 {
		return nil, nil
	}
	batch := q[0]
	f.surveyQ[freqMHz] = q[1:]
	return batch, nil
}

func (f *fakeDriver) Flags() DrvFlag { return f.flags }

type fakeBringUp struct {
	status Status
	err    error
	calls  int
}

func (b *fakeBringUp) Complete(iface *Iface) (Status, error) {
	b.calls++
	if b.status == 0 && b.err == nil {
		return StatusValid, nil
	}
	return b.status, b.err
}

func mode2() *Mode {
	return &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412},
		{Chan: 6, Freq: 2437},
	}}
}

func newIface(mode *Mode, numPasses, dwellMs int) *Iface {
	return &Iface{
		Name: "wlan0",
		Mode: mode,
		Conf: &Config{AcsNumReqSurveys: numPasses, AcsRocDurationMs: dwellMs},
	}
}

// driveOneChannel simulates the full ROC started+cancelled event pair for
// one dwell issued by the controller.
func driveOneChannel(t *testing.T, c *Controller, freq, durationMs int) (Status, error) {
	t.Helper()
	if _, err := c.HandleRocStarted(freq, durationMs, 0); err != nil {
		return StatusInvalid, err
	}
	return c.HandleRocCancelled(freq, durationMs, 0)
}

// TestS1SingleChannelHappyPath is scenario S1 from SPEC_FULL.md §8.
func TestS1SingleChannelHappyPath(t *testing.T) {
	mode := &Mode{Channels: []*Channel{{Chan: 1, Freq: 2412}}}
	iface := newIface(mode, 1, 100)
	drv := newFakeDriver()
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -95})
	bu := &fakeBringUp{}

	c := NewController(iface, drv, bu)

	status, err := c.Init()
	if err != nil || status != StatusACS {
		t.Fatalf("Init: status=%v err=%v", status, err)
	}
	if _, err := c.HandleScanComplete(); err != nil {
		t.Fatalf("HandleScanComplete: %v", err)
	}

	status, err = driveOneChannel(t, c, 2412, 100)
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if status != StatusValid {
		t.Fatalf("status = %v, want Valid", status)
	}
	if iface.Conf.Channel != 1 {
		t.Fatalf("conf.channel = %d, want 1", iface.Conf.Channel)
	}
	if bu.calls != 1 {
		t.Fatalf("bring-up called %d times, want 1", bu.calls)
	}
	if c.State() != StateTerminatedOK {
		t.Fatalf("state = %v, want Terminated-OK", c.State())
	}
}

// TestS2PickQuieter is scenario S2.
func TestS2PickQuieter(t *testing.T) {
	iface := newIface(mode2(), 1, 100)
	drv := newFakeDriver()
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 500, ChannelTimeTx: 0, NF: -90})
	drv.queueSurvey(2437, Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -90})
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	mustComplete(t, c, drv, iface)

	if iface.Conf.Channel != 6 {
		t.Fatalf("conf.channel = %d, want 6", iface.Conf.Channel)
	}
}

// TestS3NoiseFloorBreaksTie is scenario S3.
func TestS3NoiseFloorBreaksTie(t *testing.T) {
	iface := newIface(mode2(), 1, 100)
	drv := newFakeDriver()
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 200, ChannelTimeTx: 0, NF: -95})
	drv.queueSurvey(2437, Survey{ChannelTime: 1000, ChannelTimeBusy: 200, ChannelTimeTx: 0, NF: -90})
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	mustComplete(t, c, drv, iface)

	if iface.Conf.Channel != 1 {
		t.Fatalf("conf.channel = %d, want 1", iface.Conf.Channel)
	}
}

// TestS4DisabledChannelSkipped is scenario S4.
func TestS4DisabledChannelSkipped(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412, Flags: ChanDisabled},
		{Chan: 6, Freq: 2437},
	}}
	iface := newIface(mode, 1, 100)
	drv := newFakeDriver()
	drv.queueSurvey(2437, Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -90})
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	mustComplete(t, c, drv, iface)

	if len(drv.rocCalls) != 1 || drv.rocCalls[0] != 2437 {
		t.Fatalf("roc calls = %v, want [2437]", drv.rocCalls)
	}
	if iface.Conf.Channel != 6 {
		t.Fatalf("conf.channel = %d, want 6", iface.Conf.Channel)
	}
}

// TestS5MultiPassAveraging is scenario S5.
func TestS5MultiPassAveraging(t *testing.T) {
	iface := newIface(mode2(), 2, 100)
	drv := newFakeDriver()
	// Pass 1 alone favours ch1 (much quieter); pass 2 alone favours ch6,
	// but not enough to flip the two-pass mean.
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 50, ChannelTimeTx: 0, NF: -90})
	drv.queueSurvey(2437, Survey{ChannelTime: 1000, ChannelTimeBusy: 900, ChannelTimeTx: 0, NF: -90})
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 400, ChannelTimeTx: 0, NF: -90})
	drv.queueSurvey(2437, Survey{ChannelTime: 1000, ChannelTimeBusy: 120, ChannelTimeTx: 0, NF: -90})
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	mustComplete(t, c, drv, iface)

	if iface.Conf.Channel != 1 {
		t.Fatalf("conf.channel = %d, want 1", iface.Conf.Channel)
	}
	if len(drv.rocCalls) != 4 {
		t.Fatalf("roc calls = %d, want 4", len(drv.rocCalls))
	}
}

// TestS6DriverFailureMidSweep is scenario S6.
func TestS6DriverFailureMidSweep(t *testing.T) {
	iface := newIface(mode2(), 1, 100)
	drv := newFakeDriver()
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -90})
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	status, err := c.Init()
	if err != nil || status != StatusACS {
		t.Fatalf("Init: status=%v err=%v", status, err)
	}
	if _, err := c.HandleScanComplete(); err != nil {
		t.Fatalf("HandleScanComplete: %v", err)
	}

	status, err = driveOneChannel(t, c, 2412, 100)
	if err != nil || status != StatusACS {
		t.Fatalf("first dwell: status=%v err=%v", status, err)
	}

	// Second dwell: ROC cancel event carries a non-zero status.
	status, err = c.HandleRocCancelled(2437, 100, 7)
	if err == nil {
		t.Fatal("expected error from non-zero status event")
	}
	if status != StatusInvalid {
		t.Fatalf("status = %v, want Invalid", status)
	}
	if !errors.Is(err, ErrDriverEvent) {
		t.Fatalf("err = %v, want ErrDriverEvent", err)
	}

	if iface.Conf.Channel != 0 {
		t.Fatalf("conf.channel = %d, want unchanged (0)", iface.Conf.Channel)
	}
	assertClean(t, iface)
}

func TestSanityCheckFailsWithoutCapability(t *testing.T) {
	iface := newIface(mode2(), 1, 100)
	drv := newFakeDriver()
	drv.flags = 0
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	status, err := c.Init()
	if !errors.Is(err, ErrCapability) {
		t.Fatalf("err = %v, want ErrCapability", err)
	}
	if status != StatusInvalid {
		t.Fatalf("status = %v, want Invalid", status)
	}
}

func TestCleanupAfterSuccessIsIdempotent(t *testing.T) {
	mode := &Mode{Channels: []*Channel{{Chan: 1, Freq: 2412}}}
	iface := newIface(mode, 1, 100)
	drv := newFakeDriver()
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -95})
	bu := &fakeBringUp{}
	c := NewController(iface, drv, bu)

	mustComplete(t, c, drv, iface)
	assertClean(t, iface)

	// Running ACS a second time back-to-back should produce the same
	// decision from the same driver data (invariant 8).
	drv.queueSurvey(2412, Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -95})
	mustComplete(t, c, drv, iface)
	if iface.Conf.Channel != 1 {
		t.Fatalf("second run conf.channel = %d, want 1", iface.Conf.Channel)
	}
}

func assertClean(t *testing.T, iface *Iface) {
	t.Helper()
	for _, ch := range iface.Mode.Channels {
		if ch.SurveyCount() != 0 {
			t.Fatalf("channel %d survey count = %d, want 0", ch.Chan, ch.SurveyCount())
		}
		if len(ch.surveyList) != 0 {
			t.Fatalf("channel %d survey list not empty", ch.Chan)
		}
	}
	if iface.chansSurveyed != 0 || iface.offChannelFreqIdx != 0 || iface.acsNumCompletedSurveys != 0 {
		t.Fatalf("iface counters not reset: surveyed=%d idx=%d passes=%d",
			iface.chansSurveyed, iface.offChannelFreqIdx, iface.acsNumCompletedSurveys)
	}
}

// mustComplete drives a controller through Init and successive dwells
// until it reaches a terminal state, failing the test if it doesn't.
func mustComplete(t *testing.T, c *Controller, drv *fakeDriver, iface *Iface) {
	t.Helper()

	status, err := c.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if status != StatusACS {
		t.Fatalf("Init status = %v, want ACS", status)
	}

	// Deliver the initial scan's completion, which issues the first dwell.
	if _, err := c.HandleScanComplete(); err != nil {
		t.Fatalf("HandleScanComplete: %v", err)
	}

	for i := 0; i < 10000; i++ {
		if c.State().Terminal() {
			if c.State() != StateTerminatedOK {
				t.Fatalf("terminated in state %v", c.State())
			}
			return
		}

		freq := iface.currentChannel().Freq
		dwell := iface.Conf.AcsRocDurationMs
		status, err = driveOneChannel(t, c, freq, dwell)
		if err != nil {
			t.Fatalf("drive freq=%d: %v", freq, err)
		}
		if c.State().Terminal() {
			continue
		}
		if status != StatusACS {
			t.Fatalf("unexpected status %v mid-run", status)
		}
	}
	t.Fatal("controller never reached a terminal state")
}
