package driver

import (
	"math/rand"
	"time"

	"github.com/acs-wifi/acsd/pkg/acs"
)

// Fake is a deterministic, self-driving stand-in for a radio driver. It
// answers Scan/RemainOnChannel by scheduling the completion events itself
// on its own goroutines, so it can exercise a full acs.Controller run the
// same way a real event-driven driver would, without any hardware or `iw`
// dependency. Used by `acsd -simulate` to observe the controller's
// published events end to end.
type Fake struct {
	flags acs.DrvFlag
	sink  EventSink

	// Surveys maps a frequency to the survey measurements SurveyFreq
	// should hand back the next time that frequency is dwelled on.
	// Entries are consumed in FIFO order, supporting distinct values
	// across passes.
	Surveys map[int][]acs.Survey

	rng *rand.Rand
}

// NewFake builds a simulated driver that reports off-channel TX capability
// by default.
func NewFake(sink EventSink) *Fake {
	return &Fake{
		flags:   acs.DrvOffchannelTX,
		sink:    sink,
		Surveys: make(map[int][]acs.Survey),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// QueueSurvey appends a survey measurement for freqMHz to be returned on a
// future dwell, oldest first.
func (f *Fake) QueueSurvey(freqMHz int, s acs.Survey) {
	f.Surveys[freqMHz] = append(f.Surveys[freqMHz], s)
}

// WithoutCapability clears the off-channel TX capability bit, to exercise
// the controller's sanity-check failure path.
func (f *Fake) WithoutCapability() *Fake {
	f.flags = 0
	return f
}

func (f *Fake) Scan(acs.ScanParams) error {
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.sink.HandleScanComplete()
	}()
	return nil
}

func (f *Fake) RemainOnChannel(freqMHz, durationMs int) error {
	go func() {
		f.sink.HandleRocStarted(freqMHz, durationMs, 0)
		time.Sleep(time.Duration(durationMs) * time.Millisecond)
		f.sink.HandleRocCancelled(freqMHz, durationMs, 0)
	}()
	return nil
}

func (f *Fake) SurveyFreq(freqMHz int) ([]acs.Survey, error) {
	q := f.Surveys[freqMHz]
	if len(q) == 0 {
		// Synthesize a plausible survey so a simulated run without
		// pre-seeded data still produces a believable decision.
		busy := uint64(50 + f.rng.Intn(700))
		nf := int8(-95 + f.rng.Intn(15))
		return []acs.Survey{{ChannelTime: 1000, ChannelTimeBusy: busy, ChannelTimeTx: 0, NF: nf}}, nil
	}
	f.Surveys[freqMHz] = q[1:]
	return q[:1], nil
}

func (f *Fake) Flags() acs.DrvFlag { return f.flags }
