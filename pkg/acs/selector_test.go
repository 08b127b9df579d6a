package acs

import (
	"errors"
	"testing"
)

func TestSelectIdealPicksLowestScore(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412},
		{Chan: 6, Freq: 2437},
		{Chan: 11, Freq: 2462},
	}}
	mode.Channels[0].addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 500, NF: -90})
	mode.Channels[1].addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 50, NF: -90})
	mode.Channels[2].addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 900, NF: -90})

	ideal, err := SelectIdeal(mode, -90)
	if err != nil {
		t.Fatalf("SelectIdeal: %v", err)
	}
	if ideal.Chan != 6 {
		t.Fatalf("ideal = %d, want 6", ideal.Chan)
	}
}

func TestSelectIdealTieBreakIsFirstSeen(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412},
		{Chan: 6, Freq: 2437},
	}}
	s := Survey{ChannelTime: 1000, ChannelTimeBusy: 100, NF: -90}
	mode.Channels[0].addSurvey(s)
	mode.Channels[1].addSurvey(s)

	ideal, err := SelectIdeal(mode, -90)
	if err != nil {
		t.Fatalf("SelectIdeal: %v", err)
	}
	if ideal.Chan != 1 {
		t.Fatalf("ideal = %d, want 1 (first-seen tie-break)", ideal.Chan)
	}
}

func TestSelectIdealSkipsDisabledAndUnsurveyed(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412, Flags: ChanDisabled},
		{Chan: 6, Freq: 2437}, // never surveyed
		{Chan: 11, Freq: 2462},
	}}
	mode.Channels[0].addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 1, NF: -90})
	mode.Channels[2].addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 500, NF: -90})

	ideal, err := SelectIdeal(mode, -90)
	if err != nil {
		t.Fatalf("SelectIdeal: %v", err)
	}
	if ideal.Chan != 11 {
		t.Fatalf("ideal = %d, want 11", ideal.Chan)
	}
}

func TestSelectIdealNoUsableChannel(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412, Flags: ChanDisabled},
		{Chan: 6, Freq: 2437},
	}}

	_, err := SelectIdeal(mode, -90)
	if !errors.Is(err, ErrNoUsableChannel) {
		t.Fatalf("err = %v, want ErrNoUsableChannel", err)
	}
}

func TestSelectIdealArgminMatchesLinearScan(t *testing.T) {
	mode := &Mode{Channels: []*Channel{
		{Chan: 1, Freq: 2412},
		{Chan: 6, Freq: 2437},
		{Chan: 11, Freq: 2462},
		{Chan: 36, Freq: 5180},
	}}
	busys := []uint64{700, 300, 900, 120}
	for i, ch := range mode.Channels {
		ch.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: busys[i], NF: -90})
	}

	ideal, err := SelectIdeal(mode, -90)
	if err != nil {
		t.Fatalf("SelectIdeal: %v", err)
	}

	for _, ch := range mode.Channels {
		if !ch.usable() {
			continue
		}
		scoreChannel(ch, -90)
		if ch != ideal && ch.surveyInterferenceFactor < ideal.surveyInterferenceFactor {
			t.Fatalf("channel %d scores lower (%f) than returned ideal %d (%f)",
				ch.Chan, ch.surveyInterferenceFactor, ideal.Chan, ideal.surveyInterferenceFactor)
		}
	}
}
