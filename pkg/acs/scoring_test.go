package acs

import "testing"

func TestInterferenceFactorMonotoneInBusy(t *testing.T) {
	base := Survey{ChannelTime: 1000, ChannelTimeTx: 0, NF: -90}

	low := base
	low.ChannelTimeBusy = 100
	high := base
	high.ChannelTimeBusy = 500

	if InterferenceFactor(high, -90) <= InterferenceFactor(low, -90) {
		t.Fatalf("factor not monotone in busy time: low=%f high=%f",
			InterferenceFactor(low, -90), InterferenceFactor(high, -90))
	}
}

func TestInterferenceFactorMonotoneInNF(t *testing.T) {
	base := Survey{ChannelTime: 1000, ChannelTimeBusy: 200, ChannelTimeTx: 0}

	quiet := base
	quiet.NF = -95
	noisy := base
	noisy.NF = -80

	if InterferenceFactor(noisy, -95) <= InterferenceFactor(quiet, -95) {
		t.Fatalf("factor not monotone in nf: quiet=%f noisy=%f",
			InterferenceFactor(quiet, -95), InterferenceFactor(noisy, -95))
	}
}

func TestScoreChannelIsRunningMean(t *testing.T) {
	c := &Channel{Chan: 1, Freq: 2412}
	c.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -90})
	c.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 300, ChannelTimeTx: 0, NF: -90})

	scoreChannel(c, -90)

	want := (InterferenceFactor(c.surveyList[0], -90) + InterferenceFactor(c.surveyList[1], -90)) / 2
	if c.surveyInterferenceFactor != want {
		t.Fatalf("mean = %f, want %f", c.surveyInterferenceFactor, want)
	}
}

func TestScoreChannelSkipsDisabled(t *testing.T) {
	c := &Channel{Chan: 1, Freq: 2412, Flags: ChanDisabled}
	c.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0, NF: -90})

	scoreChannel(c, -90)

	if c.surveyInterferenceFactor != 0 {
		t.Fatalf("disabled channel was scored: %f", c.surveyInterferenceFactor)
	}
}

func TestMinNFTracksMinimum(t *testing.T) {
	c := &Channel{Chan: 1, Freq: 2412}
	c.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 100, NF: -80})
	c.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 100, NF: -95})
	c.addSurvey(Survey{ChannelTime: 1000, ChannelTimeBusy: 100, NF: -88})

	if c.MinNF() != -95 {
		t.Fatalf("min_nf = %d, want -95", c.MinNF())
	}
	if c.SurveyCount() != 3 {
		t.Fatalf("survey_count = %d, want 3", c.SurveyCount())
	}
}

func TestSurveyValid(t *testing.T) {
	cases := []struct {
		name string
		s    Survey
		want bool
	}{
		{"ok", Survey{ChannelTime: 1000, ChannelTimeBusy: 100, ChannelTimeTx: 0}, true},
		{"tx_equals_time", Survey{ChannelTime: 100, ChannelTimeBusy: 100, ChannelTimeTx: 100}, false},
		{"busy_exceeds_time", Survey{ChannelTime: 100, ChannelTimeBusy: 200, ChannelTimeTx: 0}, false},
		{"tx_exceeds_busy", Survey{ChannelTime: 1000, ChannelTimeBusy: 50, ChannelTimeTx: 60}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.Valid(); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}
