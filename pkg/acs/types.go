// Package acs implements the automatic channel selection decision engine:
// a survey-driven state machine that walks an access point's candidate
// channel list, collects driver-reported interference measurements via
// remain-on-channel dwells, and picks the channel with the lowest
// estimated interference.
package acs

import (
	"sync"
)

// ChanFlag is a bitfield describing per-channel driver-reported state.
type ChanFlag uint32

const (
	// ChanDisabled marks a channel as unavailable for survey or selection,
	// e.g. blocked by regulatory domain or radar detection.
	ChanDisabled ChanFlag = 1 << iota
	// ChanRadar marks a channel requiring DFS clearance before use.
	ChanRadar
	// ChanNoIR marks a channel that permits receive but not transmit.
	ChanNoIR
)

// DrvFlag is a bitfield of driver capabilities consulted by the sanity check.
type DrvFlag uint32

const (
	// DrvOffchannelTX indicates the driver can transmit management frames
	// while parked off the operating channel, required for ROC-based survey.
	DrvOffchannelTX DrvFlag = 1 << iota
)

// Survey is one radio observation on one frequency.
//
// Invariant: ChannelTimeTx <= ChannelTimeBusy <= ChannelTime, and
// ChannelTime > ChannelTimeTx, so the scoring denominator is never zero.
type Survey struct {
	ChannelTime     uint64 // microseconds the radio spent observing
	ChannelTimeBusy uint64 // microseconds the medium was sensed busy
	ChannelTimeTx   uint64 // microseconds spent transmitting during observation
	NF              int8   // observed noise floor, dBm
}

// Valid reports whether s satisfies the data-model invariant required for
// the scoring function to be defined.
func (s Survey) Valid() bool {
	return s.ChannelTimeTx <= s.ChannelTimeBusy &&
		s.ChannelTimeBusy <= s.ChannelTime &&
		s.ChannelTime > s.ChannelTimeTx
}

// Channel is one entry in the interface's mode description: a candidate
// operating channel plus its accumulated survey state.
type Channel struct {
	Chan  int // channel number
	Freq  int // MHz
	Flags ChanFlag

	surveyList                []Survey
	minNF                     int8
	surveyInterferenceFactor  float64
}

// Disabled reports whether this channel is excluded from survey/selection.
func (c *Channel) Disabled() bool {
	return c.Flags&ChanDisabled != 0
}

// SurveyCount returns the number of surveys collected so far on this channel.
func (c *Channel) SurveyCount() int { return len(c.surveyList) }

// MinNF returns the minimum noise floor observed on this channel, or 0 if
// no survey has been recorded.
func (c *Channel) MinNF() int8 { return c.minNF }

// InterferenceFactor returns the last-computed mean interference factor.
func (c *Channel) InterferenceFactor() float64 { return c.surveyInterferenceFactor }

// Surveys returns a read-only view of the collected survey list, for
// diagnostics (analytics, audit). Callers must not mutate the backing array.
func (c *Channel) Surveys() []Survey { return c.surveyList }

// addSurvey appends s to the channel's survey list and updates MinNF.
func (c *Channel) addSurvey(s Survey) {
	c.surveyList = append(c.surveyList, s)
	if len(c.surveyList) == 1 || s.NF < c.minNF {
		c.minNF = s.NF
	}
}

// reset clears all per-invocation survey state for this channel. Idempotent.
func (c *Channel) reset() {
	c.surveyList = nil
	c.minNF = 0
	c.surveyInterferenceFactor = 0
}

// usable reports whether this channel is eligible for selection (§4.2).
func (c *Channel) usable() bool {
	return !c.Disabled() && len(c.surveyList) > 0
}

// Mode is the ordered set of candidate channels an interface can operate on.
type Mode struct {
	Channels []*Channel
}

// Config holds the ACS-relevant knobs taken from the interface configuration.
type Config struct {
	// AcsNumReqSurveys is the required number of full survey passes.
	AcsNumReqSurveys int
	// AcsRocDurationMs is the per-channel remain-on-channel dwell, in ms.
	AcsRocDurationMs int
	// Channel is written by the engine when it selects a channel, before
	// the bring-up collaborator is invoked; it keeps that value if
	// bring-up then fails.
	Channel int
}

// Status is the tri-state outcome the engine reports to its caller,
// mirroring the three outcome kinds of §7.
type Status int

const (
	// StatusInvalid means the decision is impossible; terminal.
	StatusInvalid Status = iota
	// StatusACS means the decision is in progress; caller should await the
	// completion callback.
	StatusACS
	// StatusValid means a decision was made; set only on completion.
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "INVALID"
	case StatusACS:
		return "ACS"
	case StatusValid:
		return "VALID"
	default:
		return "UNKNOWN"
	}
}

// Iface is the interface state container the engine operates on: mode
// description, configuration, driver capability bits, and ACS progress
// counters. It is owned by the caller for the lifetime of the AP; the
// engine mutates only the fields documented in §3 of the design.
type Iface struct {
	mu sync.Mutex

	Name string
	Mode *Mode
	Conf *Config

	DrvFlags DrvFlag

	offChannelFreqIdx     int
	chansSurveyed         int
	acsNumCompletedSurveys int
	lowestNF              int8
}

// channelByFreq finds the channel record matching freq, or nil.
func (i *Iface) channelByFreq(freq int) *Channel {
	for _, c := range i.Mode.Channels {
		if c.Freq == freq {
			return c
		}
	}
	return nil
}

// recomputeLowestNF recalculates lowestNF across all channels that have
// collected at least one survey.
func (i *Iface) recomputeLowestNF() {
	first := true
	for _, c := range i.Mode.Channels {
		if c.SurveyCount() == 0 {
			continue
		}
		if first || c.minNF < i.lowestNF {
			i.lowestNF = c.minNF
			first = false
		}
	}
}
