package acs

import "errors"

// ErrNoUsableChannel is returned by SelectIdeal when no channel in the mode
// satisfies the usability predicate (§4.2): at least one survey, a
// non-empty survey list, and not disabled.
var ErrNoUsableChannel = errors.New("acs: no usable channel")

// SelectIdeal scores every usable channel against nfRef and returns the one
// with the lowest mean interference factor (§4.3). Ties are broken by
// first-seen order in mode.Channels. Returns ErrNoUsableChannel if no
// channel is usable.
func SelectIdeal(mode *Mode, nfRef int8) (*Channel, error) {
	var ideal *Channel

	for _, c := range mode.Channels {
		if !c.usable() {
			continue
		}

		scoreChannel(c, nfRef)

		if ideal == nil || c.surveyInterferenceFactor < ideal.surveyInterferenceFactor {
			ideal = c
		}
	}

	if ideal == nil {
		return nil, ErrNoUsableChannel
	}
	return ideal, nil
}
