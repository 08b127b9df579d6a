package acs

import "fmt"

// RocRequester issues a single remain-on-channel request, matching
// Driver.RemainOnChannel. Kept as a narrow function type here so
// the iterator has no import-time dependency on pkg/driver.
type RocRequester func(freqMHz, durationMs int) error

// advance implements the ROC driver iterator (§4.4): from the cursor
// onward, find the first non-disabled channel, issue a dwell request on it,
// leave the cursor pointing at it, and report StatusACS; or, if the channel
// list is exhausted, report StatusValid if any channel produced survey data
// this invocation, else StatusInvalid.
func advance(i *Iface, roc RocRequester) (Status, error) {
	n := len(i.Mode.Channels)

	if i.offChannelFreqIdx > n {
		return StatusInvalid, fmt.Errorf("acs: channel index %d out of bounds (n=%d)", i.offChannelFreqIdx, n)
	}

	for idx := i.offChannelFreqIdx; idx < n; idx++ {
		c := i.Mode.Channels[idx]
		if c.Disabled() {
			continue
		}

		if err := roc(c.Freq, i.Conf.AcsRocDurationMs); err != nil {
			return StatusInvalid, fmt.Errorf("acs: remain-on-channel request on %d MHz failed: %w", c.Freq, err)
		}

		i.offChannelFreqIdx = idx
		return StatusACS, nil
	}

	if i.chansSurveyed == 0 {
		return StatusInvalid, fmt.Errorf("acs: unable to survey any channel")
	}

	return StatusValid, nil
}

// currentChannel returns the channel record the cursor currently points at.
// Only valid while the iterator has an outstanding dwell request in flight.
func (i *Iface) currentChannel() *Channel {
	if i.offChannelFreqIdx < 0 || i.offChannelFreqIdx >= len(i.Mode.Channels) {
		return nil
	}
	return i.Mode.Channels[i.offChannelFreqIdx]
}
