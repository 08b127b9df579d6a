package acs

import "errors"

// Error taxonomy (§7). Every error the controller can terminate on maps to
// exactly one of these, which in turn always maps to StatusInvalid.
var (
	// ErrCapability is returned by the sanity check when the driver does
	// not advertise off-channel TX capability.
	ErrCapability = errors.New("acs: driver lacks off-channel TX capability")
	// ErrDriverRequest is returned when scan or remain-on-channel is
	// refused by the driver.
	ErrDriverRequest = errors.New("acs: driver request refused")
	// ErrDriverEvent is returned when a driver event arrives carrying a
	// non-zero status.
	ErrDriverEvent = errors.New("acs: driver event reported failure status")
	// ErrEmptySurvey is returned when every dwell completed but no
	// measurement was ever gathered.
	ErrEmptySurvey = errors.New("acs: no survey data collected")
	// ErrSelection is returned when survey data exists but no usable
	// channel survives scoring. Equivalent to ErrNoUsableChannel but kept
	// distinct so callers can distinguish "never surveyed" from
	// "surveyed, nothing usable" in logs.
	ErrSelection = errors.New("acs: unable to compute an ideal channel")
	// ErrHandoff is returned when the bring-up collaborator reports
	// failure after the channel was already chosen.
	ErrHandoff = errors.New("acs: bring-up failed")
	// ErrOddLoop is returned when advance unexpectedly reports StatusValid
	// from within a pass re-arm (every channel disabled mid-sweep). See
	// open question #2 in SPEC_FULL.md §13: this is treated as an
	// explicit internal invariant violation rather than a silent
	// fallthrough.
	ErrOddLoop = errors.New("acs: pass re-arm produced no channels to survey")
)
