package acs

import (
	"fmt"
	"sync"
)

// TransitionFunc is called after every state transition, including the
// terminal ones, which it sees before cleanup clears the per-channel survey
// data. It runs with the controller's lock held. Implementations must not
// block the controller for long; wire it to an unbuffered send on a
// channel the daemon's event loop selects on, not to a synchronous network
// call.
type TransitionFunc func(from, to State, iface *Iface)

// Controller is the top-level ACS state machine (§4.5). One Controller
// drives exactly one Iface for the lifetime of a single ACS invocation; a
// new invocation reuses the same Controller after a terminal transition
// has run cleanup.
type Controller struct {
	mu sync.Mutex

	iface   *Iface
	driver  Driver
	bringup BringUp
	logger  Logger

	state      State
	onTransition TransitionFunc
}

// Option configures optional Controller behavior.
type Option func(*Controller)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithTransitionHook attaches a callback invoked on every state change.
func WithTransitionHook(f TransitionFunc) Option {
	return func(c *Controller) { c.onTransition = f }
}

// NewController builds a Controller over iface, backed by driver for
// radio operations and bringup for applying the final decision.
func NewController(iface *Iface, driver Driver, bringup BringUp, opts ...Option) *Controller {
	c := &Controller{
		iface:   iface,
		driver:  driver,
		bringup: bringup,
		logger:  nopLogger{},
		state:   StateIdle,
	}
	iface.DrvFlags = driver.Flags()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentChannel reports the channel most recently selected by a run, if
// any (ok is false until a run has selected a channel). The value is kept
// even if the bring-up of that channel then failed.
func (c *Controller) CurrentChannel() (chanNum int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.iface.Conf.Channel == 0 {
		return 0, false
	}
	return c.iface.Conf.Channel, true
}

func (c *Controller) setState(s State) {
	from := c.state
	c.state = s
	if c.onTransition != nil {
		c.onTransition(from, s, c.iface)
	}
}

// Init starts a new ACS invocation (the acs_init analogue). It runs the
// sanity check and, if it passes, issues the trigger-only initial scan.
// Returns StatusACS if the decision is now in progress (await
// HandleScanComplete), or StatusInvalid on immediate failure.
func (c *Controller) Init() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("acs: automatic channel selection started")

	c.setState(StateSanity)
	if err := c.sanityCheck(); err != nil {
		return c.fail(StateSanity, err)
	}

	c.setState(StateInitialScan)
	status, err := c.initScan()
	if err != nil {
		return c.fail(StateInitialScan, err)
	}
	return status, nil
}

// sanityCheck implements §4.6. Per SPEC_FULL.md §13 decision #1, the
// inverted chans_surveyed branch from the original is removed outright;
// only the driver capability is checked. A non-zero chansSurveyed at this
// point indicates a caller bug (cleanup was skipped somewhere), logged but
// not fatal.
func (c *Controller) sanityCheck() error {
	if c.iface.chansSurveyed != 0 {
		c.logger.Warn("acs: chans_surveyed non-zero at a fresh invocation, cleanup may have been skipped",
			"chans_surveyed", c.iface.chansSurveyed)
	}

	if c.iface.DrvFlags&DrvOffchannelTX == 0 {
		return ErrCapability
	}
	return nil
}

// initScan issues the trigger-only initial scan (§12 supplemented
// feature). Per SPEC_FULL.md §13 decision #3, success maps directly to
// StatusACS with no intermediate integer status to reinterpret.
func (c *Controller) initScan() (Status, error) {
	c.logger.Debug("acs: issuing initial scan to kick off the hardware")

	if err := c.driver.Scan(ScanParams{}); err != nil {
		return StatusInvalid, fmt.Errorf("%w: initial scan: %v", ErrDriverRequest, err)
	}
	return StatusACS, nil
}

// HandleScanComplete is invoked by the driver event pump once the initial
// scan issued by Init completes. It resets survey state, arms the first
// pass, and issues the first ROC request (InitialScan -> Surveying).
func (c *Controller) HandleScanComplete() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitialScan {
		return StatusInvalid, fmt.Errorf("acs: scan-complete event in state %s, expected InitialScan", c.state)
	}

	c.logger.Debug("acs: using survey based algorithm",
		"acs_num_req_surveys", c.iface.Conf.AcsNumReqSurveys,
		"acs_roc_duration_ms", c.iface.Conf.AcsRocDurationMs)

	cleanup(c.iface)
	c.iface.acsNumCompletedSurveys = 0

	c.setState(StateSurveying)

	status, err := c.studyNextFreq()
	if err != nil {
		return c.fail(StateSurveying, err)
	}
	if status != StatusACS {
		return c.fail(StateSurveying, fmt.Errorf("acs: unexpected status %s arming first pass", status))
	}
	return status, nil
}

// studyNextFreq is the acs_study_next_freq analogue: it wraps the ROC
// iterator's advance step (§4.4) over the current driver and cursor.
func (c *Controller) studyNextFreq() (Status, error) {
	return advance(c.iface, c.driver.RemainOnChannel)
}

// HandleRocStarted is the notify_acs_roc analogue: informational unless
// the driver reports a non-zero status, in which case the whole invocation
// fails.
func (c *Controller) HandleRocStarted(freqMHz, durationMs, status int) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if status != 0 {
		return c.fail(c.state, fmt.Errorf("%w: remain-on-channel start on %d MHz, status=%d", ErrDriverEvent, freqMHz, status))
	}

	c.logger.Debug("acs: off-channel", "freq_mhz", freqMHz, "duration_ms", durationMs)
	return StatusACS, nil
}

// HandleRocCancelled is the notify_acs_roc_cancel analogue: the trigger to
// pull the survey dump for the dwell that just ended and advance the
// cursor (§4.5 Surveying row).
func (c *Controller) HandleRocCancelled(freqMHz, durationMs, status int) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if status != 0 {
		return c.fail(c.state, fmt.Errorf("%w: remain-on-channel cancel on %d MHz, status=%d", ErrDriverEvent, freqMHz, status))
	}

	return c.rocNext(freqMHz)
}

// rocNext is the acs_roc_next analogue.
func (c *Controller) rocNext(freqMHz int) (Status, error) {
	surveys, err := c.driver.SurveyFreq(freqMHz)
	if err != nil {
		return c.fail(c.state, fmt.Errorf("%w: survey dump for %d MHz: %v", ErrDriverRequest, freqMHz, err))
	}

	if ch := c.iface.channelByFreq(freqMHz); ch != nil {
		wasEmpty := ch.SurveyCount() == 0
		for _, s := range surveys {
			ch.addSurvey(s)
		}
		if wasEmpty && ch.SurveyCount() > 0 {
			c.iface.chansSurveyed++
		}
	}

	c.iface.offChannelFreqIdx++

	status, err := c.studyNextFreq()
	switch status {
	case StatusValid:
		return c.studyComplete()
	case StatusACS:
		return status, nil
	default:
		return c.fail(c.state, err)
	}
}

// studyComplete is the acs_study_complete analogue: it runs when a full
// pass over the channel list has finished. If more passes are required it
// re-arms the cursor and continues surveying; otherwise it moves to
// Deciding.
func (c *Controller) studyComplete() (Status, error) {
	c.setState(StatePassComplete)
	c.iface.acsNumCompletedSurveys++

	if c.iface.acsNumCompletedSurveys < c.iface.Conf.AcsNumReqSurveys {
		c.iface.offChannelFreqIdx = 0
		c.setState(StateSurveying)

		status, err := c.studyNextFreq()
		switch status {
		case StatusACS:
			return status, nil
		case StatusValid:
			// Decision #2: fail explicitly instead of falling through a
			// shared failure path.
			return c.fail(StateSurveying, ErrOddLoop)
		default:
			return c.fail(StateSurveying, err)
		}
	}

	c.setState(StateDeciding)
	return c.decide()
}

// decide is the acs_study_complete tail / acs_find_ideal_chan call site:
// it runs the selector and, on success, hands off to the bring-up
// collaborator (§4.5 Deciding, Handoff rows).
func (c *Controller) decide() (Status, error) {
	if c.iface.chansSurveyed == 0 {
		return c.fail(StateDeciding, ErrEmptySurvey)
	}

	c.iface.recomputeLowestNF()

	ideal, err := SelectIdeal(c.iface.Mode, c.iface.lowestNF)
	if err != nil {
		return c.fail(StateDeciding, fmt.Errorf("%w: %v", ErrSelection, err))
	}

	c.logger.Info("acs: ideal channel selected",
		"chan", ideal.Chan, "freq_mhz", ideal.Freq,
		"interference_factor", ideal.surveyInterferenceFactor)

	c.iface.Conf.Channel = ideal.Chan

	c.setState(StateHandoff)
	status, err := c.bringup.Complete(c.iface)
	if status != StatusValid {
		if err == nil {
			err = fmt.Errorf("bring-up returned status %s", status)
		}
		return c.fail(StateHandoff, fmt.Errorf("%w: %v", ErrHandoff, err))
	}

	c.setState(StateTerminatedOK)
	cleanup(c.iface)
	c.logger.Info("acs: completed", "chan", c.iface.Conf.Channel)
	return StatusValid, nil
}

// fail transitions to Terminated-Fail, cleans up, and logs the phase that
// failed (§7: "a single error log line describing the phase that failed").
func (c *Controller) fail(phase State, err error) (Status, error) {
	c.setState(StateTerminatedFail)
	cleanup(c.iface)
	c.logger.Error("acs: failed to start", "phase", phase.String(), "error", err.Error())
	return StatusInvalid, err
}
