package acs

// ScanParams carries scan request parameters. The engine only ever issues
// an empty scan purely to "kick off the hardware" before the first survey
// pass (§12 supplemented feature: trigger-only initial scan); it never
// inspects scan results.
type ScanParams struct{}

// Driver is the capability set the engine consumes from the radio driver
// (§6, §9 "capability polymorphism"). Both the real nl80211-backed driver
// and deterministic test fakes implement it.
type Driver interface {
	// Scan requests an initial scan; completion is delivered out of band
	// via Controller.HandleScanComplete, not a return value here.
	Scan(params ScanParams) error
	// RemainOnChannel requests a dwell of durationMs on freqMHz;
	// started/cancelled completion is delivered out of band via
	// Controller.HandleRocStarted / HandleRocCancelled.
	RemainOnChannel(freqMHz, durationMs int) error
	// SurveyFreq synchronously returns the zero or more survey
	// measurements the driver reports for freqMHz.
	SurveyFreq(freqMHz int) ([]Survey, error)
	// Flags reports the driver's capability bitfield.
	Flags() DrvFlag
}

// BringUp is the external collaborator invoked once a channel has been
// selected; it applies the decision to the running AP (§1 out-of-scope,
// §6 "bring-up collaborator"). Complete is called with iface.Conf.Channel
// already set to the chosen channel.
type BringUp interface {
	Complete(iface *Iface) (Status, error)
}

// Logger is the minimal structured-logging surface the engine needs. It is
// satisfied by *pkg/logx.Logger without pkg/acs importing pkg/logx, so the
// engine stays usable with any logger a caller already has.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

// nopLogger discards everything; used when no Logger is supplied.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
