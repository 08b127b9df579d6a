// Package driver provides radio driver capability implementations
// consumed by pkg/acs: a real one backed by the `iw` command line tool,
// and a deterministic fake for tests and simulated operator tooling.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/acs-wifi/acsd/pkg/acs"
	"github.com/acs-wifi/acsd/pkg/logx"
)

// EventSink is how the driver reports asynchronous scan/ROC completion
// back to an acs.Controller. The daemon wires this to the controller's
// Handle* methods; NL80211 and Fake call it from their own goroutines, and
// the controller's mutex serializes those calls.
type EventSink interface {
	HandleScanComplete() (acs.Status, error)
	HandleRocStarted(freqMHz, durationMs, status int) (acs.Status, error)
	HandleRocCancelled(freqMHz, durationMs, status int) (acs.Status, error)
}

// NL80211 drives a real radio via the `iw` command line tool, run through
// exec.Command. It has no netlink binding of
// its own; `iw` is the stable shell interface to nl80211 on OpenWrt-class
// devices.
type NL80211 struct {
	iface   string
	logger  *logx.Logger
	limiter *rate.Limiter
	sink    EventSink

	rocSeq int
}

// NewNL80211 constructs a driver for the named network interface. limiter
// bounds how often Scan/RemainOnChannel may shell out, guarding against a
// misconfigured acs_roc_duration_ms of 0 hammering the kernel driver with
// back-to-back requests.
func NewNL80211(iface string, logger *logx.Logger, sink EventSink) *NL80211 {
	return &NL80211{
		iface:   iface,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(20*time.Millisecond), 4),
		sink:    sink,
	}
}

// Scan runs `iw dev <iface> scan trigger` and, once that invocation
// returns, reports completion to the sink from a new goroutine. No
// separate scan-finished event is awaited.
func (d *NL80211) Scan(acs.ScanParams) error {
	if err := d.limiter.Wait(context.Background()); err != nil {
		return err
	}

	cmd := exec.Command("iw", "dev", d.iface, "scan", "trigger")
	if out, err := cmd.CombinedOutput(); err != nil {
		d.logger.Error("driver: scan trigger failed", "interface", d.iface, "output", string(out), "error", err)
		return fmt.Errorf("iw scan trigger: %w", err)
	}

	go func() {
		if _, err := d.sink.HandleScanComplete(); err != nil {
			d.logger.Error("driver: scan-complete handling failed", "error", err)
		}
	}()
	return nil
}

// RemainOnChannel parks the interface on freqMHz for durationMs using
// `iw ... set freq` plus a sleep to emulate a bounded dwell, then reports
// the started/cancelled event pair the controller expects. Devices whose
// `iw` build exposes a native `iw ... roc` subcommand should prefer that
// over this channel-switch emulation; both satisfy the same acs.Driver
// contract.
func (d *NL80211) RemainOnChannel(freqMHz, durationMs int) error {
	if err := d.limiter.Wait(context.Background()); err != nil {
		return err
	}

	d.rocSeq++
	seq := d.rocSeq

	cmd := exec.Command("iw", "dev", d.iface, "set", "freq", strconv.Itoa(freqMHz))
	out, err := cmd.CombinedOutput()
	if err != nil {
		d.logger.Error("driver: remain-on-channel failed", "freq_mhz", freqMHz, "output", string(out), "error", err)
		return fmt.Errorf("iw set freq %d: %w", freqMHz, err)
	}

	go func() {
		if _, err := d.sink.HandleRocStarted(freqMHz, durationMs, 0); err != nil {
			d.logger.Error("driver: roc-started handling failed", "seq", seq, "error", err)
			return
		}
		time.Sleep(time.Duration(durationMs) * time.Millisecond)
		if _, err := d.sink.HandleRocCancelled(freqMHz, durationMs, 0); err != nil {
			d.logger.Error("driver: roc-cancelled handling failed", "seq", seq, "error", err)
		}
	}()
	return nil
}

var surveyBlockRe = regexp.MustCompile(`^Survey data from (\S+)`)
var freqLineRe = regexp.MustCompile(`frequency:\s+(\d+) MHz`)
var noiseLineRe = regexp.MustCompile(`noise:\s+(-?\d+) dBm`)
var channelActiveRe = regexp.MustCompile(`channel active time:\s+(\d+) ms`)
var channelBusyRe = regexp.MustCompile(`channel busy time:\s+(\d+) ms`)
var channelTxRe = regexp.MustCompile(`channel transmit time:\s+(\d+) ms`)

// SurveyFreq parses `iw dev <iface> survey dump` and returns the survey
// blocks matching freqMHz, parsed with regular expressions over the
// command's text output.
func (d *NL80211) SurveyFreq(freqMHz int) ([]acs.Survey, error) {
	cmd := exec.Command("iw", "dev", d.iface, "survey", "dump")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("iw survey dump: %w", err)
	}

	var surveys []acs.Survey
	var cur struct {
		freq            int
		activeMs, busyMs, txMs int
		noise           int
		have            bool
	}

	flush := func() {
		if !cur.have || cur.freq != freqMHz {
			return
		}
		surveys = append(surveys, acs.Survey{
			ChannelTime:     uint64(cur.activeMs) * 1000,
			ChannelTimeBusy: uint64(cur.busyMs) * 1000,
			ChannelTimeTx:   uint64(cur.txMs) * 1000,
			NF:              int8(cur.noise),
		})
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Survey data from"):
			flush()
			cur = struct {
				freq                   int
				activeMs, busyMs, txMs int
				noise                  int
				have                   bool
			}{}
		case freqLineRe.MatchString(line):
			m := freqLineRe.FindStringSubmatch(line)
			cur.freq, _ = strconv.Atoi(m[1])
			cur.have = true
		case noiseLineRe.MatchString(line):
			m := noiseLineRe.FindStringSubmatch(line)
			cur.noise, _ = strconv.Atoi(m[1])
		case channelActiveRe.MatchString(line):
			m := channelActiveRe.FindStringSubmatch(line)
			cur.activeMs, _ = strconv.Atoi(m[1])
		case channelBusyRe.MatchString(line):
			m := channelBusyRe.FindStringSubmatch(line)
			cur.busyMs, _ = strconv.Atoi(m[1])
		case channelTxRe.MatchString(line):
			m := channelTxRe.FindStringSubmatch(line)
			cur.txMs, _ = strconv.Atoi(m[1])
		}
	}
	flush()

	return surveys, nil
}

// Flags probes driver capability via `iw dev <iface> info` and reports
// off-channel TX capability when the output names a wiphy.
func (d *NL80211) Flags() acs.DrvFlag {
	cmd := exec.Command("iw", "dev", d.iface, "info")
	out, err := cmd.Output()
	if err != nil {
		d.logger.Warn("driver: could not query capability, assuming no off-channel TX", "error", err)
		return 0
	}
	if strings.Contains(string(out), "wiphy") {
		// Presence of AP-mode offchannel TX is assumed for any interface
		// iw can describe; devices that genuinely lack it fail the first
		// remain-on-channel request instead, which the controller already
		// maps to a terminal failure.
		return acs.DrvOffchannelTX
	}
	return 0
}
