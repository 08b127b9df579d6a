package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/acs-wifi/acsd/acspb"
	_ "github.com/acs-wifi/acsd/acspb/jsoncodec"
	"github.com/acs-wifi/acsd/pkg/acs"
	"github.com/acs-wifi/acsd/pkg/analytics"
	"github.com/acs-wifi/acsd/pkg/audit"
	"github.com/acs-wifi/acsd/pkg/bringup"
	"github.com/acs-wifi/acsd/pkg/driver"
	"github.com/acs-wifi/acsd/pkg/health"
	"github.com/acs-wifi/acsd/pkg/history"
	"github.com/acs-wifi/acsd/pkg/iface"
	"github.com/acs-wifi/acsd/pkg/logx"
	"github.com/acs-wifi/acsd/pkg/metrics"
	"github.com/acs-wifi/acsd/pkg/mqtt"
	"github.com/acs-wifi/acsd/pkg/pidfile"
	"github.com/acs-wifi/acsd/pkg/uci"
)

var (
	configPath = flag.String("config", "/etc/config/acs", "Path to UCI configuration file")
	pidPath    = flag.String("pid-file", "/tmp/acsd.pid", "Path to PID file")
	logLevel   = flag.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	version    = flag.Bool("version", false, "Show version information")
	foreground = flag.Bool("foreground", false, "Run in foreground mode (don't daemonize)")
	dryRun     = flag.Bool("dry-run", false, "Log the bring-up action instead of applying it")
	force      = flag.Bool("force", false, "Force start even if another instance is running, by removing its PID file")
	simulate   = flag.Bool("simulate", false, "Drive the engine against the deterministic fake driver instead of nl80211")
)

const (
	AppName    = "acsd"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	effectiveLogLevel := "info"
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	logger := logx.NewLogger(effectiveLogLevel, AppName)

	pidFile := pidfile.New(*pidPath)
	running, existingPID, err := pidFile.CheckRunning()
	if err != nil {
		logger.Error("failed to check for running instance", "error", err)
		os.Exit(1)
	}
	if running {
		if *force {
			logger.Warn("another instance is running, but force flag specified", "existing_pid", existingPID)
			if err := pidFile.ForceRemove(); err != nil {
				logger.Error("failed to remove existing pid file", "error", err)
				os.Exit(1)
			}
		} else {
			logger.Error("another instance is already running", "existing_pid", existingPID, "pid_file", *pidPath)
			fmt.Fprintf(os.Stderr, "Error: %s is already running with PID %d\n", AppName, existingPID)
			os.Exit(1)
		}
	}
	if err := pidFile.Create(); err != nil {
		logger.Error("failed to create pid file", "error", err, "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error("failed to remove pid file", "error", err)
		}
	}()

	logger.Info("starting acsd", "version", AppVersion, "pid", os.Getpid(), "foreground", *foreground)

	cfg, err := uci.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
		logger.SetLevel(cfg.LogLevel)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	logger.Info("configuration loaded", "interface", cfg.Interface, "band", cfg.Band, "regdomain", cfg.RegDomain, "trigger", cfg.Trigger, "dry_run", cfg.DryRun)

	mode, err := iface.BuildMode(cfg.RegDomain, cfg.Band, cfg.UseDFS)
	if err != nil {
		logger.Error("failed to build interface mode", "error", err)
		os.Exit(1)
	}
	acsIface := &acs.Iface{
		Name: cfg.Interface,
		Mode: mode,
		Conf: &acs.Config{
			AcsNumReqSurveys: cfg.AcsNumReqSurveys,
			AcsRocDurationMs: cfg.AcsRocDurationMs,
		},
	}

	uciClient := uci.NewUCI(logger)
	bringupCollab := bringup.New(bringup.Config{
		Radio:         cfg.Interface,
		DryRun:        cfg.DryRun,
		ReloadTimeout: 20 * time.Second,
	}, uciClient, logger)

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.Audit.Path, cfg.Audit.Checksum, logger)
		if err != nil {
			logger.Error("failed to open audit store", "error", err, "path", cfg.Audit.Path)
			os.Exit(1)
		}
		defer auditStore.Close()
	}

	var historyStore *history.Store
	if cfg.History.Enabled {
		historyStore, err = history.Open(cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history store", "error", err, "path", cfg.History.Path)
			os.Exit(1)
		}
		defer historyStore.Close()
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(logger)
		if err := metricsServer.Start(cfg.Metrics.Listen); err != nil {
			logger.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Stop()
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(&mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Retain:      cfg.MQTT.Retain,
			Enabled:     cfg.MQTT.Enabled,
		}, logger)
		if err := mqttClient.Connect(); err != nil {
			logger.Error("failed to connect to mqtt broker", "error", err)
		} else {
			defer mqttClient.Disconnect()
		}
	}

	d := &daemon{
		cfg:          cfg,
		logger:       logger,
		iface:        acsIface,
		audit:        auditStore,
		history:      historyStore,
		metrics:      metricsServer,
		mqtt:         mqttClient,
		pidFile:      pidFile,
		startedAt:    time.Now(),
		transitionCh: make(chan transitionEvent),
		perf:         logx.NewPerformanceLogger(logger),
	}
	go d.runEventLoop()

	var healthServer *health.Server
	if cfg.Health.Enabled {
		healthServer = health.NewServer(d, logger)
		if err := healthServer.Start(cfg.Health.Listen); err != nil {
			logger.Error("failed to start health server", "error", err)
			os.Exit(1)
		}
		defer healthServer.Stop()
	}
	d.health = healthServer

	sink := &controllerSink{}
	var drv acs.Driver
	if *simulate {
		drv = driver.NewFake(sink)
	} else {
		drv = driver.NewNL80211(cfg.Interface, logger, sink)
	}

	ctrl := acs.NewController(acsIface, drv, bringupCollab,
		acs.WithLogger(logger),
		acs.WithTransitionHook(d.onTransition),
	)
	sink.ctrl = ctrl
	d.ctrl = ctrl

	if cfg.GRPC.Enabled {
		grpcServer := grpc.NewServer()
		acspb.RegisterAcsServer(grpcServer, d)
		ln, err := net.Listen("tcp", cfg.GRPC.Listen)
		if err != nil {
			logger.Error("failed to listen for grpc control plane", "error", err, "listen", cfg.GRPC.Listen)
			os.Exit(1)
		}
		go func() {
			if err := grpcServer.Serve(ln); err != nil {
				logger.Error("grpc server stopped", "error", err)
			}
		}()
		logger.Info("grpc control plane listening", "addr", cfg.GRPC.Listen)
		defer grpcServer.GracefulStop()
	}

	if cfg.Trigger == "boot" {
		if _, err := d.Trigger(context.Background(), &acspb.TriggerRequest{Trigger: "boot"}); err != nil {
			logger.Error("boot-trigger run failed to start", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig)
}

// controllerSink forwards driver completion events to the controller. It
// exists because the driver must be constructed with a sink before the
// controller it ultimately points at exists; ctrl is back-filled once
// NewController returns.
type controllerSink struct {
	ctrl *acs.Controller
}

func (s *controllerSink) HandleScanComplete() (acs.Status, error) { return s.ctrl.HandleScanComplete() }
func (s *controllerSink) HandleRocStarted(freqMHz, durationMs, status int) (acs.Status, error) {
	return s.ctrl.HandleRocStarted(freqMHz, durationMs, status)
}
func (s *controllerSink) HandleRocCancelled(freqMHz, durationMs, status int) (acs.Status, error) {
	return s.ctrl.HandleRocCancelled(freqMHz, durationMs, status)
}

// daemon implements acspb.AcsServer and pkg/health.StatusProvider over a
// single Controller, and fans every terminal transition out to audit,
// history, metrics and mqtt.
type daemon struct {
	cfg     *uci.Config
	logger  *logx.Logger
	iface   *acs.Iface
	ctrl    *acs.Controller
	audit   *audit.Store
	history *history.Store
	metrics *metrics.Server
	mqtt    *mqtt.Client
	health  *health.Server
	pidFile *pidfile.PIDFile

	startedAt time.Time

	// transitionCh is the unbuffered handoff the controller's
	// TransitionFunc hook sends on (see onTransition). It exists because
	// the hook runs inside Controller's locked critical section, where
	// sync.Mutex's non-reentrancy means calling back into the controller
	// (State/CurrentChannel) or doing audit/history/mqtt I/O would
	// deadlock or stall the engine; runEventLoop does that work on its
	// own goroutine instead.
	transitionCh chan transitionEvent

	// perf times each non-terminal phase the controller passes through
	// (Sanity, InitialScan, Surveying, PassComplete, Deciding, Handoff),
	// touched only from runEventLoop's goroutine, never concurrently.
	perf    *logx.PerformanceLogger
	perfCtx *logx.PerformanceContext

	mu          sync.Mutex
	runID       string
	runStart    time.Time
	runTrigger  string
	runRecorded bool
}

// transitionEvent is a snapshot of everything runEventLoop needs to react
// to a state change, captured synchronously inside onTransition (while the
// controller still holds its lock and, for a terminal transition, before
// cleanup clears the per-channel survey state).
type transitionEvent struct {
	from, to  acs.State
	ifaceName string
	channel   int
	channels  []channelSnapshot
}

type channelSnapshot struct {
	chanNum      int
	freqMHz      int
	interference float64
	surveys      []acs.Survey
}

func (d *daemon) State() acs.State { return d.ctrl.State() }

func (d *daemon) CurrentChannel() (int, bool) { return d.ctrl.CurrentChannel() }

// Trigger implements acspb.AcsServer.
func (d *daemon) Trigger(ctx context.Context, req *acspb.TriggerRequest) (*acspb.TriggerResponse, error) {
	d.mu.Lock()
	if st := d.ctrl.State(); !st.Terminal() && st != acs.StateIdle {
		d.mu.Unlock()
		return &acspb.TriggerResponse{Accepted: false, Reason: fmt.Sprintf("run already in progress (state=%s)", st)}, nil
	}
	if d.pidFile != nil {
		if err := d.pidFile.LockRun(); err != nil {
			d.mu.Unlock()
			return &acspb.TriggerResponse{Accepted: false, Reason: err.Error()}, nil
		}
	}

	trig := req.Trigger
	if trig == "" {
		trig = "manual"
	}
	runID := uuid.New().String()
	d.runID = runID
	d.runTrigger = trig
	d.runStart = time.Now()
	d.runRecorded = false
	d.mu.Unlock()

	d.logger.Info("acs run triggered", "run_id", runID, "trigger", trig)

	// Controller.Init's transition hook (d.onTransition) fires on every
	// state change including a synchronous sanity-check failure, so the
	// terminal-state bookkeeping in finishRun always runs exactly once,
	// off runEventLoop; this call site only needs the return value to
	// shape the RPC response.
	status, err := d.ctrl.Init()
	if status == acs.StatusInvalid {
		return &acspb.TriggerResponse{Accepted: false, RunID: runID, Reason: errString(err)}, nil
	}
	return &acspb.TriggerResponse{Accepted: true, RunID: runID}, nil
}

// Status implements acspb.AcsServer.
func (d *daemon) Status(ctx context.Context, req *acspb.StatusRequest) (*acspb.StatusResponse, error) {
	d.mu.Lock()
	runID := d.runID
	d.mu.Unlock()

	resp := &acspb.StatusResponse{State: d.ctrl.State().String(), RunID: runID}
	if ch, ok := d.ctrl.CurrentChannel(); ok {
		resp.Channel = int32(ch)
		resp.HasChannel = true
	}
	return resp, nil
}

// onTransition is the acs.TransitionFunc wired into the controller. It
// runs inside Controller's locked critical section (see controller.go's
// TransitionFunc doc), so it must not call back into the controller or
// block on I/O. It only snapshots what runEventLoop will need — for a
// terminal transition that means every channel's survey data, read here
// because cleanup() clears it immediately after this hook returns — and
// hands the snapshot off on transitionCh.
func (d *daemon) onTransition(from, to acs.State, ifc *acs.Iface) {
	evt := transitionEvent{
		from:      from,
		to:        to,
		ifaceName: ifc.Name,
		channel:   ifc.Conf.Channel,
	}
	if to.Terminal() {
		evt.channels = make([]channelSnapshot, 0, len(ifc.Mode.Channels))
		for _, c := range ifc.Mode.Channels {
			evt.channels = append(evt.channels, channelSnapshot{
				chanNum:      c.Chan,
				freqMHz:      c.Freq,
				interference: c.InterferenceFactor(),
				surveys:      c.Surveys(),
			})
		}
	}
	d.transitionCh <- evt
}

// runEventLoop is the daemon's own goroutine for everything onTransition
// cannot safely do itself: publishing to the health stream and MQTT, and
// (on a terminal transition) recording the run to audit/history/metrics.
func (d *daemon) runEventLoop() {
	for evt := range d.transitionCh {
		d.handleTransition(evt)
	}
}

func (d *daemon) handleTransition(evt transitionEvent) {
	if d.perfCtx != nil {
		var perfErr error
		if evt.to == acs.StateTerminatedFail {
			perfErr = fmt.Errorf("phase %s failed", evt.from)
		}
		d.perfCtx.Complete(perfErr)
		d.perfCtx = nil
	}
	if !evt.to.Terminal() {
		d.perfCtx = d.perf.StartOperation(context.Background(), evt.to.String())
	}

	if d.health != nil {
		d.health.Broadcast(health.Event{
			Kind:      "transition",
			Payload:   map[string]string{"from": evt.from.String(), "to": evt.to.String()},
			Timestamp: time.Now(),
		})
	}
	if d.mqtt != nil {
		d.mu.Lock()
		runID := d.runID
		d.mu.Unlock()
		if err := d.mqtt.PublishTransition(mqtt.TransitionEvent{
			RunID:     runID,
			Interface: evt.ifaceName,
			From:      evt.from.String(),
			To:        evt.to.String(),
			Timestamp: time.Now(),
		}); err != nil {
			d.logger.Debug("failed to publish transition", "error", err)
		}
	}

	if evt.to.Terminal() {
		d.finishRun(evt)
	}
}

// finishRun records a completed or failed run's outcome, using only data
// captured in evt — never the live controller or iface, both of which may
// already belong to a new run by the time this goroutine gets to it.
func (d *daemon) finishRun(evt transitionEvent) {
	d.mu.Lock()
	runID := d.runID
	trig := d.runTrigger
	start := d.runStart
	if runID == "" || d.runRecorded {
		d.mu.Unlock()
		return
	}
	d.runRecorded = true
	d.mu.Unlock()

	if d.pidFile != nil {
		if err := d.pidFile.UnlockRun(); err != nil {
			d.logger.Warn("failed to release run lock", "error", err)
		}
	}

	outcome := "invalid"
	if evt.to == acs.StateTerminatedOK {
		outcome = "valid"
	}

	ch := evt.channel
	var freq, surveys int
	var ifactor float64
	for _, c := range evt.channels {
		if c.chanNum == ch {
			freq = c.freqMHz
			surveys = len(c.surveys)
			ifactor = c.interference
			break
		}
	}

	now := time.Now()

	if d.metrics != nil {
		d.metrics.RunsTotal.WithLabelValues(outcome, trig).Inc()
		d.metrics.RunDuration.Observe(now.Sub(start).Seconds())
		d.metrics.ChannelsConsidered.Set(float64(len(evt.channels)))
		if outcome == "valid" {
			d.metrics.WinningInterference.Set(ifactor)
		}
	}

	if d.audit != nil {
		rec := audit.Record{
			RunID:              runID,
			Interface:          evt.ifaceName,
			Trigger:            trig,
			Outcome:            outcome,
			Channel:            ch,
			FreqMHz:            freq,
			InterferenceFactor: ifactor,
			SurveysConsidered:  surveys,
			StartedAt:          start,
			CompletedAt:        now,
		}
		if _, err := d.audit.Append(rec); err != nil {
			d.logger.Error("failed to append audit record", "error", err, "run_id", runID)
		}
	}

	if d.history != nil {
		if err := d.history.RecordRun(runID, evt.ifaceName, trig, outcome, ch, start, now); err != nil {
			d.logger.Error("failed to record run history", "error", err, "run_id", runID)
		}
		for _, c := range evt.channels {
			for _, sv := range c.surveys {
				if err := d.history.RecordSurvey(runID, evt.ifaceName, c.chanNum, c.freqMHz, c.interference, sv); err != nil {
					d.logger.Debug("failed to record survey history", "error", err)
				}
			}
		}
	}

	if d.mqtt != nil && outcome == "valid" {
		if err := d.mqtt.PublishDecision(mqtt.DecisionEvent{
			RunID:              runID,
			Interface:          evt.ifaceName,
			Channel:            ch,
			FreqMHz:            freq,
			InterferenceFactor: ifactor,
			SurveysConsidered:  surveys,
			Timestamp:          now,
		}); err != nil {
			d.logger.Debug("failed to publish decision", "error", err)
		}
	}

	if d.history != nil && outcome == "valid" && freq != 0 {
		if corr, err := analytics.BusyFractionCorrelation(d.history, freq, 50); err == nil {
			d.logger.Debug("busy-fraction correlation", "freq_mhz", freq, "r2", corr.R2, "slope", corr.Slope, "samples", corr.Samples)
		}
	}

	d.perf.LogMetrics()
	d.perf.LogSlowOperations(200 * time.Millisecond)
	d.perf.LogHighErrorRates(80.0)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
