// Package metrics exposes ACS run statistics to Prometheus, the same
// "Start(port)/Stop()" HTTP server lifecycle every long-running listener
// in this tree follows (metrics.Server, health.Server).
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acs-wifi/acsd/pkg/logx"
)

// Server serves a Prometheus /metrics endpoint for acsd.
type Server struct {
	logger *logx.Logger
	srv    *http.Server

	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	SurveyDwellDuration   prometheus.Histogram
	ChannelsConsidered    prometheus.Gauge
	WinningInterference   prometheus.Gauge
	DriverErrorsTotal     *prometheus.CounterVec
}

// NewServer builds a metrics server with every collector registered
// against a fresh registry, so repeated daemon restarts in the same
// process (as in tests) never hit prometheus's global-registry panic on
// duplicate registration.
func NewServer(logger *logx.Logger) *Server {
	reg := prometheus.NewRegistry()

	s := &Server{
		logger: logger,
		RunsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "acs_runs_total",
			Help: "Total ACS runs by outcome (valid, invalid).",
		}, []string{"outcome", "trigger"}),
		RunDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "acs_run_duration_seconds",
			Help:    "Wall-clock duration of a complete ACS run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		SurveyDwellDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "acs_survey_dwell_seconds",
			Help:    "Observed duration of a single remain-on-channel dwell.",
			Buckets: prometheus.DefBuckets,
		}),
		ChannelsConsidered: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "acs_channels_considered",
			Help: "Number of candidate channels in the most recent run's mode.",
		}),
		WinningInterference: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "acs_winning_interference_factor",
			Help: "Interference factor of the channel selected by the most recent run.",
		}),
		DriverErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "acs_driver_errors_total",
			Help: "Driver call failures by operation (scan, roc, survey).",
		}, []string{"operation"}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.srv = &http.Server{Handler: mux}
	return s
}

// Start begins serving /metrics on the given address (e.g. ":9120").
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics: server error", "error", err)
		}
	}()
	s.logger.Info("metrics: listening", "addr", addr)
	return nil
}

// Stop shuts the server down, allowing in-flight scrapes to finish.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
