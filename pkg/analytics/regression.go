// Package analytics runs a post-hoc linear regression over archived
// survey history to report how strongly channel busy-fraction predicts
// the interference factor the engine computed, purely as an operator
// diagnostic. It reads from pkg/history and is never consulted by
// pkg/acs; nothing here can influence a channel decision.
package analytics

import (
	"fmt"

	"github.com/sajari/regression"

	"github.com/acs-wifi/acsd/pkg/history"
)

// Correlation summarizes a fitted regression of interference factor on
// channel busy fraction across the survey history for one frequency.
type Correlation struct {
	FreqMHz   int
	Samples   int
	R2        float64
	Intercept float64
	Slope     float64
}

// BusyFractionCorrelation fits interference_factor ~ busy_fraction over
// the most recent surveys recorded for freqMHz, using the same
// ordinary-least-squares regression.Regression type this tree's
// retrieved examples use for small diagnostic fits.
func BusyFractionCorrelation(store *history.Store, freqMHz, sampleLimit int) (*Correlation, error) {
	rows, err := store.RecentSurveys(freqMHz, sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("analytics: load surveys: %w", err)
	}
	if len(rows) < 3 {
		return nil, fmt.Errorf("analytics: need at least 3 samples, got %d", len(rows))
	}

	r := new(regression.Regression)
	r.SetObserved("interference_factor")
	r.SetVar(0, "busy_fraction")

	for _, row := range rows {
		if row.ChannelTime == 0 {
			continue
		}
		busyFraction := float64(row.ChannelTimeBusy) / float64(row.ChannelTime)
		r.Train(regression.DataPoint(row.InterferenceFactor, []float64{busyFraction}))
	}

	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("analytics: fit regression: %w", err)
	}

	return &Correlation{
		FreqMHz:   freqMHz,
		Samples:   len(rows),
		R2:        r.R2,
		Intercept: r.Coeff(0),
		Slope:     r.Coeff(1),
	}, nil
}
