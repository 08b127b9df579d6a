// Package history is a diagnostics-only survey archive: every survey
// measurement collected during an ACS run is appended here for offline
// inspection, the same plain database/sql-over-sqlite3 idiom the pack
// uses for time-series observation logging. Nothing here feeds back
// into pkg/acs; the decision engine never reads from this package.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/acs-wifi/acsd/pkg/acs"
)

// Store persists survey observations to a local sqlite3 database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite3 database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS surveys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			interface TEXT NOT NULL,
			channel INTEGER,
			freq_mhz INTEGER,
			channel_time INTEGER,
			channel_time_busy INTEGER,
			channel_time_tx INTEGER,
			noise_floor INTEGER,
			interference_factor REAL,
			observed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_surveys_run_id ON surveys(run_id);
		CREATE INDEX IF NOT EXISTS idx_surveys_freq ON surveys(freq_mhz);

		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			interface TEXT NOT NULL,
			trigger TEXT,
			outcome TEXT,
			winning_channel INTEGER,
			started_at TIMESTAMP,
			completed_at TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordSurvey appends one survey observation for a channel surveyed
// during runID. Takes plain values rather than a live *acs.Channel so
// callers can record a snapshot taken before the channel's accumulated
// state was reset, without needing write access to acs.Channel's private
// fields.
func (s *Store) RecordSurvey(runID, iface string, chanNum, freqMHz int, interferenceFactor float64, sv acs.Survey) error {
	_, err := s.db.Exec(
		`INSERT INTO surveys
			(run_id, interface, channel, freq_mhz, channel_time, channel_time_busy, channel_time_tx, noise_floor, interference_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, iface, chanNum, freqMHz, sv.ChannelTime, sv.ChannelTimeBusy, sv.ChannelTimeTx, sv.NF, interferenceFactor,
	)
	if err != nil {
		return fmt.Errorf("history: record survey: %w", err)
	}
	return nil
}

// RecordRun upserts the summary row for a completed or failed ACS run.
func (s *Store) RecordRun(runID, iface, trigger, outcome string, winningChannel int, startedAt, completedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, interface, trigger, outcome, winning_channel, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			outcome=excluded.outcome,
			winning_channel=excluded.winning_channel,
			completed_at=excluded.completed_at`,
		runID, iface, trigger, outcome, winningChannel, startedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// SurveyRow is one archived observation, as returned by RecentSurveys.
type SurveyRow struct {
	RunID              string
	Interface          string
	Channel            int
	FreqMHz            int
	ChannelTime         uint64
	ChannelTimeBusy     uint64
	ChannelTimeTx       uint64
	NoiseFloor          int8
	InterferenceFactor  float64
	ObservedAt          time.Time
}

// RunRow is one archived run summary, as returned by RecentRuns.
type RunRow struct {
	RunID          string
	Interface      string
	Trigger        string
	Outcome        string
	WinningChannel int
	StartedAt      time.Time
	CompletedAt    time.Time
}

// RecentRuns returns up to limit of the most recently completed runs,
// newest first, for acsctl's -history flag.
func (s *Store) RecentRuns(limit int) ([]RunRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, interface, trigger, outcome, winning_channel, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.Interface, &r.Trigger, &r.Outcome, &r.WinningChannel, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentSurveys returns up to limit of the most recently recorded survey
// observations for freqMHz, newest first.
func (s *Store) RecentSurveys(freqMHz int, limit int) ([]SurveyRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, interface, channel, freq_mhz, channel_time, channel_time_busy, channel_time_tx, noise_floor, interference_factor, observed_at
		FROM surveys WHERE freq_mhz = ? ORDER BY id DESC LIMIT ?`, freqMHz, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []SurveyRow
	for rows.Next() {
		var r SurveyRow
		if err := rows.Scan(&r.RunID, &r.Interface, &r.Channel, &r.FreqMHz,
			&r.ChannelTime, &r.ChannelTimeBusy, &r.ChannelTimeTx, &r.NoiseFloor,
			&r.InterferenceFactor, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
