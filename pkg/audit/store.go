// Package audit is the tamper-evident decision trail for completed ACS
// runs, backed by bbolt: one bucket per record kind, JSON-encoded values,
// updates wrapped in a single bbolt transaction.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"

	"github.com/acs-wifi/acsd/pkg/logx"
)

// recordsBucket holds one entry per completed (or failed) ACS run.
// sequenceBucket holds the chain's running digest under key "head".
const (
	recordsBucket  = "decisions"
	sequenceBucket = "chain"
	headKey        = "head"
)

// Record is one audited ACS run outcome.
type Record struct {
	Seq                uint64    `json:"seq"`
	RunID              string    `json:"run_id"`
	Interface          string    `json:"interface"`
	Trigger            string    `json:"trigger"`
	Outcome            string    `json:"outcome"` // "valid" or "invalid"
	Channel            int       `json:"channel,omitempty"`
	FreqMHz            int       `json:"freq_mhz,omitempty"`
	InterferenceFactor float64   `json:"interference_factor,omitempty"`
	SurveysConsidered  int       `json:"surveys_considered"`
	Error              string    `json:"error,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`

	// Digest is blake2b-256(PrevDigest || JSON-without-digest(record)),
	// making later records tamper-evident against earlier ones: editing
	// any past record invalidates every digest computed after it.
	Digest string `json:"digest"`
}

// Store is a checksummed, append-only bbolt-backed audit trail.
type Store struct {
	db       *bolt.DB
	logger   *logx.Logger
	checksum bool

	mu       sync.Mutex
	lastHash []byte
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string, checksum bool, logger *logx.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	s := &Store{db: db, logger: logger, checksum: checksum}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{recordsBucket, sequenceBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init buckets: %w", err)
	}

	if err := s.loadHead(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadHead() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sequenceBucket))
		s.lastHash = append([]byte(nil), b.Get([]byte(headKey))...)
		return nil
	})
}

// Append writes rec to the trail, assigning it the next sequence number
// and, if checksumming is enabled, chaining its digest off the previous
// record's. It is safe for concurrent use.
func (s *Store) Append(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq uint64
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		seq, _ = b.NextSequence()
		rec.Seq = seq

		if s.checksum {
			digest, err := s.computeDigest(rec)
			if err != nil {
				return err
			}
			rec.Digest = fmt.Sprintf("%x", digest)
			s.lastHash = digest

			if err := tx.Bucket([]byte(sequenceBucket)).Put([]byte(headKey), digest); err != nil {
				return err
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return b.Put(seqKey(seq), data)
	}); err != nil {
		return Record{}, fmt.Errorf("audit: append: %w", err)
	}

	s.logger.Info("audit: decision recorded",
		"seq", seq, "run_id", rec.RunID, "outcome", rec.Outcome, "channel", rec.Channel)
	return rec, nil
}

// computeDigest hashes the previous chain head with rec's JSON encoding
// (digest field cleared), giving each record's digest dependence on the
// full prior chain.
func (s *Store) computeDigest(rec Record) ([]byte, error) {
	rec.Digest = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal for digest: %w", err)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("blake2b: %w", err)
	}
	h.Write(s.lastHash)
	h.Write(data)
	return h.Sum(nil), nil
}

// VerifyChain walks every record in sequence order and recomputes its
// digest, returning the sequence number of the first mismatch. It returns
// 0 with a nil error when every digest matches, including when the trail
// is empty or checksumming is disabled.
func (s *Store) VerifyChain() (brokenAt uint64, err error) {
	var prev []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal seq %d: %w", seqFromKey(k), err)
			}
			if !s.checksum {
				return nil
			}

			want := rec.Digest
			rec.Digest = ""
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			h, err := blake2b.New256(nil)
			if err != nil {
				return err
			}
			h.Write(prev)
			h.Write(data)
			got := fmt.Sprintf("%x", h.Sum(nil))

			if got != want {
				brokenAt = rec.Seq
				return errChainBroken
			}
			prev, _ = hex.DecodeString(want)
			return nil
		})
	})
	if err == errChainBroken {
		return brokenAt, nil
	}
	return 0, err
}

// Recent returns up to limit most-recently-appended records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

func seqFromKey(k []byte) uint64 {
	var seq uint64
	fmt.Sscanf(string(k), "%d", &seq)
	return seq
}

type chainBrokenError struct{}

func (chainBrokenError) Error() string { return "audit: checksum chain broken" }

var errChainBroken = chainBrokenError{}
