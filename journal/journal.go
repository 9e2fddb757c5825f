package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when no entry exists for a source.
var ErrNotFound = errors.New("journal entry not found")

var transfersBucket = []byte("transfers")

// State is the final state of one attempted transfer.
type State string

const (
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
)

// Entry records the outcome of one attempted transfer. Final outcomes only;
// there is no mid-transfer checkpointing and nothing here supports resume.
type Entry struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Direction string    `json:"direction"`
	Mode      string    `json:"mode,omitempty"`
	Bytes     int64     `json:"bytes"`
	Checksum  uint64    `json:"checksum,omitempty"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Journal defines the interface for persisting transfer outcomes.
type Journal interface {
	Record(entry *Entry) error
	Get(source string) (*Entry, error)
	Close() error
}

// BoltJournal is a Journal implementation backed by bbolt.
type BoltJournal struct {
	db *bbolt.DB
}

// NewBoltJournal opens (or creates) a journal at the given path.
func NewBoltJournal(path string) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transfersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transfers bucket: %w", err)
	}

	return &BoltJournal{db: db}, nil
}

// Record persists the outcome of one attempted transfer, keyed by source.
// A source attempted twice keeps its latest outcome.
func (j *BoltJournal) Record(entry *Entry) error {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transfersBucket)

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		if err := b.Put([]byte(entry.Source), data); err != nil {
			return fmt.Errorf("failed to put entry: %w", err)
		}

		return nil
	})
}

// Get retrieves the recorded outcome for a source.
func (j *BoltJournal) Get(source string) (*Entry, error) {
	var entry Entry
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transfersBucket)
		data := b.Get([]byte(source))
		if data == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// Close closes the underlying database.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}
