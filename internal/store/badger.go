package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

// Record keys are "run/<timestamp>/<run id>". The fixed-width timestamp
// layout keeps the lexicographic key order equal to the chronological order.
const badgerKeyLayout = "2006-01-02T15:04:05.000000000"

const badgerKeyPrefix = "run/"

// BadgerConfig holds the configuration of an embedded badger store.
type BadgerConfig struct {
	Path string // The directory for the database files. Ignored when InMemory is set

	InMemory bool // Keep the database in memory only, useful for testing

	SyncWrites bool // Sync every write to disk, trading throughput for durability

	Log *logrus.Logger // The log for badger's internal messages, or nil to mute them
}

// DefaultBadgerConfig returns the production configuration for a store at the
// passed path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for testing, without any disk
// persistence.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// A Badger store keeps run records in an embedded badger database. It is the
// substrate of choice for long histories, where rereading a directory of json
// files on every lookup gets expensive.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the store described by the passed config. The returned
// store has to be closed after use.
func OpenBadger(config BadgerConfig) (*Badger, error) {
	options := badger.DefaultOptions(config.Path).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithNumVersionsToKeep(1)
	if config.InMemory {
		options = options.WithDir("").WithValueDir("")
	}
	if config.Log != nil {
		options = options.WithLogger(badgerLogger{log: config.Log})
	} else {
		options = options.WithLogger(nil)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("opening badger store at %s failed", config.Path), err)
	}
	return &Badger{db: db}, nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) Append(record driftwatch.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Join(fmt.Errorf("marshaling record of run %s failed", record.RunID), err)
	}

	key := badgerKeyPrefix + record.Timestamp.UTC().Format(badgerKeyLayout) + "/" + record.RunID
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Badger) ListBefore(t time.Time, limit int) ([]driftwatch.RunRecord, error) {
	var result []driftwatch.RunRecord

	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = []byte(badgerKeyPrefix)

		it := txn.NewIterator(options)
		defer it.Close()

		// Seeking in reverse positions the iterator at the largest key at or
		// before the seek key.
		seek := badgerKeyPrefix + t.UTC().Format(badgerKeyLayout) + "/"
		for it.Seek([]byte(seek)); it.Valid(); it.Next() {
			var record driftwatch.RunRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				// A single corrupt record does not invalidate the history
				continue
			}
			if !record.Timestamp.Before(t) {
				continue
			}
			result = append(result, record)
			if limit > 0 && len(result) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("listing records before %s failed", t.Format(time.RFC3339)), err)
	}
	return result, nil
}

// badgerLogger adapts a logrus logger to badger's Logger interface.
type badgerLogger struct {
	log *logrus.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf("badger: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnf("badger: "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf("badger: "+format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Tracef("badger: "+format, args...)
}
