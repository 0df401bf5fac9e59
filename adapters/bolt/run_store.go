// Package bolt persists forecast runs in an embedded BoltDB file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"pollcast/domain/core"
	"pollcast/domain/forecast"
	"pollcast/internal/errors"
	"pollcast/ports"
)

const (
	runsBucket   = "runs"    // run ID -> JSON run
	byTimeBucket = "by_time" // created-at (big-endian ns) + run ID -> run ID
)

// RunStore implements ports.RunRepository on BoltDB.
type RunStore struct {
	db *bbolt.DB
}

var _ ports.RunRepository = (*RunStore)(nil)

// NewRunStore opens (creating if needed) the database at path and its buckets.
func NewRunStore(path string) (*RunStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.DatabaseError("failed to create data directory", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.DatabaseError("failed to open database "+path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, byTimeBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.DatabaseError("create bucket "+name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &RunStore{db: db}, nil
}

// Close closes the database.
func (s *RunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save inserts or replaces run.
func (s *RunStore) Save(ctx context.Context, run *forecast.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == "" {
		return errors.InvalidInput("run has no ID")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(runsBucket))
		byTime := tx.Bucket([]byte(byTimeBucket))

		if old := runs.Get([]byte(run.ID)); old != nil {
			var previous forecast.Run
			if err := json.Unmarshal(old, &previous); err == nil {
				if err := byTime.Delete(timeKey(previous.CreatedAt, previous.ID)); err != nil {
					return err
				}
			}
		}
		if err := runs.Put([]byte(run.ID), data); err != nil {
			return err
		}
		return byTime.Put(timeKey(run.CreatedAt, run.ID), []byte(run.ID))
	})
	if err != nil {
		return errors.DatabaseError("failed to save run "+run.ID.String(), err)
	}
	return nil
}

// Get loads one run.
func (s *RunStore) Get(ctx context.Context, id core.RunID) (*forecast.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var run *forecast.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		run, err = getRun(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Latest loads the run with the newest creation time.
func (s *RunStore) Latest(ctx context.Context) (*forecast.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var run *forecast.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, id := tx.Bucket([]byte(byTimeBucket)).Cursor().Last()
		if id == nil {
			return errors.NotFound("run")
		}
		var err error
		run, err = getRun(tx, core.RunID(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit run summaries, newest first. A limit of 0 or less
// returns every run.
func (s *RunStore) List(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summaries := []ports.RunSummary{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(byTimeBucket)).Cursor()
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if limit > 0 && len(summaries) >= limit {
				break
			}
			run, err := getRun(tx, core.RunID(id))
			if err != nil {
				return err
			}
			summaries = append(summaries, ports.Summarize(run))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func getRun(tx *bbolt.Tx, id core.RunID) (*forecast.Run, error) {
	data := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
	if data == nil {
		return nil, errors.NotFound("run " + id.String())
	}
	var run forecast.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.DatabaseError("corrupt run "+id.String(), err)
	}
	return &run, nil
}

// timeKey orders runs by creation time, then by ID.
func timeKey(created time.Time, id core.RunID) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(created.UnixNano()))
	return append(key, id...)
}
