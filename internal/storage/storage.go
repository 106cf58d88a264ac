// Package storage persists scoring runs for the order ML pipeline. It uses
// BoltDB as the underlying storage engine: one bucket of run headers and one
// of per-row predictions keyed by run.
//
// Every run and its predictions are written in a single transaction, so a
// reader never sees a run without its rows.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	runsBucket        = "runs"        // Bucket name for run headers
	predictionsBucket = "predictions" // Bucket name for per-row predictions
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store provides persistent storage for scoring runs using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the run store at path and its buckets.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run is the header of one scoring run.
type Run struct {
	ID        uuid.UUID `json:"id"`
	Task      string    `json:"task"`
	ModelPath string    `json:"model_path"`
	CreatedAt time.Time `json:"created_at"`
	Rows      int       `json:"rows"`
	Threshold float64   `json:"threshold,omitempty"`
}

// NewRun returns a run header with a fresh id and the current time.
func NewRun(task, modelPath string) Run {
	return Run{ID: uuid.New(), Task: task, ModelPath: modelPath, CreatedAt: time.Now().UTC()}
}

// StoreRun writes run and its predictions in one transaction. Rows is set
// from len(predictions).
func (s *Store) StoreRun(run Run, predictions []Prediction) (Run, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Rows = len(predictions)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(runsBucket))
		if runs.Get(run.ID[:]) != nil {
			return fmt.Errorf("run %s already stored", run.ID)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		if err := runs.Put(run.ID[:], data); err != nil {
			return err
		}
		return putPredictions(tx.Bucket([]byte(predictionsBucket)), run.ID, predictions)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// GetRun returns the header of run id.
func (s *Store) GetRun(id uuid.UUID) (Run, error) {
	var run Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get(id[:])
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// ListRuns returns the stored runs of task, newest first. An empty task
// lists every run.
func (s *Store) ListRuns(task string) ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil // Skip malformed records
			}
			if task == "" || run.Task == task {
				runs = append(runs, run)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

// RunsInRange returns the runs created within [start, end], oldest first.
func (s *Store) RunsInRange(start, end time.Time) ([]Run, error) {
	all, err := s.ListRuns("")
	if err != nil {
		return nil, err
	}
	var out []Run
	for i := len(all) - 1; i >= 0; i-- {
		r := all[i]
		if !r.CreatedAt.Before(start) && !r.CreatedAt.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteRun removes a run and its predictions.
func (s *Store) DeleteRun(id uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(runsBucket))
		if runs.Get(id[:]) == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err := runs.Delete(id[:]); err != nil {
			return err
		}
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()
		prefix := id[:]
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
