package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Prediction is one scored row of a run.
type Prediction struct {
	Key            string  `json:"key"` // order or customer id
	Class          int     `json:"class"`
	Probability    float64 `json:"probability,omitempty"` // positive class
	HasProbability bool    `json:"has_probability"`
	Category       string  `json:"category,omitempty"` // risk or priority bucket
}

// predictionKey is the run id followed by the big-endian row index, so a
// cursor over the run prefix returns rows in their original order.
func predictionKey(run uuid.UUID, row int) []byte {
	key := make([]byte, len(run)+8)
	copy(key, run[:])
	binary.BigEndian.PutUint64(key[len(run):], uint64(row))
	return key
}

func putPredictions(b *bbolt.Bucket, run uuid.UUID, predictions []Prediction) error {
	for i, p := range predictions {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal prediction %d: %w", i, err)
		}
		if err := b.Put(predictionKey(run, i), data); err != nil {
			return err
		}
	}
	return nil
}

// GetPredictions returns the predictions of run id in row order.
func (s *Store) GetPredictions(id uuid.UUID) ([]Prediction, error) {
	var out []Prediction
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(runsBucket)).Get(id[:]) == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		prefix := id[:]
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode prediction %x: %w", k, err)
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// GetPredictionsAbove returns the predictions of run id whose positive
// probability is at least threshold, in row order.
func (s *Store) GetPredictionsAbove(id uuid.UUID, threshold float64) ([]Prediction, error) {
	all, err := s.GetPredictions(id)
	if err != nil {
		return nil, err
	}
	var out []Prediction
	for _, p := range all {
		if p.HasProbability && p.Probability >= threshold {
			out = append(out, p)
		}
	}
	return out, nil
}
