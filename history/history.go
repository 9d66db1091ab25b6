// Package history persists completed compliance analyses.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/DefensEye/cmmc12/analysis"
)

var bucketAnalyses = []byte("analyses")

// ErrNotFound is returned when no analysis has the requested id.
var ErrNotFound = errors.New("analysis not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// Record is one stored analysis.
type Record struct {
	ID           string           `json:"id"`
	CreatedAt    time.Time        `json:"createdAt"`
	Source       string           `json:"source"`
	FindingCount int              `json:"findingCount"`
	OverallScore int              `json:"overallScore"`
	Summary      string           `json:"summary"`
	Report       *analysis.Report `json:"report,omitempty"`
}

// Store keeps analyses in a bbolt file keyed by ULID, so key order is
// creation order.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAnalyses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history bucket: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Save stores rec, assigning an id and creation time when unset.
func (s *Store) Save(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal analysis: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnalyses).Put([]byte(rec.ID), data)
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to store analysis: %w", err)
	}
	return rec, nil
}

// Get returns the analysis stored under id.
func (s *Store) Get(id string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAnalyses).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns up to limit analyses, newest first. Stored reports are
// omitted; use Get for the full record.
func (s *Store) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	out := make([]Record, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAnalyses).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode analysis %s: %w", k, err)
			}
			rec.Report = nil
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
