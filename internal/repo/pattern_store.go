package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// ErrNotFound is returned when a stored record does not exist.
var ErrNotFound = errors.New("not found")

const (
	latestRunKey   = "latest"
	runKeyPrefix   = "run:"
	patternKeyPref = "pattern:"
	snapshotTTL    = 30 * 24 * time.Hour
)

// PatternSnapshot is one persisted mining run.
type PatternSnapshot struct {
	RunID    string           `json:"run_id"`
	StoredAt time.Time        `json:"stored_at"`
	Patterns []models.Pattern `json:"patterns"`
}

// PatternSnapshotStore keeps mined patterns per run in an embedded Badger database.
type PatternSnapshotStore struct {
	db *badger.DB
}

// NewPatternSnapshotStore opens (or creates) a store under dir. An empty dir keeps
// the data in memory.
func NewPatternSnapshotStore(dir string) (*PatternSnapshotStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}
	return &PatternSnapshotStore{db: db}, nil
}

// StorePatterns implements patterns.Store.
func (s *PatternSnapshotStore) StorePatterns(ctx context.Context, runID string, list []models.Pattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot, err := json.Marshal(PatternSnapshot{RunID: runID, StoredAt: time.Now().UTC(), Patterns: list})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry([]byte(runKeyPrefix+runID), snapshot).WithTTL(snapshotTTL)); err != nil {
			return err
		}
		if err := txn.Set([]byte(latestRunKey), []byte(runID)); err != nil {
			return err
		}
		for _, p := range list {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode pattern %s: %w", p.ID, err)
			}
			if err := txn.SetEntry(badger.NewEntry([]byte(patternKeyPref+p.ID), data).WithTTL(snapshotTTL)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Latest returns the most recently stored run.
func (s *PatternSnapshotStore) Latest(ctx context.Context) (PatternSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return PatternSnapshot{}, err
	}
	var snapshot PatternSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestRunKey))
		if err != nil {
			return err
		}
		runID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(append([]byte(runKeyPrefix), runID...))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snapshot)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return PatternSnapshot{}, ErrNotFound
	}
	return snapshot, err
}

// Pattern returns the last stored version of a pattern.
func (s *PatternSnapshotStore) Pattern(ctx context.Context, id string) (models.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return models.Pattern{}, err
	}
	var p models.Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(patternKeyPref + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Pattern{}, ErrNotFound
	}
	return p, err
}

// Close releases the database.
func (s *PatternSnapshotStore) Close() error {
	return s.db.Close()
}
