// Package badger implements a persistent content store on BadgerDB.
//
// BadgerDB is an embedded LSM key-value store, which suits the mover's access
// pattern: point lookups and writes keyed by content identifier, no scans on
// the hot path. One mover process owns the database directory exclusively.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/mover/pkg/store"
)

// keyPrefix namespaces content keys so future record types can share the
// database.
var keyPrefix = []byte("content/")

// BadgerStore is a content store backed by an embedded BadgerDB instance.
type BadgerStore struct {
	db *badger.DB
}

// Config contains BadgerDB-specific settings.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory runs BadgerDB without persistence. Useful for tests.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites makes every write durable before Put returns. Slower but
	// safe against power loss.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// New opens (or creates) the BadgerDB database described by cfg.
func New(ctx context.Context, cfg Config) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger store: path is required")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database at %q: %w", cfg.Path, err)
	}

	return &BadgerStore{db: db}, nil
}

func contentKey(id store.ID) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

// Get returns the content stored under id.
func (s *BadgerStore) Get(ctx context.Context, id store.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", id, err)
	}

	return data, nil
}

// Put stores data under id.
func (s *BadgerStore) Put(ctx context.Context, id store.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(contentKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("badger put %s: %w", id, err)
	}

	return nil
}

// Exists reports whether id is present without copying the value.
func (s *BadgerStore) Exists(ctx context.Context, id store.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(contentKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger exists %s: %w", id, err)
	}

	return true, nil
}

// Close closes the underlying database. Pending writes are flushed.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
