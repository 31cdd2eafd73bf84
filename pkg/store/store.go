// Package store defines the content-addressed backend consulted by the
// mover's READ and WRITE handlers.
//
// Content is keyed by an opaque identifier derived from the data (the mover
// never interprets it). Implementations live in the subpackages: memory
// (ephemeral, for tests and development), badger (embedded persistent store),
// and s3 (object storage).
package store

import (
	"context"
	"errors"
)

// ID is an opaque content identifier.
type ID string

// ErrNotFound indicates the identifier is not present in the backend. The
// connection handler maps it to a NotFound response so clients can branch on
// absence versus failure.
var ErrNotFound = errors.New("content not found")

// Store is the query/write interface of the content-addressed backend.
//
// Implementations must be safe for concurrent use: every connection handler
// shares the same Store.
type Store interface {
	// Get returns the content stored under id, or ErrNotFound.
	Get(ctx context.Context, id ID) ([]byte, error)

	// Put stores data under id, overwriting any previous content.
	Put(ctx context.Context, id ID, data []byte) error

	// Exists reports whether id is present without fetching the content.
	Exists(ctx context.Context, id ID) (bool, error)

	// Close releases backend resources.
	Close() error
}
