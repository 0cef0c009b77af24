// Package store provides the persistent key-value blob storage the local
// caches (tiles, categories) sit on. Each cache owns a single JSON blob under
// a well-known key, so the on-disk shape stays inspectable with any sqlite
// client.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal key-value blob store. Implementations must tolerate
// concurrent use; last write wins on a shared key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
