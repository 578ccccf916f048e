// Package content defines the port to the content-addressable blob store
// that holds exam documents.
package content

import "context"

// Store fetches and stores opaque JSON blobs by content hash.
type Store interface {
	// Get returns the blob for hash, or an error matching
	// shared.ErrContentFetch (shared.ErrContentNotFound on a miss).
	Get(ctx context.Context, hash string) ([]byte, error)

	// Put stores blob and returns its content hash. name is a display label
	// some backends attach as metadata.
	Put(ctx context.Context, name string, blob []byte) (string, error)
}
