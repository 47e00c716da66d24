// Package storage defines the remote object-store boundary the upload engine
// talks to, with a platform HTTP implementation and an S3/minio one.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one existing remote object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ChunkedUpload is an in-progress chunked transfer of a single object.
// Chunks are delivered in index order; Complete finalizes the object and
// Abort discards whatever was sent.
type ChunkedUpload interface {
	PutChunk(ctx context.Context, index int, data []byte) error
	Complete(ctx context.Context) error
	Abort(ctx context.Context) error
}

// ObjectStore is the narrow surface the engine needs from remote storage.
// All implementations are configured with a single base endpoint and an
// injected token/credential source; components never build URLs inline.
type ObjectStore interface {
	// List returns up to maxFiles objects whose keys start with prefix.
	List(ctx context.Context, prefix string, maxFiles int) ([]ObjectInfo, error)

	// Exists reports whether an object with exactly this key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Put streams a whole object body. The remote object is created or
	// overwritten.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// StartChunked begins a chunked upload of size bytes split into
	// chunkSize slices.
	StartChunked(ctx context.Context, key string, size, chunkSize int64) (ChunkedUpload, error)
}
