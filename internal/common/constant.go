// Package common contains shared constants and sentinel errors used across
// uplink components.
package common

import "time"

// AccessTokenHeaderName is the HTTP header used to carry the bearer token on
// outbound storage requests.
const AccessTokenHeaderName = "Authorization"

const (
	// DefaultMaxConcurrentUploads caps how many tasks may be transferring
	// at once; excess submissions queue as pending.
	DefaultMaxConcurrentUploads = 3

	// DefaultLargeFileThreshold is the size at or above which a file is
	// sliced into chunks and persisted before transfer.
	DefaultLargeFileThreshold = 50 << 20

	// DefaultChunkSize is the slice size for chunked transfers.
	DefaultChunkSize = 8 << 20

	// DefaultRetryDelay is the fixed wait before the single automatic
	// retry of a failed task.
	DefaultRetryDelay = 5 * time.Second

	// DefaultSaveInterval is the period of the persistence sweep that
	// re-saves all active tasks.
	DefaultSaveInterval = 5 * time.Second

	// DefaultListLimit bounds how many remote objects a conflict check
	// requests per listing.
	DefaultListLimit = 1000
)
