package panoview

import (
	"panoview/internal/gpu"
	"panoview/internal/pool"
	"panoview/internal/source"
)

// Error sentinels of the engine, re-exported for embedders.
var (
	// ErrAborted marks a tile load cancelled on purpose, by eviction or
	// shutdown. Benign.
	ErrAborted = pool.ErrAborted
	// ErrResourceCreation marks a GPU texture-creation failure. Fatal to
	// that tile only; the tile returns to empty and may be retried.
	ErrResourceCreation = gpu.ErrResourceCreation
	// ErrNoURL means a source cannot produce a fetchable URL for a tile.
	ErrNoURL = source.ErrNoURL
)

// IsAborted reports whether err is a benign cancellation rather than a
// real fetch or decode failure.
func IsAborted(err error) bool {
	return pool.IsAborted(err)
}
