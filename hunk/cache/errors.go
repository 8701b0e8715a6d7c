package cache

import "github.com/cockroachdb/errors"

var (
	// ErrExhausted indicates the gap cannot hold the request even after
	// evicting everything evictable. Callers degrade instead of aborting.
	ErrExhausted = errors.New("cache: exhausted")

	// ErrEvicted indicates a handle whose entry was evicted or freed.
	ErrEvicted = errors.New("cache: entry evicted")

	// ErrCorrupt indicates broken bookkeeping found by Check. Always fatal.
	ErrCorrupt = errors.New("cache: corrupt")
)
