package hunk

import "github.com/cockroachdb/errors"

// ErrFatal marks errors after which the memory model can no longer be trusted.
// Use IsFatal or errors.Is(err, ErrFatal) to test for it.
var ErrFatal = errors.New("fatal allocation error")

var (
	// ErrNoSpace indicates the low and high stacks would cross. Always fatal.
	ErrNoSpace = errors.New("hunk: out of memory")

	// ErrBadSize indicates a negative or unusable size.
	ErrBadSize = errors.New("hunk: bad size")

	// ErrBadMark indicates a reset to a mark that was never recorded, belongs to
	// the other stack, or lies above the current mark. Always fatal.
	ErrBadMark = errors.New("hunk: bad reset mark")

	// ErrStaleBlock indicates a Block released by a reset.
	ErrStaleBlock = errors.New("hunk: stale block")

	// ErrCarve indicates a carve attempted after low stack allocations.
	ErrCarve = errors.New("hunk: carve after low allocation")

	// ErrCorrupt indicates a violated arena invariant. Always fatal.
	ErrCorrupt = errors.New("hunk: corrupt")

	// ErrReserve indicates the backing block could not be reserved. Always fatal.
	ErrReserve = errors.New("hunk: reserve failed")

	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("hunk: arena closed")
)

// Fatal attaches the ErrFatal marker to err.
func Fatal(err error) error {
	return errors.Mark(err, ErrFatal)
}

// IsFatal reports whether err carries the ErrFatal marker.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
