package zone

import "github.com/cockroachdb/errors"

var (
	// ErrNoSpace indicates no free block is large enough. Always fatal.
	ErrNoSpace = errors.New("zone: out of memory")

	// ErrCorrupt indicates a damaged header, guard or block list. Always fatal.
	ErrCorrupt = errors.New("zone: corrupt")

	// ErrDoubleFree indicates Free on a block that is already free. Always fatal.
	ErrDoubleFree = errors.New("zone: freed a freed pointer")

	// ErrBadRef indicates a reference outside the zone or not at a payload. Always fatal.
	ErrBadRef = errors.New("zone: bad reference")

	// ErrBadTag indicates tag 0, which is reserved for free blocks.
	ErrBadTag = errors.New("zone: tag 0 is reserved")

	// ErrTooSmall indicates a zone buffer below the minimum size.
	ErrTooSmall = errors.New("zone: buffer too small")
)
