// Package hunk implements the arena that backs every engine allocation.
//
// # Overview
//
// The arena is one contiguous block reserved at startup and never grown.
// Memory is handed out from both ends in stack fashion, and the only way to
// release it is to reset one of the two stacks to a previously taken mark.
//
//	+---------------------------+ Size()
//	| high hunk allocations     |
//	|   (video buffers, temp)   |
//	+---------------------------+ HighMark()
//	|                           |
//	| cachable memory           |  owned by hunk/cache, evictable
//	|                           |
//	+---------------------------+ LowMark()
//	| low hunk allocations      |
//	|   (level data, strings)   |
//	+---------------------------+ Floor()
//	| zone block                |  carved once, managed by hunk/zone
//	+---------------------------+ 0
//
// # Allocation
//
//	a, err := hunk.Reserve(64 << 20)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	mark := a.MarkLow()
//	blk, buf, err := a.AllocLow(4096, "edicts")
//	...
//	a.ResetLow(mark) // releases "edicts" and everything above it
//
// Every allocation is 16-byte aligned and zero filled. Sizes are rounded up
// to 16 bytes, so UsedLow and UsedHigh always report aligned totals.
//
// # Handles
//
// AllocLow and AllocHigh return a Block in addition to the bytes. A Block
// records the serial number of the allocation; once a reset releases it,
// Bytes(block) fails with ErrStaleBlock instead of handing out memory that
// now belongs to someone else.
//
// # Cache interaction
//
// The bytes between the two marks are not free: hunk/cache keeps evictable
// entries there. Before a stack grows, the arena calls its Reclaimer with the
// bounds the gap will have afterwards, and the cache moves or evicts entries
// that fall outside them.
//
// # Errors
//
// Exhaustion, bad resets and invariant violations are marked with ErrFatal.
// The arena never terminates the process itself; pkg/memory decides that.
//
// # Thread Safety
//
// Arena instances are not thread-safe. The engine drives them from its frame
// loop only.
package hunk
