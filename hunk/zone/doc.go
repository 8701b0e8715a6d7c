// Package zone implements the small general-purpose allocator carved from
// the bottom of the arena.
//
// # Overview
//
// The zone serves short-lived allocations whose lifetimes do not nest, such
// as command text and file names, which rules out the arena's stacks. It
// owns a fixed block (48 KiB by default) and never grows; running out of
// zone memory is fatal.
//
// # Block Layout
//
// Blocks are laid out back to back across the whole zone, each starting
// with a 16-byte header (see internal/format):
//
//	[hdr|payload......|guard][hdr|free.............][hdr|payload|guard]
//
// The header carries the block size, a tag (0 = free), the ZoneID sentinel
// and the offset of the previous block. In-use blocks also end with a ZoneID
// guard so overruns are caught by Free and Check.
//
// # Allocation
//
// Alloc walks blocks from the lowest offset and takes the first free block
// that fits (first fit). If the remainder is at least 64 bytes it is split
// off as a new free block. Free coalesces the block with free neighbours on
// both sides, so two adjacent free blocks never exist.
//
//	z, err := zone.New(buf)
//	ref, err := z.Strdup("exec autoexec.cfg")
//	...
//	err = z.Free(ref)
//
// # Integrity
//
// Check walks the block list and verifies sentinels, guards, prev links,
// offset monotonicity, the coalescing invariant and that used plus free
// bytes equal the budget. With WithDebugChecks it runs around every
// mutating call. Corruption is reported with ErrCorrupt and marked fatal.
package zone
