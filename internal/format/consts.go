// Package format holds the byte-level layout shared by the hunk, zone and
// cache packages: alignment rules, the inline zone block header, and the
// fixed-width name fields used for diagnostics. Everything in the arena is
// little-endian so a dump of the backing block reads the same on every host.
package format

const (
	// Alignment is the guaranteed alignment of every hunk, zone payload and
	// cache allocation.
	Alignment = 16

	// AlignmentMask is Alignment - 1.
	AlignmentMask = Alignment - 1

	// NameLen is the width of the name field recorded for hunk and cache
	// entries. Longer names are truncated.
	NameLen = 16
)

// Zone block header layout. Every block in the zone, free or in use, starts
// with this header:
//
//	Offset  Size  Description
//	------  ----  ---------------------------------------------
//	 0x00    4    total block size including header (int32)
//	 0x04    4    tag, 0 when the block is free (int32)
//	 0x08    4    ZoneID sentinel (uint32)
//	 0x0C    4    offset of the previous block, NoPrev at the head (int32)
//
// In-use blocks also carry ZoneID in their last 4 bytes as a trailing guard.
// The next block always starts at offset + size.
const (
	ZoneHeaderSize = 0x10
	ZoneSizeOffset = 0x00
	ZoneTagOffset  = 0x04
	ZoneIDOffset   = 0x08
	ZonePrevOffset = 0x0C

	// ZoneGuardSize is the trailing guard carried by in-use blocks.
	ZoneGuardSize = 4

	// ZoneID marks a well-formed block header.
	ZoneID = 0x1d4a11

	// ZoneMinFragment is the smallest remainder worth splitting into its own
	// free block.
	ZoneMinFragment = 64

	// NoPrev is the prev field of the first block.
	NoPrev = -1
)
