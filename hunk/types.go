package hunk

import "github.com/joshuapare/hunkkit/internal/format"

// Region identifies which part of the arena an allocation came from.
type Region uint8

const (
	// RegionFloor holds startup carve-outs below the low stack (the zone).
	RegionFloor Region = iota + 1
	// RegionLow is the stack growing up from the floor.
	RegionLow
	// RegionHigh is the stack growing down from the top of the arena.
	RegionHigh
)

func (r Region) String() string {
	switch r {
	case RegionFloor:
		return "floor"
	case RegionLow:
		return "low"
	case RegionHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Entry describes one named stack allocation.
type Entry struct {
	Name   string
	Region Region
	Offset int
	Size   int // aligned size
	Serial uint64
}

// entry is the side-table record behind an Entry.
type entry struct {
	name   format.Name
	offset int
	size   int
	serial uint64
}

func (e entry) export(r Region) Entry {
	return Entry{Name: e.name.String(), Region: r, Offset: e.offset, Size: e.size, Serial: e.serial}
}

// Block is a handle to a stack allocation.
type Block struct {
	region Region
	index  int
	serial uint64
	offset int
	size   int
}

// Region returns the stack the block was allocated from.
func (b Block) Region() Region { return b.region }

// Offset returns the block's offset from the start of the arena.
func (b Block) Offset() int { return b.offset }

// Len returns the requested (unaligned) size of the block.
func (b Block) Len() int { return b.size }

// IsZero reports whether b is the zero Block.
func (b Block) IsZero() bool { return b.serial == 0 }

// Mark is a saved stack position.
type Mark struct {
	region Region
	offset int
	depth  int
	serial uint64
}

// Region returns the stack the mark belongs to.
func (m Mark) Region() Region { return m.region }

// Offset returns the saved low or high mark.
func (m Mark) Offset() int { return m.offset }

// Reclaimer vacates arena bytes that a stack is about to claim.
//
// Reclaim is called before a stack grows with the bounds [low, high) the gap
// between the stacks will have afterwards. Anything the reclaimer keeps in
// the gap must lie inside those bounds when Reclaim returns.
type Reclaimer interface {
	Reclaim(low, high int)
}
