package cache

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/hunkkit/hunk"
)

// Stats holds cache counters.
type Stats struct {
	Entries   int
	Pinned    int
	Bytes     int // aligned bytes held by entries
	Gap       int // bytes between the stacks
	Slots     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Moves     uint64
}

// EntryInfo describes one live entry.
type EntryInfo struct {
	Name   string
	Offset int
	Size   int
	Length int
	Pinned bool
	Rank   uint64
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	st := Stats{
		Entries:   len(c.addr),
		Gap:       c.arena.HighMark() - c.arena.LowMark(),
		Slots:     len(c.slots),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Moves:     c.moves,
	}
	for _, s := range c.addr {
		st.Bytes += s.size
		if s.pinned {
			st.Pinned++
		}
	}
	return st
}

// Entries returns the live entries in address order.
func (c *Cache) Entries() []EntryInfo {
	out := make([]EntryInfo, len(c.addr))
	for i, s := range c.addr {
		out[i] = EntryInfo{
			Name:   s.name.String(),
			Offset: s.offset,
			Size:   s.size,
			Length: s.length,
			Pinned: s.pinned,
			Rank:   s.rank,
		}
	}
	return out
}

// Verify checks that entries are ordered, disjoint and inside the gap, and
// that the LRU heap holds exactly the unpinned entries.
func (c *Cache) Verify() error {
	low, high := c.arena.LowMark(), c.arena.HighMark()
	pos := low
	unpinned := 0
	for i, s := range c.addr {
		if !s.live {
			return c.corrupt("entry %d (%s) is not live", i, s.name)
		}
		if s.offset < pos {
			return c.corrupt("entry %s at %d overlaps previous ending at %d", s.name, s.offset, pos)
		}
		if s.offset+s.size > high {
			return c.corrupt("entry %s [%d,%d) crosses high mark %d", s.name, s.offset, s.offset+s.size, high)
		}
		pos = s.offset + s.size
		if s.pinned {
			if s.heapIndex != -1 {
				return c.corrupt("pinned entry %s is in the LRU heap", s.name)
			}
			continue
		}
		unpinned++
		if s.heapIndex < 0 || s.heapIndex >= c.lru.Len() || c.lru[s.heapIndex] != s {
			return c.corrupt("entry %s has bad heap index %d", s.name, s.heapIndex)
		}
	}
	if unpinned != c.lru.Len() {
		return c.corrupt("LRU heap holds %d entries, %d are unpinned", c.lru.Len(), unpinned)
	}
	if live := len(c.slots) - len(c.free); live != len(c.addr) {
		return c.corrupt("%d slots in use, %d entries", live, len(c.addr))
	}
	return nil
}

func (c *Cache) corrupt(msg string, args ...any) error {
	err := errors.Wrapf(ErrCorrupt, "cache: "+msg, args...)
	c.log.Error("cache corrupt", "err", err)
	return hunk.Fatal(err)
}
