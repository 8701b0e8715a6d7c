package cache

import (
	"bytes"
	"cmp"
	"slices"
)

// Reclaim vacates everything outside [low, high). Displaced entries are moved
// into free space inside the new bounds, pinned and most recently used
// entries first. Whatever does not fit is evicted.
func (c *Cache) Reclaim(low, high int) {
	var displaced []*slot
	for _, s := range c.addr {
		if s.offset < low || s.offset+s.size > high {
			displaced = append(displaced, s)
		}
	}
	if len(displaced) == 0 {
		return
	}

	// Snapshot before any move: a destination may overlap the part of a
	// displaced entry that still lies inside the new bounds.
	saved := make([][]byte, len(displaced))
	raw := c.arena.Raw()
	for i, s := range displaced {
		saved[i] = bytes.Clone(raw[s.offset : s.offset+s.size])
		c.removeAddr(s)
	}

	order := make([]int, len(displaced))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(i, j int) int {
		a, b := displaced[i], displaced[j]
		if a.pinned != b.pinned {
			if a.pinned {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.rank, a.rank)
	})

	for _, i := range order {
		s := displaced[i]
		off, ok := c.fit(s.size, low, high)
		if !ok {
			c.evict(s)
			continue
		}
		copy(raw[off:off+s.size], saved[i])
		c.log.Debug("cache move", "name", s.name.String(), "from", s.offset, "to", off)
		s.offset = off
		c.insertAddr(s)
		c.moves++
	}
}
