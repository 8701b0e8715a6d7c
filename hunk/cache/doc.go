// Package cache keeps discardable data in the gap between the arena's low
// and high stacks.
//
// Entries are placed first fit in address order starting at the low mark.
// When nothing fits, the least recently touched unpinned entry is evicted
// and placement is retried. Eviction never regenerates data; it invalidates
// every Handle to the entry so the owner sees ErrEvicted and reloads.
//
// The cache registers itself as the arena's hunk.Reclaimer. Before a stack
// grows into the gap, entries in the claimed range are moved to free space
// elsewhere in the gap when possible and evicted otherwise. Handles survive
// a move.
//
// Handles are a slot index plus a generation. Releasing a slot bumps its
// generation, so stale handles are detected instead of reading memory that
// now belongs to someone else.
//
//	c := cache.New(arena)
//	h, buf, err := c.Alloc(len(pixels), "gfx/conback")
//	copy(buf, pixels)
//	...
//	if data, ok := c.Check(h); ok {
//		draw(data)
//	}
package cache
