package cache

import (
	"container/heap"
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/internal/format"
	"github.com/joshuapare/hunkkit/internal/logger"
)

// DefaultSlots is the number of entries a cache can track.
const DefaultSlots = 1024

// Handle refers to a cache entry. The zero Handle is never valid.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// EvictFunc observes evictions. It must not call back into the cache.
type EvictFunc func(name string, size int)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithSlots sets the maximum number of live entries.
func WithSlots(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.nslots = n
		}
	}
}

// WithEvictHook installs fn to be called for every evicted entry.
func WithEvictHook(fn EvictFunc) Option {
	return func(c *Cache) { c.onEvict = fn }
}

type slot struct {
	idx       uint32
	gen       uint32
	live      bool
	pinned    bool
	name      format.Name
	offset    int
	size      int // aligned
	length    int // requested
	rank      uint64
	heapIndex int
}

// Cache manages entries between the arena's stacks.
type Cache struct {
	arena   *hunk.Arena
	log     *slog.Logger
	onEvict EvictFunc
	nslots  int

	slots []slot
	free  []uint32 // unused slot indexes
	addr  []*slot  // live entries by ascending offset
	lru   lruHeap
	clock uint64

	hits, misses, evictions, moves uint64
}

// New creates a cache over a's gap and installs it as a's reclaimer.
func New(a *hunk.Arena, opts ...Option) *Cache {
	c := &Cache{arena: a, nslots: DefaultSlots}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Or(c.log)

	c.slots = make([]slot, c.nslots)
	c.free = make([]uint32, 0, c.nslots)
	for i := c.nslots - 1; i >= 0; i-- {
		c.slots[i].idx = uint32(i)
		c.slots[i].gen = 1
		c.slots[i].heapIndex = -1
		c.free = append(c.free, uint32(i))
	}
	a.SetReclaimer(c)
	return c
}

// Alloc places a zero-filled entry of size bytes, evicting least recently
// touched entries as needed.
func (c *Cache) Alloc(size int, name string) (Handle, []byte, error) {
	return c.alloc(size, name, false)
}

// AllocPinned is Alloc for an entry that is never evicted to make room. Only
// Free, Flush or a stack growing over it remove a pinned entry.
func (c *Cache) AllocPinned(size int, name string) (Handle, []byte, error) {
	return c.alloc(size, name, true)
}

func (c *Cache) alloc(size int, name string, pinned bool) (Handle, []byte, error) {
	if size < 0 {
		return Handle{}, nil, errors.Wrapf(hunk.ErrBadSize, "cache: alloc %d bytes", size)
	}
	if c.arena.Raw() == nil {
		return Handle{}, nil, hunk.ErrClosed
	}
	need := max(format.Align16(size), format.Alignment)
	low, high := c.arena.LowMark(), c.arena.HighMark()
	if need > high-low {
		c.log.Warn("cache request exceeds gap", "name", name, "size", size, "gap", high-low)
		return Handle{}, nil, errors.Wrapf(ErrExhausted, "cache: %q needs %d bytes, gap is %d", name, need, high-low)
	}
	if len(c.free) == 0 {
		if !c.evictLRU() {
			return Handle{}, nil, errors.Wrapf(ErrExhausted, "cache: no free slot for %q", name)
		}
	}

	for {
		if off, ok := c.fit(need, low, high); ok {
			return c.place(off, need, size, name, pinned)
		}
		if !c.evictLRU() {
			c.log.Warn("cache exhausted", "name", name, "size", size)
			return Handle{}, nil, errors.Wrapf(ErrExhausted, "cache: no room for %q (%d bytes) after eviction", name, need)
		}
	}
}

// fit returns the lowest offset in [low, high) with need free bytes.
func (c *Cache) fit(need, low, high int) (int, bool) {
	pos := low
	for _, s := range c.addr {
		if s.offset-pos >= need {
			return pos, true
		}
		pos = max(pos, s.offset+s.size)
	}
	if high-pos >= need {
		return pos, true
	}
	return 0, false
}

func (c *Cache) place(off, need, size int, name string, pinned bool) (Handle, []byte, error) {
	idx := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]

	s := &c.slots[idx]
	s.live = true
	s.pinned = pinned
	s.name = format.MakeName(name)
	s.offset = off
	s.size = need
	s.length = size
	c.clock++
	s.rank = c.clock
	s.heapIndex = -1
	c.insertAddr(s)
	if !pinned {
		heap.Push(&c.lru, s)
	}

	buf := c.arena.Raw()[off : off+need : off+need]
	clear(buf)
	return Handle{slot: idx, gen: s.gen}, buf[:size], nil
}

func (c *Cache) insertAddr(s *slot) {
	i, _ := slices.BinarySearchFunc(c.addr, s.offset, func(e *slot, off int) int { return e.offset - off })
	c.addr = slices.Insert(c.addr, i, s)
}

func (c *Cache) removeAddr(s *slot) {
	i := slices.Index(c.addr, s)
	if i >= 0 {
		c.addr = slices.Delete(c.addr, i, i+1)
	}
}

// evictLRU evicts the least recently touched unpinned entry.
func (c *Cache) evictLRU() bool {
	if c.lru.Len() == 0 {
		return false
	}
	s := heap.Pop(&c.lru).(*slot) //nolint:errcheck // lruHeap only holds *slot
	c.evict(s)
	return true
}

// evict releases s and reports it to the hook.
func (c *Cache) evict(s *slot) {
	name, size := s.name.String(), s.size
	c.evictions++
	c.release(s)
	c.log.Debug("cache evict", "name", name, "size", size)
	if c.onEvict != nil {
		c.onEvict(name, size)
	}
}

func (c *Cache) release(s *slot) {
	if s.heapIndex >= 0 {
		heap.Remove(&c.lru, s.heapIndex)
	}
	c.removeAddr(s)
	s.live = false
	s.pinned = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	c.free = append(c.free, s.idx)
}

func (c *Cache) lookup(h Handle) (*slot, error) {
	if c.arena.Raw() == nil {
		return nil, hunk.ErrClosed
	}
	if h.gen == 0 || int(h.slot) >= len(c.slots) {
		return nil, ErrEvicted
	}
	s := &c.slots[h.slot]
	if !s.live || s.gen != h.gen {
		return nil, ErrEvicted
	}
	return s, nil
}

func (c *Cache) bytes(s *slot) []byte {
	end := s.offset + s.size
	return c.arena.Raw()[s.offset : s.offset+s.length : end]
}

// Check returns the entry's data and marks it most recently used. ok is false
// once the entry has been evicted or freed.
func (c *Cache) Check(h Handle) ([]byte, bool) {
	s, err := c.lookup(h)
	if err != nil {
		c.misses++
		return nil, false
	}
	c.hits++
	c.touch(s)
	return c.bytes(s), true
}

// Touch marks the entry most recently used.
func (c *Cache) Touch(h Handle) error {
	s, err := c.lookup(h)
	if err != nil {
		return err
	}
	c.touch(s)
	return nil
}

func (c *Cache) touch(s *slot) {
	c.clock++
	s.rank = c.clock
	if s.heapIndex >= 0 {
		heap.Fix(&c.lru, s.heapIndex)
	}
}

// Data returns the entry's data without touching it.
func (c *Cache) Data(h Handle) ([]byte, error) {
	s, err := c.lookup(h)
	if err != nil {
		return nil, err
	}
	return c.bytes(s), nil
}

// Name returns the name the entry was allocated with.
func (c *Cache) Name(h Handle) (string, error) {
	s, err := c.lookup(h)
	if err != nil {
		return "", err
	}
	return s.name.String(), nil
}

// Resident reports whether h still refers to a live entry.
func (c *Cache) Resident(h Handle) bool {
	_, err := c.lookup(h)
	return err == nil
}

// Free releases the entry. The eviction hook is not called.
func (c *Cache) Free(h Handle) error {
	s, err := c.lookup(h)
	if err != nil {
		return err
	}
	c.release(s)
	return nil
}

// SetPinned pins or unpins the entry.
func (c *Cache) SetPinned(h Handle, pinned bool) error {
	s, err := c.lookup(h)
	if err != nil {
		return err
	}
	if s.pinned == pinned {
		return nil
	}
	s.pinned = pinned
	if pinned {
		heap.Remove(&c.lru, s.heapIndex)
	} else {
		heap.Push(&c.lru, s)
	}
	return nil
}

// Flush evicts every entry, pinned ones included.
func (c *Cache) Flush() {
	n := len(c.addr)
	for len(c.addr) > 0 {
		c.evict(c.addr[len(c.addr)-1])
	}
	if n > 0 {
		c.log.Debug("cache flushed", "entries", n)
	}
}
