package hunk

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/hunkkit/internal/format"
	"github.com/joshuapare/hunkkit/internal/logger"
	"github.com/joshuapare/hunkkit/internal/mmap"
)

// ReserveFunc obtains the backing block for an arena.
type ReserveFunc func(size int) ([]byte, func() error, error)

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger used for resets and failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) { a.log = l }
}

// WithReserveFunc replaces the platform reservation. Tests use it to
// simulate a failed reservation or to back the arena with a plain slice.
func WithReserveFunc(fn ReserveFunc) Option {
	return func(a *Arena) { a.reserve = fn }
}

// Arena is the fixed block shared by the low and high stacks, the zone and
// the cache.
type Arena struct {
	base    []byte
	release func() error
	reserve ReserveFunc
	log     *slog.Logger

	size     int // usable bytes, a multiple of 16
	floor    int // top of the carve-outs
	lowMark  int
	highMark int

	carved []entry
	low    []entry
	high   []entry

	serial uint64    // last allocation serial handed out
	epochs [4]uint64 // reset count per Region

	reclaimer Reclaimer

	tempActive bool
	tempMark   Mark

	closed bool
}

// Reserve creates an arena of size bytes. Anything short of the full block is
// a failure; there is no degraded mode.
func Reserve(size int, opts ...Option) (*Arena, error) {
	a := &Arena{reserve: mmap.Reserve}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.Or(a.log)

	usable := format.AlignDown16(size)
	if usable <= 0 {
		return nil, Fatal(errors.Wrapf(ErrReserve, "hunk: arena size %d too small", size))
	}
	base, release, err := a.reserve(size)
	if err != nil {
		return nil, Fatal(errors.Mark(errors.Wrapf(err, "hunk: reserve %d bytes", size), ErrReserve))
	}
	if len(base) < usable {
		if release != nil {
			_ = release()
		}
		return nil, Fatal(errors.Wrapf(ErrReserve, "hunk: got %d of %d bytes", len(base), size))
	}

	a.base = base[:usable:usable]
	a.release = release
	a.size = usable
	a.highMark = usable
	a.log.Debug("hunk reserved", "size", usable)
	return a, nil
}

// Close releases the backing block. Every later call fails with ErrClosed.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.base = nil
	a.carved, a.low, a.high = nil, nil, nil
	if a.release != nil {
		return a.release()
	}
	return nil
}

// SetReclaimer installs the component that keeps data in the gap between
// the stacks. At most one reclaimer is supported.
func (a *Arena) SetReclaimer(r Reclaimer) {
	a.reclaimer = r
}

// Raw returns the whole backing block. It is meant for the cache and zone,
// which manage their own sub-ranges of it.
func (a *Arena) Raw() []byte {
	return a.base
}

// Carve takes size bytes from the bottom of the arena before any low stack
// allocation exists. Carved blocks live until Close and are not counted by
// UsedLow.
func (a *Arena) Carve(size int, name string) (Block, []byte, error) {
	if a.closed {
		return Block{}, nil, ErrClosed
	}
	if len(a.low) > 0 {
		return Block{}, nil, errors.Wrapf(ErrCarve, "hunk: carve %q", name)
	}
	if size < 0 {
		return Block{}, nil, errors.Wrapf(ErrBadSize, "hunk: carve %d bytes", size)
	}
	if size > a.size || a.floor+format.Align16(size) > a.highMark {
		return Block{}, nil, Fatal(errors.Wrapf(ErrNoSpace, "hunk: carve failed on %d bytes for %q", size, name))
	}
	need := format.Align16(size)

	start := a.floor
	a.reclaim(start+need, a.highMark)
	a.floor += need
	a.lowMark = a.floor
	e := a.push(&a.carved, start, need, name)
	buf := a.zero(start, size, need)
	a.log.Debug("hunk carve", "name", name, "size", need)
	return Block{region: RegionFloor, index: len(a.carved) - 1, serial: e.serial, offset: start, size: size}, buf, nil
}

// AllocLow allocates size bytes from the low stack.
func (a *Arena) AllocLow(size int, name string) (Block, []byte, error) {
	if a.closed {
		return Block{}, nil, ErrClosed
	}
	if size < 0 {
		return Block{}, nil, errors.Wrapf(ErrBadSize, "hunk: AllocLow %d bytes", size)
	}
	if size > a.size || a.lowMark+format.Align16(size) > a.highMark {
		a.log.Warn("hunk low alloc failed", "name", name, "size", size, "free", a.FreeBytes())
		return Block{}, nil, Fatal(errors.Wrapf(ErrNoSpace, "hunk: AllocLow failed on %d bytes for %q", size, name))
	}

	need := format.Align16(size)
	start := a.lowMark
	a.reclaim(start+need, a.highMark)
	a.lowMark += need
	e := a.push(&a.low, start, need, name)
	buf := a.zero(start, size, need)
	return Block{region: RegionLow, index: len(a.low) - 1, serial: e.serial, offset: start, size: size}, buf, nil
}

// AllocHigh allocates size bytes from the high stack. An active temp
// allocation is released first.
func (a *Arena) AllocHigh(size int, name string) (Block, []byte, error) {
	if a.closed {
		return Block{}, nil, ErrClosed
	}
	if size < 0 {
		return Block{}, nil, errors.Wrapf(ErrBadSize, "hunk: AllocHigh %d bytes", size)
	}
	if err := a.releaseTemp(); err != nil {
		return Block{}, nil, err
	}
	return a.allocHigh(size, name)
}

func (a *Arena) allocHigh(size int, name string) (Block, []byte, error) {
	if size > a.size || a.highMark-format.Align16(size) < a.lowMark {
		a.log.Warn("hunk high alloc failed", "name", name, "size", size, "free", a.FreeBytes())
		return Block{}, nil, Fatal(errors.Wrapf(ErrNoSpace, "hunk: AllocHigh failed on %d bytes for %q", size, name))
	}

	need := format.Align16(size)
	start := a.highMark - need
	a.reclaim(a.lowMark, start)
	a.highMark = start
	e := a.push(&a.high, start, need, name)
	buf := a.zero(start, size, need)
	return Block{region: RegionHigh, index: len(a.high) - 1, serial: e.serial, offset: start, size: size}, buf, nil
}

// TempAlloc returns scratch space from the high stack. The previous temp
// allocation is released first, so at most one is live at a time. Any
// AllocHigh or MarkHigh also releases it.
func (a *Arena) TempAlloc(size int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if size < 0 {
		return nil, errors.Wrapf(ErrBadSize, "hunk: TempAlloc %d bytes", size)
	}
	if err := a.releaseTemp(); err != nil {
		return nil, err
	}
	mark := a.markHigh()
	_, buf, err := a.allocHigh(size, "temp")
	if err != nil {
		return nil, err
	}
	a.tempMark = mark
	a.tempActive = true
	return buf, nil
}

func (a *Arena) releaseTemp() error {
	if !a.tempActive {
		return nil
	}
	a.tempActive = false
	return a.resetHigh(a.tempMark)
}

// Bytes returns the memory behind b, or ErrStaleBlock if a reset released it.
func (a *Arena) Bytes(b Block) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	var entries []entry
	switch b.region {
	case RegionFloor:
		entries = a.carved
	case RegionLow:
		entries = a.low
	case RegionHigh:
		entries = a.high
	default:
		return nil, errors.Wrap(ErrStaleBlock, "hunk: zero block")
	}
	if b.index < 0 || b.index >= len(entries) || entries[b.index].serial != b.serial {
		return nil, errors.Wrapf(ErrStaleBlock, "hunk: %s block at %d (serial %d)", b.region, b.offset, b.serial)
	}
	return a.base[b.offset : b.offset+b.size : b.offset+entries[b.index].size], nil
}

// Size returns the usable size of the arena.
func (a *Arena) Size() int { return a.size }

// Floor returns the top of the carve-outs, where the low stack begins.
func (a *Arena) Floor() int { return a.floor }

// LowMark returns the current top of the low stack.
func (a *Arena) LowMark() int { return a.lowMark }

// HighMark returns the current bottom of the high stack.
func (a *Arena) HighMark() int { return a.highMark }

// UsedLow returns the bytes held by the low stack.
func (a *Arena) UsedLow() int { return a.lowMark - a.floor }

// UsedHigh returns the bytes held by the high stack.
func (a *Arena) UsedHigh() int { return a.size - a.highMark }

// Carved returns the bytes taken by carve-outs.
func (a *Arena) Carved() int { return a.floor }

// FreeBytes returns the size of the gap between the stacks. The cache lives
// in this gap, so cached bytes are included.
func (a *Arena) FreeBytes() int { return a.highMark - a.lowMark }

// Epoch returns how many resets region r has seen.
func (a *Arena) Epoch(r Region) uint64 {
	if int(r) >= len(a.epochs) {
		return 0
	}
	return a.epochs[r]
}

// Entries returns the named allocations of region r, bottom of the stack first.
func (a *Arena) Entries(r Region) []Entry {
	var src []entry
	switch r {
	case RegionFloor:
		src = a.carved
	case RegionLow:
		src = a.low
	case RegionHigh:
		src = a.high
	}
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = e.export(r)
	}
	return out
}

// Check validates the arena invariants: marks ordered, entries contiguous
// and aligned, and each stack's entries ending exactly at its mark.
func (a *Arena) Check() error {
	if a.closed {
		return ErrClosed
	}
	if !(0 <= a.floor && a.floor <= a.lowMark && a.lowMark <= a.highMark && a.highMark <= a.size) {
		return Fatal(errors.Wrapf(ErrCorrupt, "hunk: marks out of order floor=%d low=%d high=%d size=%d",
			a.floor, a.lowMark, a.highMark, a.size))
	}
	check := func(r Region, entries []entry, start, end int, up bool) error {
		pos := start
		var last uint64
		for i, e := range entries {
			if !format.IsAligned16(e.offset) || !format.IsAligned16(e.size) {
				return Fatal(errors.Wrapf(ErrCorrupt, "hunk: %s entry %d misaligned", r, i))
			}
			if e.serial <= last {
				return Fatal(errors.Wrapf(ErrCorrupt, "hunk: %s entry %d serial %d not increasing", r, i, e.serial))
			}
			last = e.serial
			if up {
				if e.offset != pos {
					return Fatal(errors.Wrapf(ErrCorrupt, "hunk: %s entry %d at %d, expected %d", r, i, e.offset, pos))
				}
				pos += e.size
			} else {
				if e.offset+e.size != pos {
					return Fatal(errors.Wrapf(ErrCorrupt, "hunk: %s entry %d ends at %d, expected %d", r, i, e.offset+e.size, pos))
				}
				pos = e.offset
			}
		}
		if pos != end {
			return Fatal(errors.Wrapf(ErrCorrupt, "hunk: %s stack ends at %d, mark is %d", r, pos, end))
		}
		return nil
	}
	if err := check(RegionFloor, a.carved, 0, a.floor, true); err != nil {
		return err
	}
	if err := check(RegionLow, a.low, a.floor, a.lowMark, true); err != nil {
		return err
	}
	return check(RegionHigh, a.high, a.size, a.highMark, false)
}

func (a *Arena) push(stack *[]entry, offset, size int, name string) entry {
	a.serial++
	e := entry{name: format.MakeName(name), offset: offset, size: size, serial: a.serial}
	*stack = append(*stack, e)
	return e
}

func (a *Arena) zero(start, size, need int) []byte {
	buf := a.base[start : start+need : start+need]
	clear(buf)
	return buf[:size]
}

func (a *Arena) reclaim(low, high int) {
	if a.reclaimer != nil {
		a.reclaimer.Reclaim(low, high)
	}
}
