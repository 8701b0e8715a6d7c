package zone

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/internal/format"
	"github.com/joshuapare/hunkkit/internal/logger"
)

// TagStatic is the tag used by Alloc and Strdup.
const TagStatic = 1

const (
	hdr   = format.ZoneHeaderSize
	guard = format.ZoneGuardSize
	// overhead is the per-block cost of an in-use allocation.
	overhead = hdr + guard
)

// Ref identifies a zone allocation by the offset of its payload. The zero
// Ref is never a valid allocation.
type Ref int32

// Option configures a Zone.
type Option func(*Zone)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(z *Zone) { z.log = l }
}

// WithDebugChecks runs Check before and after every mutating call.
func WithDebugChecks(on bool) Option {
	return func(z *Zone) { z.debug = on }
}

// Zone is a first-fit allocator with inline headers over a fixed buffer.
type Zone struct {
	buf    []byte
	budget int
	debug  bool
	log    *slog.Logger
}

// New formats buf as an empty zone holding one free block.
func New(buf []byte, opts ...Option) (*Zone, error) {
	z := &Zone{}
	for _, opt := range opts {
		opt(z)
	}
	z.log = logger.Or(z.log)

	budget := format.AlignDown16(len(buf))
	if budget < format.ZoneMinFragment {
		return nil, errors.Wrapf(ErrTooSmall, "zone: %d bytes, need at least %d", len(buf), format.ZoneMinFragment)
	}
	z.buf = buf[:budget:budget]
	z.budget = budget
	z.writeHeader(0, budget, 0, format.NoPrev)
	z.log.Debug("zone initialized", "budget", budget)
	return z, nil
}

// Budget returns the total bytes managed by the zone, headers included.
func (z *Zone) Budget() int { return z.budget }

// Close detaches the zone from its buffer. Every later call fails with
// hunk.ErrClosed.
func (z *Zone) Close() {
	z.buf = nil
	z.budget = 0
}

func (z *Zone) closed() bool { return z == nil || z.buf == nil }

// Alloc returns size zero-filled bytes tagged TagStatic.
func (z *Zone) Alloc(size int) (Ref, []byte, error) {
	return z.AllocTagged(size, TagStatic)
}

// AllocTagged returns size zero-filled bytes carrying tag. Tag 0 marks free
// blocks and is rejected.
func (z *Zone) AllocTagged(size, tag int) (Ref, []byte, error) {
	if z.closed() {
		return 0, nil, hunk.ErrClosed
	}
	if tag == 0 {
		return 0, nil, ErrBadTag
	}
	if size < 0 {
		return 0, nil, errors.Wrapf(hunk.ErrBadSize, "zone: alloc %d bytes", size)
	}
	if err := z.debugCheck("alloc"); err != nil {
		return 0, nil, err
	}

	off, err := z.allocBlock(size, tag)
	if err != nil {
		return 0, nil, err
	}
	p := off + hdr
	payload := z.buf[p : p+size : p+size]
	clear(z.buf[p : off+z.size(off)-guard])

	if err := z.debugCheck("alloc"); err != nil {
		return 0, nil, err
	}
	return Ref(p), payload, nil
}

// allocBlock finds, splits and tags a block, returning its offset. The
// payload is not cleared.
func (z *Zone) allocBlock(size, tag int) (int, error) {
	if size > z.budget {
		return 0, z.exhausted(size)
	}
	need := format.Align16(size + overhead)
	off := z.firstFit(need)
	if off < 0 {
		return 0, z.exhausted(size)
	}
	z.split(off, need)
	z.setTag(off, tag)
	format.PutU32(z.buf, off+z.size(off)-guard, format.ZoneID)
	return off, nil
}

func (z *Zone) exhausted(size int) error {
	st := z.Stats()
	z.log.Error("zone exhausted", "size", size, "free", st.Free, "largest", st.LargestFree)
	return hunk.Fatal(errors.Wrapf(ErrNoSpace, "zone: failed on allocation of %d bytes (largest free %d)", size, st.LargestFree))
}

func (z *Zone) firstFit(need int) int {
	for off := 0; off < z.budget; off += z.size(off) {
		size := z.size(off)
		if size <= 0 {
			break
		}
		if z.tag(off) == 0 && size >= need {
			return off
		}
	}
	return -1
}

// split shrinks the block at off to need bytes when the remainder is large
// enough to stand on its own.
func (z *Zone) split(off, need int) {
	extra := z.size(off) - need
	if extra < format.ZoneMinFragment {
		return
	}
	rest := off + need
	z.writeHeader(rest, extra, 0, off)
	z.setSize(off, need)
	if next := rest + extra; next < z.budget {
		z.setPrev(next, rest)
	}
}

// Free releases ref and merges it with free neighbours.
func (z *Zone) Free(ref Ref) error {
	if err := z.debugCheck("free"); err != nil {
		return err
	}
	off, err := z.block(ref)
	if err != nil {
		return err
	}
	z.release(off)
	return z.debugCheck("free")
}

func (z *Zone) release(off int) {
	z.setTag(off, 0)
	if prev := z.prev(off); prev != format.NoPrev && z.tag(prev) == 0 {
		z.merge(prev, off)
		off = prev
	}
	if next := off + z.size(off); next < z.budget && z.tag(next) == 0 {
		z.merge(off, next)
	}
}

// merge folds the block at next into the free block at off.
func (z *Zone) merge(off, next int) {
	size := z.size(off) + z.size(next)
	z.setSize(off, size)
	clear(z.buf[next : next+hdr])
	if after := off + size; after < z.budget {
		z.setPrev(after, off)
	}
}

// block validates ref as a live allocation and returns its header offset.
func (z *Zone) block(ref Ref) (int, error) {
	if z.closed() {
		return 0, hunk.ErrClosed
	}
	off := int(ref) - hdr
	if off < 0 || off+overhead > z.budget || !format.IsAligned16(off) {
		return 0, hunk.Fatal(errors.Wrapf(ErrBadRef, "zone: ref %d outside zone of %d bytes", ref, z.budget))
	}
	if id := format.ReadU32(z.buf, off+format.ZoneIDOffset); id != format.ZoneID {
		return 0, hunk.Fatal(errors.Wrapf(ErrBadRef, "zone: ref %d has no ZoneID (found %#x)", ref, id))
	}
	if z.tag(off) == 0 {
		return 0, hunk.Fatal(errors.Wrapf(ErrDoubleFree, "zone: ref %d", ref))
	}
	size := z.size(off)
	if size < overhead || off+size > z.budget {
		return 0, hunk.Fatal(errors.Wrapf(ErrCorrupt, "zone: block at %d has size %d", off, size))
	}
	if g := format.ReadU32(z.buf, off+size-guard); g != format.ZoneID {
		return 0, hunk.Fatal(errors.Wrapf(ErrCorrupt, "zone: memory trashed after block at %d (guard %#x)", off, g))
	}
	return off, nil
}

// Bytes returns the payload capacity of ref. It can exceed the requested
// size by up to the split threshold.
func (z *Zone) Bytes(ref Ref) ([]byte, error) {
	off, err := z.block(ref)
	if err != nil {
		return nil, err
	}
	end := off + z.size(off) - guard
	return z.buf[off+hdr : end : end], nil
}

// Tag returns the tag of a live allocation.
func (z *Zone) Tag(ref Ref) (int, error) {
	off, err := z.block(ref)
	if err != nil {
		return 0, err
	}
	return z.tag(off), nil
}

// Strdup copies s into the zone with a trailing NUL.
func (z *Zone) Strdup(s string) (Ref, error) {
	ref, buf, err := z.Alloc(len(s) + 1)
	if err != nil {
		return 0, err
	}
	copy(buf, s)
	return ref, nil
}

// String reads a NUL-terminated string written by Strdup.
func (z *Zone) String(ref Ref) (string, error) {
	buf, err := z.Bytes(ref)
	if err != nil {
		return "", err
	}
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i]), nil
		}
	}
	return "", hunk.Fatal(errors.Wrapf(ErrCorrupt, "zone: string at %d not terminated", ref))
}

// Realloc resizes ref, keeping the first min(old, size) bytes. A zero ref
// behaves like Alloc. The returned ref may differ from the input.
func (z *Zone) Realloc(ref Ref, size int) (Ref, []byte, error) {
	if ref == 0 {
		return z.Alloc(size)
	}
	if size < 0 {
		return 0, nil, errors.Wrapf(hunk.ErrBadSize, "zone: realloc %d bytes", size)
	}
	if err := z.debugCheck("realloc"); err != nil {
		return 0, nil, err
	}
	off, err := z.block(ref)
	if err != nil {
		return 0, nil, err
	}
	if size > z.budget {
		return 0, nil, z.exhausted(size)
	}
	oldCap := z.size(off) - overhead
	tag := z.tag(off)
	need := format.Align16(size + overhead)

	// grow into a free successor when it is large enough
	if need > z.size(off) {
		if next := off + z.size(off); next < z.budget && z.tag(next) == 0 && z.size(off)+z.size(next) >= need {
			z.setSize(off, z.size(off)+z.size(next))
			clear(z.buf[next : next+hdr])
			if after := off + z.size(off); after < z.budget {
				z.setPrev(after, off)
			}
		}
	}

	if need <= z.size(off) {
		z.splitInUse(off, need)
		p := off + hdr
		if newCap := z.size(off) - overhead; newCap > oldCap {
			clear(z.buf[p+oldCap : p+newCap])
		}
		if err := z.debugCheck("realloc"); err != nil {
			return 0, nil, err
		}
		return ref, z.buf[p : p+size : p+size], nil
	}

	newOff, err := z.allocBlock(size, tag)
	if err != nil {
		return 0, nil, err
	}
	p := newOff + hdr
	n := copy(z.buf[p:p+size], z.buf[off+hdr:off+hdr+oldCap])
	clear(z.buf[p+n : newOff+z.size(newOff)-guard])
	z.release(off)
	if err := z.debugCheck("realloc"); err != nil {
		return 0, nil, err
	}
	return Ref(p), z.buf[p : p+size : p+size], nil
}

// splitInUse trims an in-use block to need bytes, returning the tail to the
// free list, and rewrites its guard.
func (z *Zone) splitInUse(off, need int) {
	if z.size(off)-need >= format.ZoneMinFragment {
		z.split(off, need)
		rest := off + need
		// the split tail may now border another free block
		if next := rest + z.size(rest); next < z.budget && z.tag(next) == 0 {
			z.merge(rest, next)
		}
	}
	format.PutU32(z.buf, off+z.size(off)-guard, format.ZoneID)
}

// Check walks the block list and validates every zone invariant.
func (z *Zone) Check() error {
	if z.closed() {
		return hunk.ErrClosed
	}
	var used, free int
	prev := format.NoPrev
	prevFree := false
	off := 0
	for off < z.budget {
		if off+hdr > z.budget {
			return z.corrupt("block at %d overruns zone end %d", off, z.budget)
		}
		if id := format.ReadU32(z.buf, off+format.ZoneIDOffset); id != format.ZoneID {
			return z.corrupt("block at %d has no ZoneID (found %#x)", off, id)
		}
		size := z.size(off)
		if size < hdr || !format.IsAligned16(size) || off+size > z.budget {
			return z.corrupt("block at %d has bad size %d", off, size)
		}
		if p := z.prev(off); p != prev {
			return z.corrupt("block at %d links back to %d, expected %d", off, p, prev)
		}
		if z.tag(off) == 0 {
			if prevFree {
				return z.corrupt("two consecutive free blocks at %d and %d", prev, off)
			}
			free += size
			prevFree = true
		} else {
			if size < overhead {
				return z.corrupt("in-use block at %d too small (%d)", off, size)
			}
			if g := format.ReadU32(z.buf, off+size-guard); g != format.ZoneID {
				return z.corrupt("memory trashed after block at %d (guard %#x)", off, g)
			}
			used += size
			prevFree = false
		}
		prev = off
		off += size
	}
	if off != z.budget {
		return z.corrupt("block list ends at %d, zone is %d", off, z.budget)
	}
	if used+free != z.budget {
		return z.corrupt("used %d + free %d != budget %d", used, free, z.budget)
	}
	return nil
}

func (z *Zone) corrupt(msg string, args ...any) error {
	err := errors.Wrapf(ErrCorrupt, "zone: "+msg, args...)
	z.log.Error("zone corrupt", "err", err)
	return hunk.Fatal(err)
}

func (z *Zone) debugCheck(op string) error {
	if !z.debug {
		return nil
	}
	if err := z.Check(); err != nil {
		return errors.Wrapf(err, "zone: %s", op)
	}
	return nil
}

func (z *Zone) writeHeader(off, size, tag, prev int) {
	format.PutZoneHeader(z.buf, off, format.ZoneHeader{Size: size, Tag: tag, ID: format.ZoneID, Prev: prev})
}

func (z *Zone) size(off int) int { return int(format.ReadI32(z.buf, off+format.ZoneSizeOffset)) }
func (z *Zone) tag(off int) int  { return int(format.ReadI32(z.buf, off+format.ZoneTagOffset)) }
func (z *Zone) prev(off int) int { return int(format.ReadI32(z.buf, off+format.ZonePrevOffset)) }

func (z *Zone) setSize(off, v int) { format.PutI32(z.buf, off+format.ZoneSizeOffset, int32(v)) }
func (z *Zone) setTag(off, v int)  { format.PutI32(z.buf, off+format.ZoneTagOffset, int32(v)) }
func (z *Zone) setPrev(off, v int) { format.PutI32(z.buf, off+format.ZonePrevOffset, int32(v)) }
