package zone

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/internal/format"
)

func newTestZone(t *testing.T, size int) *Zone {
	t.Helper()
	z, err := New(make([]byte, size), WithDebugChecks(true))
	require.NoError(t, err)
	return z
}

func requireInvariants(t *testing.T, z *Zone) {
	t.Helper()
	require.NoError(t, z.Check())
	st := z.Stats()
	require.Equal(t, st.Budget, st.Used+st.Free)

	blocks := z.Blocks()
	for i := 1; i < len(blocks); i++ {
		require.Equal(t, blocks[i-1].Offset+blocks[i-1].Size, blocks[i].Offset, "blocks must be contiguous")
		require.False(t, blocks[i-1].Free() && blocks[i].Free(), "adjacent free blocks at %d and %d",
			blocks[i-1].Offset, blocks[i].Offset)
	}
}

func TestNewZoneIsOneFreeBlock(t *testing.T) {
	z := newTestZone(t, 48*1024)
	st := z.Stats()
	require.Equal(t, 48*1024, st.Budget)
	require.Equal(t, 0, st.Used)
	require.Equal(t, 1, st.FreeBlocks)
	require.Equal(t, 48*1024, st.LargestFree)
}

func TestNewZoneTooSmall(t *testing.T) {
	_, err := New(make([]byte, 32))
	require.ErrorIs(t, err, ErrTooSmall)
}

func TestAllocIsAlignedAndZeroed(t *testing.T) {
	z := newTestZone(t, 4096)
	raw := z.buf
	for i := range raw[64:] {
		raw[64+i] = 0xAA
	}

	ref, buf, err := z.Alloc(37)
	require.NoError(t, err)
	require.Len(t, buf, 37)
	require.True(t, format.IsAligned16(int(ref)))
	for _, b := range buf {
		require.Zero(t, b)
	}
	requireInvariants(t, z)
}

func TestFirstFitSplitsLowestBlock(t *testing.T) {
	z := newTestZone(t, 4096)

	a, _, err := z.Alloc(100)
	require.NoError(t, err)
	b, _, err := z.Alloc(100)
	require.NoError(t, err)
	c, _, err := z.Alloc(100)
	require.NoError(t, err)
	require.Less(t, a, b)
	require.Less(t, b, c)

	require.NoError(t, z.Free(a))
	d, _, err := z.Alloc(50)
	require.NoError(t, err)
	require.Equal(t, a, d, "first fit should reuse the lowest free block")
	requireInvariants(t, z)
}

func TestSmallRemainderIsNotSplit(t *testing.T) {
	z := newTestZone(t, 256)
	// 256 - align16(200+20)=32 left over, below the split threshold
	ref, _, err := z.Alloc(200)
	require.NoError(t, err)
	require.Len(t, z.Blocks(), 1)

	buf, err := z.Bytes(ref)
	require.NoError(t, err)
	require.Equal(t, 256-overhead, len(buf))
	requireInvariants(t, z)
}

func TestFreeCoalescesBothSides(t *testing.T) {
	z := newTestZone(t, 4096)
	refs := make([]Ref, 4)
	for i := range refs {
		var err error
		refs[i], _, err = z.Alloc(64)
		require.NoError(t, err)
	}
	require.Len(t, z.Blocks(), 5)

	require.NoError(t, z.Free(refs[0]))
	require.NoError(t, z.Free(refs[2]))
	require.Equal(t, 3, z.Stats().FreeBlocks)

	// freeing the middle block merges it with both neighbours
	require.NoError(t, z.Free(refs[1]))
	st := z.Stats()
	require.Equal(t, 2, st.FreeBlocks)
	requireInvariants(t, z)

	require.NoError(t, z.Free(refs[3]))
	st = z.Stats()
	require.Equal(t, 1, st.Blocks)
	require.Equal(t, 4096, st.LargestFree)
}

func TestDoubleFreeIsFatal(t *testing.T) {
	z := newTestZone(t, 1024)
	ref, _, err := z.Alloc(10)
	require.NoError(t, err)
	require.NoError(t, z.Free(ref))

	err = z.Free(ref)
	require.ErrorIs(t, err, ErrDoubleFree)
	require.True(t, hunk.IsFatal(err))
}

func TestFreeBadRef(t *testing.T) {
	z := newTestZone(t, 1024)
	_, _, err := z.Alloc(10)
	require.NoError(t, err)

	for _, ref := range []Ref{0, 7, 5000, -16} {
		err := z.Free(ref)
		require.ErrorIs(t, err, ErrBadRef, "ref %d", ref)
		require.True(t, hunk.IsFatal(err))
	}
}

func TestExhaustionIsFatal(t *testing.T) {
	z := newTestZone(t, 1024)
	_, _, err := z.Alloc(900)
	require.NoError(t, err)

	_, _, err = z.Alloc(200)
	require.ErrorIs(t, err, ErrNoSpace)
	require.True(t, hunk.IsFatal(err))
	requireInvariants(t, z)
}

func TestOversizedRequestIsNoSpace(t *testing.T) {
	z := newTestZone(t, 1024)
	ref, _, err := z.Alloc(10)
	require.NoError(t, err)

	for _, size := range []int{math.MaxInt, math.MaxInt - 8, math.MaxInt32, 1025} {
		_, _, err := z.Alloc(size)
		require.ErrorIs(t, err, ErrNoSpace, "size %d", size)
		require.True(t, hunk.IsFatal(err))

		_, _, err = z.Realloc(ref, size)
		require.ErrorIs(t, err, ErrNoSpace, "size %d", size)
	}
	requireInvariants(t, z)
}

func TestClosedZone(t *testing.T) {
	z := newTestZone(t, 1024)
	ref, err := z.Strdup("map e1m1")
	require.NoError(t, err)

	z.Close()
	require.Zero(t, z.Budget())
	_, _, err = z.Alloc(16)
	require.ErrorIs(t, err, hunk.ErrClosed)
	require.ErrorIs(t, z.Free(ref), hunk.ErrClosed)
	_, err = z.Bytes(ref)
	require.ErrorIs(t, err, hunk.ErrClosed)
	_, err = z.String(ref)
	require.ErrorIs(t, err, hunk.ErrClosed)
	_, _, err = z.Realloc(ref, 32)
	require.ErrorIs(t, err, hunk.ErrClosed)
	require.ErrorIs(t, z.Check(), hunk.ErrClosed)
	require.Equal(t, Stats{}, z.Stats())
	require.Empty(t, z.Blocks())

	var nilZone *Zone
	_, _, err = nilZone.Alloc(16)
	require.ErrorIs(t, err, hunk.ErrClosed)
}

func TestOverrunDetected(t *testing.T) {
	z, err := New(make([]byte, 1024))
	require.NoError(t, err)
	ref, _, err := z.Alloc(12)
	require.NoError(t, err)

	// write past the payload capacity into the guard
	capBuf, err := z.Bytes(ref)
	require.NoError(t, err)
	z.buf[int(ref)+len(capBuf)] = 0xFF

	err = z.Check()
	require.ErrorIs(t, err, ErrCorrupt)
	require.True(t, hunk.IsFatal(err))

	err = z.Free(ref)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestCheckDetectsBrokenLinks(t *testing.T) {
	tests := []struct {
		name   string
		damage func(z *Zone, second int)
	}{
		{"sentinel", func(z *Zone, second int) { format.PutU32(z.buf, second+format.ZoneIDOffset, 0xdead) }},
		{"prev link", func(z *Zone, second int) { format.PutI32(z.buf, second+format.ZonePrevOffset, 16) }},
		{"size", func(z *Zone, second int) { format.PutI32(z.buf, second+format.ZoneSizeOffset, 24) }},
		{"adjacent free", func(z *Zone, second int) {
			// mark the first block free without coalescing
			format.PutI32(z.buf, format.ZoneTagOffset, 0)
			z.setTag(second, 0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z, err := New(make([]byte, 1024))
			require.NoError(t, err)
			_, _, err = z.Alloc(40)
			require.NoError(t, err)
			_, _, err = z.Alloc(40)
			require.NoError(t, err)
			second := z.Blocks()[1].Offset

			tt.damage(z, second)
			err = z.Check()
			require.ErrorIs(t, err, ErrCorrupt)
			require.True(t, hunk.IsFatal(err))
		})
	}
}

func TestDebugChecksCatchCorruptionOnAlloc(t *testing.T) {
	z := newTestZone(t, 1024)
	ref, _, err := z.Alloc(40)
	require.NoError(t, err)
	format.PutU32(z.buf, int(ref)-hdr+format.ZoneIDOffset, 0)

	_, _, err = z.Alloc(8)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestStrdupRoundTrip(t *testing.T) {
	z := newTestZone(t, 1024)
	ref, err := z.Strdup("exec autoexec.cfg")
	require.NoError(t, err)

	s, err := z.String(ref)
	require.NoError(t, err)
	require.Equal(t, "exec autoexec.cfg", s)

	empty, err := z.Strdup("")
	require.NoError(t, err)
	s, err = z.String(empty)
	require.NoError(t, err)
	require.Empty(t, s)
	requireInvariants(t, z)
}

func TestAllocTagged(t *testing.T) {
	z := newTestZone(t, 1024)
	_, _, err := z.AllocTagged(8, 0)
	require.ErrorIs(t, err, ErrBadTag)

	ref, _, err := z.AllocTagged(8, 7)
	require.NoError(t, err)
	tag, err := z.Tag(ref)
	require.NoError(t, err)
	require.Equal(t, 7, tag)
}

func TestRealloc(t *testing.T) {
	t.Run("nil ref allocates", func(t *testing.T) {
		z := newTestZone(t, 1024)
		ref, buf, err := z.Realloc(0, 20)
		require.NoError(t, err)
		require.NotZero(t, ref)
		require.Len(t, buf, 20)
	})

	t.Run("grows in place into free successor", func(t *testing.T) {
		z := newTestZone(t, 1024)
		ref, buf, err := z.Alloc(10)
		require.NoError(t, err)
		copy(buf, "0123456789")

		got, grown, err := z.Realloc(ref, 200)
		require.NoError(t, err)
		require.Equal(t, ref, got)
		require.Equal(t, "0123456789", string(grown[:10]))
		for _, b := range grown[10:] {
			require.Zero(t, b)
		}
		requireInvariants(t, z)
	})

	t.Run("moves when blocked", func(t *testing.T) {
		z := newTestZone(t, 1024)
		ref, buf, err := z.Alloc(10)
		require.NoError(t, err)
		copy(buf, "abcdefghij")
		_, _, err = z.Alloc(10)
		require.NoError(t, err)

		got, moved, err := z.Realloc(ref, 100)
		require.NoError(t, err)
		require.NotEqual(t, ref, got)
		require.Equal(t, "abcdefghij", string(moved[:10]))
		requireInvariants(t, z)

		// the old block was released
		require.ErrorIs(t, z.Free(ref), ErrDoubleFree)
	})

	t.Run("shrink returns tail", func(t *testing.T) {
		z := newTestZone(t, 1024)
		ref, _, err := z.Alloc(500)
		require.NoError(t, err)
		got, buf, err := z.Realloc(ref, 16)
		require.NoError(t, err)
		require.Equal(t, ref, got)
		require.Len(t, buf, 16)
		st := z.Stats()
		require.Equal(t, 48, st.Used)
		requireInvariants(t, z)
	})
}

func Test_Fuzz_CoalescingInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	z := newTestZone(t, 16*1024)

	type live struct {
		ref  Ref
		fill byte
		size int
	}
	var refs []live

	for step := 0; step < 3000; step++ {
		switch op := rng.Intn(10); {
		case op < 5:
			size := rng.Intn(300)
			ref, buf, err := z.Alloc(size)
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace)
				continue
			}
			fill := byte(rng.Intn(255) + 1)
			for i := range buf {
				buf[i] = fill
			}
			refs = append(refs, live{ref, fill, size})
		case op < 9 && len(refs) > 0:
			i := rng.Intn(len(refs))
			l := refs[i]
			buf, err := z.Bytes(l.ref)
			require.NoError(t, err)
			for _, b := range buf[:l.size] {
				require.Equal(t, l.fill, b, "payload of %d clobbered at step %d", l.ref, step)
			}
			require.NoError(t, z.Free(l.ref))
			refs = append(refs[:i], refs[i+1:]...)
		case len(refs) > 0:
			i := rng.Intn(len(refs))
			size := rng.Intn(400)
			ref, buf, err := z.Realloc(refs[i].ref, size)
			if err != nil {
				require.True(t, errors.Is(err, ErrNoSpace))
				continue
			}
			keep := min(size, refs[i].size)
			for _, b := range buf[:keep] {
				require.Equal(t, refs[i].fill, b)
			}
			for j := keep; j < size; j++ {
				buf[j] = refs[i].fill
			}
			refs[i] = live{ref, refs[i].fill, size}
		}
		requireInvariants(t, z)
	}

	for _, l := range refs {
		require.NoError(t, z.Free(l.ref))
	}
	st := z.Stats()
	require.Equal(t, 1, st.Blocks)
	require.Equal(t, st.Budget, st.Free)
}
