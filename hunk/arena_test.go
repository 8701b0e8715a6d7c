package hunk

import (
	"math"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

const (
	testArenaSize = 1 << 20
	testZoneSize  = 48 << 10
)

func newTestArena(t testing.TB, size int) *Arena {
	t.Helper()
	a, err := Reserve(size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func requireAligned(t testing.TB, buf []byte) {
	t.Helper()
	if cap(buf) == 0 {
		return
	}
	require.Zero(t, uintptr(unsafe.Pointer(&buf[:1][0]))%16, "allocation must be 16-byte aligned")
}

// Test_Scenario_ZoneThenLowMarkReset reserves 1 MiB, carves a 48 KiB zone,
// allocates 64 bytes and resets back to the earlier mark.
func Test_Scenario_ZoneThenLowMarkReset(t *testing.T) {
	a := newTestArena(t, testArenaSize)

	_, zone, err := a.Carve(testZoneSize, "zone")
	require.NoError(t, err)
	require.Len(t, zone, testZoneSize)
	require.Equal(t, testZoneSize, a.Floor())
	require.Equal(t, 0, a.UsedLow(), "carve-outs are not low stack usage")

	mark := a.MarkLow()
	_, buf, err := a.AllocLow(64, "test")
	require.NoError(t, err)
	require.Len(t, buf, 64)
	require.Equal(t, 64, a.UsedLow())

	require.NoError(t, a.ResetLow(mark))
	require.Equal(t, 0, a.UsedLow())
	require.NoError(t, a.Check())
}

func TestAllocRoundsAndZeroFills(t *testing.T) {
	a := newTestArena(t, 64<<10)

	_, b1, err := a.AllocLow(10, "short")
	require.NoError(t, err)
	requireAligned(t, b1)
	for i := range b1 {
		b1[i] = 0xFF
	}
	require.Equal(t, 16, a.UsedLow())

	mark := a.MarkLow()
	_, b2, err := a.AllocLow(100, "second")
	require.NoError(t, err)
	requireAligned(t, b2)
	require.Equal(t, 16+112, a.UsedLow())
	for i := range b2 {
		b2[i] = 0xEE
	}

	require.NoError(t, a.ResetLow(mark))
	_, b3, err := a.AllocLow(100, "third")
	require.NoError(t, err)
	for i, v := range b3 {
		require.Zero(t, v, "byte %d not zeroed after reuse", i)
	}

	_, h1, err := a.AllocHigh(33, "video")
	require.NoError(t, err)
	requireAligned(t, h1)
	require.Len(t, h1, 33)
	require.Equal(t, 48, a.UsedHigh())
	require.Equal(t, a.Size()-a.UsedHigh(), a.HighMark())
}

func TestAllocZeroBytes(t *testing.T) {
	a := newTestArena(t, 4096)
	blk, buf, err := a.AllocLow(0, "empty")
	require.NoError(t, err)
	require.Empty(t, buf)
	require.Equal(t, 0, a.UsedLow())
	require.False(t, blk.IsZero())
}

func TestStacksCollide(t *testing.T) {
	a := newTestArena(t, 4096)

	_, _, err := a.AllocLow(2048, "low")
	require.NoError(t, err)
	_, _, err = a.AllocHigh(2048, "high")
	require.NoError(t, err)
	require.Equal(t, 0, a.FreeBytes())

	_, _, err = a.AllocLow(1, "one more")
	require.ErrorIs(t, err, ErrNoSpace)
	require.True(t, IsFatal(err))

	_, _, err = a.AllocHigh(1, "one more")
	require.ErrorIs(t, err, ErrNoSpace)
	require.LessOrEqual(t, a.LowMark(), a.HighMark())
}

func TestOversizedRequestIsNoSpace(t *testing.T) {
	for _, size := range []int{math.MaxInt, math.MaxInt - 8, math.MaxInt - 15, 4097} {
		a := newTestArena(t, 4096)
		_, _, err := a.Carve(size, "zone")
		require.ErrorIs(t, err, ErrNoSpace, "size %d", size)
		_, _, err = a.AllocLow(size, "huge")
		require.ErrorIs(t, err, ErrNoSpace, "size %d", size)
		require.True(t, IsFatal(err))
		_, _, err = a.AllocHigh(size, "huge")
		require.ErrorIs(t, err, ErrNoSpace, "size %d", size)
		_, err = a.TempAlloc(size)
		require.ErrorIs(t, err, ErrNoSpace, "size %d", size)
		require.Zero(t, a.UsedLow())
		require.Zero(t, a.UsedHigh())
	}
}

func TestNegativeSizeRejected(t *testing.T) {
	a := newTestArena(t, 4096)
	_, _, err := a.AllocLow(-1, "neg")
	require.ErrorIs(t, err, ErrBadSize)
	require.False(t, IsFatal(err))
	_, _, err = a.AllocHigh(-16, "neg")
	require.ErrorIs(t, err, ErrBadSize)
	_, err = a.TempAlloc(-16)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestReserveFailureIsFatal(t *testing.T) {
	failing := func(int) ([]byte, func() error, error) {
		return nil, nil, errors.New("cannot allocate memory")
	}
	_, err := Reserve(1<<20, WithReserveFunc(failing))
	require.ErrorIs(t, err, ErrReserve)
	require.True(t, IsFatal(err))

	short := func(int) ([]byte, func() error, error) {
		return make([]byte, 128), nil, nil
	}
	_, err = Reserve(1<<20, WithReserveFunc(short))
	require.ErrorIs(t, err, ErrReserve)

	_, err = Reserve(8)
	require.ErrorIs(t, err, ErrReserve)
}

func TestCarveAfterLowAllocation(t *testing.T) {
	a := newTestArena(t, 4096)
	_, _, err := a.AllocLow(16, "first")
	require.NoError(t, err)
	_, _, err = a.Carve(64, "zone")
	require.ErrorIs(t, err, ErrCarve)
}

func TestStaleBlockAfterReset(t *testing.T) {
	a := newTestArena(t, 8192)

	keep, _, err := a.AllocLow(32, "keep")
	require.NoError(t, err)
	mark := a.MarkLow()
	gone, buf, err := a.AllocLow(32, "gone")
	require.NoError(t, err)
	copy(buf, "level data")

	got, err := a.Bytes(gone)
	require.NoError(t, err)
	require.Equal(t, "level data", string(got[:10]))

	require.NoError(t, a.ResetLow(mark))
	_, err = a.Bytes(gone)
	require.ErrorIs(t, err, ErrStaleBlock)

	// Same slot, new allocation: the old handle stays stale.
	_, _, err = a.AllocLow(32, "reused")
	require.NoError(t, err)
	_, err = a.Bytes(gone)
	require.ErrorIs(t, err, ErrStaleBlock)

	_, err = a.Bytes(keep)
	require.NoError(t, err)
	_, err = a.Bytes(Block{})
	require.ErrorIs(t, err, ErrStaleBlock)

	require.Equal(t, uint64(1), a.Epoch(RegionLow))
}

func TestResetRejectsBadMarks(t *testing.T) {
	a := newTestArena(t, 8192)

	early := a.MarkLow()
	_, _, err := a.AllocLow(64, "a")
	require.NoError(t, err)
	later := a.MarkLow()

	t.Run("other region", func(t *testing.T) {
		err := a.ResetHigh(later)
		require.ErrorIs(t, err, ErrBadMark)
		require.True(t, IsFatal(err))
	})

	t.Run("beyond current mark", func(t *testing.T) {
		require.NoError(t, a.ResetLow(early))
		err := a.ResetLow(later)
		require.ErrorIs(t, err, ErrBadMark)
		require.Equal(t, 0, a.UsedLow())
	})

	t.Run("stale after lower reset", func(t *testing.T) {
		_, _, err := a.AllocLow(64, "b")
		require.NoError(t, err)
		// later has the same offset and depth but names a released allocation.
		err = a.ResetLow(later)
		require.ErrorIs(t, err, ErrBadMark)
	})

	t.Run("high beyond current mark", func(t *testing.T) {
		m := a.MarkHigh()
		_, _, err := a.AllocHigh(32, "h")
		require.NoError(t, err)
		inner := a.MarkHigh()
		require.NoError(t, a.ResetHigh(m))
		require.ErrorIs(t, a.ResetHigh(inner), ErrBadMark)
	})

	require.NoError(t, a.Check())
}

func TestResetThenReallocDoesNotTouchHigh(t *testing.T) {
	a := newTestArena(t, 16<<10)

	_, high, err := a.AllocHigh(4096, "video")
	require.NoError(t, err)
	for i := range high {
		high[i] = 0x5A
	}

	mark := a.MarkLow()
	_, _, err = a.AllocLow(a.FreeBytes(), "fill")
	require.NoError(t, err)
	freed := a.UsedLow()
	require.NoError(t, a.ResetLow(mark))

	_, buf, err := a.AllocLow(freed, "refill")
	require.NoError(t, err)
	for i := range buf {
		buf[i] = 0xA5
	}
	require.LessOrEqual(t, a.LowMark(), a.HighMark())
	for i := range high {
		require.Equal(t, byte(0x5A), high[i], "high hunk byte %d overwritten", i)
	}
}

func TestTempAlloc(t *testing.T) {
	a := newTestArena(t, 16<<10)

	_, _, err := a.AllocHigh(1024, "vid")
	require.NoError(t, err)
	base := a.UsedHigh()

	t1, err := a.TempAlloc(4000)
	require.NoError(t, err)
	requireAligned(t, t1)
	require.Equal(t, base+4000, a.UsedHigh())

	_, err = a.TempAlloc(100)
	require.NoError(t, err)
	require.Equal(t, base+112, a.UsedHigh(), "previous temp released first")

	m := a.MarkHigh()
	require.Equal(t, base, a.UsedHigh(), "marking releases temp")
	require.Equal(t, a.HighMark(), m.Offset())

	_, err = a.TempAlloc(100)
	require.NoError(t, err)
	_, _, err = a.AllocHigh(16, "after temp")
	require.NoError(t, err)
	require.Equal(t, base+16, a.UsedHigh())
	require.NoError(t, a.Check())
}

type recordingReclaimer struct {
	calls [][2]int
}

func (r *recordingReclaimer) Reclaim(low, high int) {
	r.calls = append(r.calls, [2]int{low, high})
}

func TestReclaimerSeesNewGap(t *testing.T) {
	a := newTestArena(t, 8192)
	rec := &recordingReclaimer{}
	a.SetReclaimer(rec)

	_, _, err := a.AllocLow(100, "low")
	require.NoError(t, err)
	_, _, err = a.AllocHigh(200, "high")
	require.NoError(t, err)

	require.Equal(t, [][2]int{{112, 8192}, {112, 8192 - 208}}, rec.calls)

	// Resets only widen the gap and never call the reclaimer.
	require.NoError(t, a.ResetLow(Mark{region: RegionLow, offset: 0}))
	require.Len(t, rec.calls, 2)
}

func TestEntriesAndNames(t *testing.T) {
	a := newTestArena(t, 8192)
	_, _, err := a.Carve(256, "zone")
	require.NoError(t, err)
	_, _, err = a.AllocLow(32, "maps/e1m1.bsp")
	require.NoError(t, err)
	_, _, err = a.AllocHigh(48, "zbuffer")
	require.NoError(t, err)

	floor := a.Entries(RegionFloor)
	require.Len(t, floor, 1)
	require.Equal(t, "zone", floor[0].Name)

	low := a.Entries(RegionLow)
	require.Len(t, low, 1)
	require.Equal(t, "maps/e1m1.bsp", low[0].Name)
	require.Equal(t, 256, low[0].Offset)

	high := a.Entries(RegionHigh)
	require.Len(t, high, 1)
	require.Equal(t, RegionHigh, high[0].Region)
	require.Equal(t, 8192-48, high[0].Offset)
}

func TestClosedArena(t *testing.T) {
	a, err := Reserve(4096)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, _, err = a.AllocLow(16, "x")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.ResetLow(Mark{}), ErrClosed)
	require.ErrorIs(t, a.Check(), ErrClosed)
}

// Test_Fuzz_StackInvariants performs random stack operations and validates
// the ordering and alignment invariants after every step.
func Test_Fuzz_StackInvariants(t *testing.T) {
	a := newTestArena(t, 256<<10)
	rng := rand.New(rand.NewSource(42))

	var lowMarks, highMarks []Mark
	for i := range 2000 {
		switch rng.Intn(6) {
		case 0, 1:
			_, buf, err := a.AllocLow(rng.Intn(4096), "low")
			if err == nil {
				requireAligned(t, buf)
			} else {
				require.ErrorIs(t, err, ErrNoSpace, "step %d", i)
			}
		case 2, 3:
			_, buf, err := a.AllocHigh(rng.Intn(4096), "high")
			if err == nil {
				requireAligned(t, buf)
			} else {
				require.ErrorIs(t, err, ErrNoSpace, "step %d", i)
			}
		case 4:
			if rng.Intn(2) == 0 {
				lowMarks = append(lowMarks, a.MarkLow())
			} else {
				highMarks = append(highMarks, a.MarkHigh())
			}
		case 5:
			if n := len(lowMarks); n > 0 && rng.Intn(2) == 0 {
				require.NoError(t, a.ResetLow(lowMarks[n-1]), "step %d", i)
				lowMarks = lowMarks[:n-1]
			} else if n := len(highMarks); n > 0 {
				require.NoError(t, a.ResetHigh(highMarks[n-1]), "step %d", i)
				highMarks = highMarks[:n-1]
			}
		}

		require.LessOrEqual(t, a.LowMark(), a.HighMark(), "step %d", i)
		require.NoError(t, a.Check(), "step %d", i)
	}
}
