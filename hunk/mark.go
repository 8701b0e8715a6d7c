package hunk

import "github.com/cockroachdb/errors"

// MarkLow records the current top of the low stack.
func (a *Arena) MarkLow() Mark {
	return Mark{region: RegionLow, offset: a.lowMark, depth: len(a.low), serial: topSerial(a.low)}
}

// MarkHigh records the current bottom of the high stack. An active temp
// allocation is released first so the mark never captures it.
func (a *Arena) MarkHigh() Mark {
	if a.tempActive {
		// Releasing temp only fails on a corrupted temp mark, which Check reports.
		_ = a.releaseTemp()
	}
	return a.markHigh()
}

func (a *Arena) markHigh() Mark {
	return Mark{region: RegionHigh, offset: a.highMark, depth: len(a.high), serial: topSerial(a.high)}
}

// ResetLow releases every low stack allocation made after m was taken.
// Blocks from the released range become stale.
func (a *Arena) ResetLow(m Mark) error {
	if a.closed {
		return ErrClosed
	}
	if err := a.validate(m, RegionLow, a.low, a.lowMark, m.offset > a.lowMark); err != nil {
		return err
	}
	a.low = a.low[:m.depth]
	a.lowMark = m.offset
	a.epochs[RegionLow]++
	a.log.Debug("hunk reset low", "mark", m.offset, "used", a.UsedLow())
	return nil
}

// ResetHigh releases every high stack allocation made after m was taken.
func (a *Arena) ResetHigh(m Mark) error {
	if a.closed {
		return ErrClosed
	}
	a.tempActive = false
	return a.resetHigh(m)
}

func (a *Arena) resetHigh(m Mark) error {
	if err := a.validate(m, RegionHigh, a.high, a.highMark, m.offset < a.highMark); err != nil {
		return err
	}
	a.high = a.high[:m.depth]
	a.highMark = m.offset
	a.epochs[RegionHigh]++
	a.log.Debug("hunk reset high", "mark", m.offset, "used", a.UsedHigh())
	return nil
}

// validate rejects marks that belong to the other stack, lie beyond the
// current mark (freeing negative space), or were invalidated by an earlier
// reset below them.
func (a *Arena) validate(m Mark, r Region, stack []entry, cur int, beyond bool) error {
	if m.region != r {
		return Fatal(errors.Wrapf(ErrBadMark, "hunk: %s mark used to reset %s stack", m.region, r))
	}
	if beyond || m.depth > len(stack) {
		return Fatal(errors.Wrapf(ErrBadMark, "hunk: %s mark %d beyond current mark %d", r, m.offset, cur))
	}
	if m.depth > 0 && stack[m.depth-1].serial != m.serial {
		return Fatal(errors.Wrapf(ErrBadMark, "hunk: %s mark %d is stale", r, m.offset))
	}
	var want int
	switch {
	case m.depth > 0 && r == RegionLow:
		top := stack[m.depth-1]
		want = top.offset + top.size
	case m.depth > 0:
		want = stack[m.depth-1].offset
	case r == RegionLow:
		want = a.floor
	default:
		want = a.size
	}
	if m.offset != want {
		return Fatal(errors.Wrapf(ErrBadMark, "hunk: %s mark %d does not match recorded boundary %d", r, m.offset, want))
	}
	return nil
}

func topSerial(stack []entry) uint64 {
	if len(stack) == 0 {
		return 0
	}
	return stack[len(stack)-1].serial
}
