package verify

import (
	"fmt"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/hunk/cache"
	"github.com/joshuapare/hunkkit/hunk/zone"
	"github.com/joshuapare/hunkkit/internal/format"
)

// ValidationError describes one broken invariant.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying layer error, or hunk.ErrCorrupt.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return hunk.ErrCorrupt
}

// AllInvariants validates every layer and the relations between them.
// Returns the first error encountered, or nil if all checks pass. z and c may
// be nil when the layer is not in use.
func AllInvariants(a *hunk.Arena, z *zone.Zone, c *cache.Cache) error {
	if err := Arena(a); err != nil {
		return err
	}
	if z != nil {
		if err := Zone(a, z); err != nil {
			return err
		}
	}
	if c != nil {
		if err := Cache(a, c); err != nil {
			return err
		}
	}
	return nil
}

// Arena runs the arena's own check.
func Arena(a *hunk.Arena) error {
	if err := a.Check(); err != nil {
		return &ValidationError{Type: "Arena", Message: err.Error(), Offset: -1, Err: err}
	}
	return nil
}

// Zone validates z against the arena it was carved from.
func Zone(a *hunk.Arena, z *zone.Zone) error {
	if err := z.Check(); err != nil {
		return &ValidationError{Type: "Zone", Message: err.Error(), Offset: -1, Err: err}
	}
	if z.Budget() > a.Carved() {
		return &ValidationError{
			Type:    "Zone",
			Message: fmt.Sprintf("budget %d exceeds carved %d bytes", z.Budget(), a.Carved()),
			Offset:  -1,
		}
	}
	st := z.Stats()
	if st.Used+st.Free != st.Budget {
		return &ValidationError{
			Type:    "Zone",
			Message: fmt.Sprintf("used %d + free %d != budget %d", st.Used, st.Free, st.Budget),
			Offset:  -1,
		}
	}
	return ZoneImage(a.Raw()[:z.Budget()])
}

// ZoneImage walks a raw zone image block by block. It reads only the bytes,
// so it catches damage the zone's own bookkeeping would not notice.
func ZoneImage(data []byte) error {
	if len(data) < format.ZoneMinFragment {
		return &ValidationError{
			Type:    "ZoneImage",
			Message: fmt.Sprintf("image too small: %d bytes", len(data)),
			Offset:  -1,
		}
	}

	pos := 0
	prev := format.NoPrev
	prevFree := false
	for pos < len(data) {
		if pos+format.ZoneHeaderSize > len(data) {
			return &ValidationError{Type: "ZoneImage", Message: "header runs past end of image", Offset: pos}
		}
		h := format.ReadZoneHeader(data, pos)
		if h.ID != format.ZoneID {
			return &ValidationError{
				Type:    "ZoneImage",
				Message: fmt.Sprintf("bad sentinel: got 0x%X, expected 0x%X", h.ID, format.ZoneID),
				Offset:  pos,
			}
		}
		size := h.Size
		if size < format.ZoneHeaderSize || !format.IsAligned16(size) || pos+size > len(data) {
			return &ValidationError{
				Type:    "ZoneImage",
				Message: fmt.Sprintf("invalid block size 0x%X", size),
				Offset:  pos,
			}
		}
		if h.Prev != prev {
			return &ValidationError{
				Type:    "ZoneImage",
				Message: fmt.Sprintf("prev link 0x%X, expected 0x%X", h.Prev, prev),
				Offset:  pos,
			}
		}

		free := h.Free()
		if free && prevFree {
			return &ValidationError{Type: "ZoneImage", Message: "adjacent free blocks", Offset: pos}
		}
		if !free {
			if g := format.ReadU32(data, pos+size-format.ZoneGuardSize); g != format.ZoneID {
				return &ValidationError{
					Type:    "ZoneImage",
					Message: fmt.Sprintf("trailing guard 0x%X, block overrun", g),
					Offset:  pos + size - format.ZoneGuardSize,
				}
			}
		}

		prevFree = free
		prev = pos
		pos += size
	}
	return nil
}

// Cache validates c and checks that no entry overlaps a stack allocation.
func Cache(a *hunk.Arena, c *cache.Cache) error {
	if err := c.Verify(); err != nil {
		return &ValidationError{Type: "Cache", Message: err.Error(), Offset: -1, Err: err}
	}

	var stack []hunk.Entry
	for _, r := range []hunk.Region{hunk.RegionFloor, hunk.RegionLow, hunk.RegionHigh} {
		stack = append(stack, a.Entries(r)...)
	}
	low, high := a.LowMark(), a.HighMark()
	for _, e := range c.Entries() {
		if e.Offset < low || e.Offset+e.Size > high {
			return &ValidationError{
				Type:    "Cache",
				Message: fmt.Sprintf("entry %q [0x%X,0x%X) outside gap [0x%X,0x%X)", e.Name, e.Offset, e.Offset+e.Size, low, high),
				Offset:  e.Offset,
			}
		}
		for _, s := range stack {
			if e.Offset < s.Offset+s.Size && s.Offset < e.Offset+e.Size {
				return &ValidationError{
					Type:    "Cache",
					Message: fmt.Sprintf("entry %q overlaps %s entry %q", e.Name, s.Region, s.Name),
					Offset:  e.Offset,
				}
			}
		}
	}
	return nil
}
