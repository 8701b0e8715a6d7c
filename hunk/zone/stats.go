package zone

import "github.com/joshuapare/hunkkit/internal/format"

// Stats summarizes zone usage. Used and Free count whole blocks, headers
// included, so Used+Free always equals Budget on a healthy zone.
type Stats struct {
	Budget      int
	Used        int
	Free        int
	Blocks      int
	FreeBlocks  int
	LargestFree int
}

// BlockInfo describes one block of the zone.
type BlockInfo struct {
	Offset int
	Size   int
	Tag    int
}

// Free reports whether the block is unallocated.
func (b BlockInfo) Free() bool { return b.Tag == 0 }

// Stats walks the block list and returns usage counters.
func (z *Zone) Stats() Stats {
	if z.closed() {
		return Stats{}
	}
	st := Stats{Budget: z.budget}
	z.walk(func(b BlockInfo) {
		st.Blocks++
		if b.Free() {
			st.Free += b.Size
			st.FreeBlocks++
			st.LargestFree = max(st.LargestFree, b.Size)
		} else {
			st.Used += b.Size
		}
	})
	return st
}

// Blocks returns every block in address order.
func (z *Zone) Blocks() []BlockInfo {
	var out []BlockInfo
	z.walk(func(b BlockInfo) { out = append(out, b) })
	return out
}

func (z *Zone) walk(fn func(BlockInfo)) {
	if z.closed() {
		return
	}
	for off := 0; off+format.ZoneHeaderSize <= z.budget; {
		size := z.size(off)
		if size <= 0 {
			return
		}
		fn(BlockInfo{Offset: off, Size: size, Tag: z.tag(off)})
		off += size
	}
}
