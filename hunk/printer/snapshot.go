package printer

import (
	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/hunk/cache"
	"github.com/joshuapare/hunkkit/hunk/zone"
)

// Item is one named allocation in a report.
type Item struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
	Pinned bool   `json:"pinned,omitempty"`
	Free   bool   `json:"free,omitempty"`
}

// Section is one allocation category.
type Section struct {
	Title string `json:"title"`
	Total int    `json:"total"`
	Items []Item `json:"items,omitempty"`
}

// ZoneSummary holds the zone counters.
type ZoneSummary struct {
	Budget      int    `json:"budget"`
	Used        int    `json:"used"`
	Free        int    `json:"free"`
	Blocks      int    `json:"blocks"`
	FreeBlocks  int    `json:"free_blocks"`
	LargestFree int    `json:"largest_free"`
	Items       []Item `json:"blocks_detail,omitempty"`
}

// CacheSummary holds the cache counters.
type CacheSummary struct {
	Section
	Gap       int    `json:"gap"`
	Pinned    int    `json:"pinned"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Moves     uint64 `json:"moves"`
}

// Snapshot is a point-in-time view of every layer.
type Snapshot struct {
	ArenaSize int           `json:"arena_size"`
	Carved    int           `json:"carved"`
	FreeBytes int           `json:"free"`
	Low       Section       `json:"low"`
	High      Section       `json:"high"`
	Zone      *ZoneSummary  `json:"zone,omitempty"`
	Cache     *CacheSummary `json:"cache,omitempty"`
}

// Capture reads a snapshot from the layers. z and c may be nil.
func Capture(a *hunk.Arena, z *zone.Zone, c *cache.Cache) Snapshot {
	s := Snapshot{
		ArenaSize: a.Size(),
		Carved:    a.Carved(),
		FreeBytes: a.FreeBytes(),
		Low:       stackSection("low hunk", a.UsedLow(), a.Entries(hunk.RegionLow)),
		High:      stackSection("high hunk", a.UsedHigh(), a.Entries(hunk.RegionHigh)),
	}

	if z != nil {
		st := z.Stats()
		zs := &ZoneSummary{
			Budget:      st.Budget,
			Used:        st.Used,
			Free:        st.Free,
			Blocks:      st.Blocks,
			FreeBlocks:  st.FreeBlocks,
			LargestFree: st.LargestFree,
		}
		for _, b := range z.Blocks() {
			zs.Items = append(zs.Items, Item{Offset: b.Offset, Size: b.Size, Free: b.Free()})
		}
		s.Zone = zs
	}

	if c != nil {
		st := c.Stats()
		cs := &CacheSummary{
			Section:   Section{Title: "cache", Total: st.Bytes},
			Gap:       st.Gap,
			Pinned:    st.Pinned,
			Hits:      st.Hits,
			Misses:    st.Misses,
			Evictions: st.Evictions,
			Moves:     st.Moves,
		}
		for _, e := range c.Entries() {
			cs.Items = append(cs.Items, Item{Name: e.Name, Offset: e.Offset, Size: e.Size, Pinned: e.Pinned})
		}
		s.Cache = cs
	}
	return s
}

func stackSection(title string, total int, entries []hunk.Entry) Section {
	sec := Section{Title: title, Total: total}
	for _, e := range entries {
		sec.Items = append(sec.Items, Item{Name: e.Name, Offset: e.Offset, Size: e.Size})
	}
	return sec
}
