package printer

import (
	"fmt"
	"strings"
)

// printText prints the snapshot as a table, one block per category.
func (p *Printer) printText(s Snapshot) error {
	w := p.writer
	indent := strings.Repeat(" ", p.indent())

	fmt.Fprintf(w, "arena: %d bytes, carved %d, low %d, high %d, free %d\n",
		s.ArenaSize, s.Carved, s.Low.Total, s.High.Total, s.FreeBytes)

	p.printSectionText(s.Low, indent)
	p.printSectionText(s.High, indent)

	if z := s.Zone; z != nil {
		fmt.Fprintf(w, "zone: budget %d, used %d, free %d, blocks %d (%d free, largest %d)\n",
			z.Budget, z.Used, z.Free, z.Blocks, z.FreeBlocks, z.LargestFree)
		if p.opts.ShowZoneBlocks {
			for _, it := range z.Items {
				state := "used"
				if it.Free {
					state = "free"
				}
				fmt.Fprintf(w, "%s0x%08X %8d  %s\n", indent, it.Offset, it.Size, state)
			}
		}
	}

	if c := s.Cache; c != nil {
		fmt.Fprintf(w, "cache: %d entries, %d bytes of %d gap, %d pinned, %d evictions, %d moves\n",
			len(c.Items), c.Total, c.Gap, c.Pinned, c.Evictions, c.Moves)
		if p.opts.ShowEntries {
			for _, it := range c.Items {
				pin := ""
				if it.Pinned {
					pin = " [pinned]"
				}
				fmt.Fprintf(w, "%s0x%08X %8d  %s%s\n", indent, it.Offset, it.Size, it.Name, pin)
			}
		}
	}

	_, err := fmt.Fprintln(w, "-------------------------")
	return err
}

func (p *Printer) printSectionText(sec Section, indent string) {
	fmt.Fprintf(p.writer, "%s: %d bytes in %d entries\n", sec.Title, sec.Total, len(sec.Items))
	if !p.opts.ShowEntries {
		return
	}
	for _, it := range sec.Items {
		fmt.Fprintf(p.writer, "%s0x%08X %8d  %s\n", indent, it.Offset, it.Size, it.Name)
	}
}

func (p *Printer) indent() int {
	if p.opts.IndentSize <= 0 {
		return DefaultIndentSize
	}
	return p.opts.IndentSize
}
