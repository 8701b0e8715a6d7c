package printer

import (
	"encoding/json"
	"fmt"
)

// printJSON prints the snapshot as one indented JSON document.
func (p *Printer) printJSON(s Snapshot) error {
	if !p.opts.ShowEntries {
		s.Low.Items, s.High.Items = nil, nil
		if s.Cache != nil {
			c := *s.Cache
			c.Items = nil
			s.Cache = &c
		}
	}
	if s.Zone != nil && !p.opts.ShowZoneBlocks {
		z := *s.Zone
		z.Items = nil
		s.Zone = &z
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.writer, "%s\n", data)
	return err
}
