package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/hunk/zone"
	"github.com/joshuapare/hunkkit/internal/logger"
	"github.com/joshuapare/hunkkit/pkg/memory"
	"github.com/joshuapare/hunkkit/pkg/texture"
)

var workloadPath string

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().StringVarP(&workloadPath, "workload", "w", "", "YAML workload (default: built-in level load)")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run an allocation workload and print the resulting layout",
		Long: `The simulate command runs a sequence of stack allocations, zone
allocations, texture loads and frames against a fresh arena, verifies every
layer and prints the layout.

Example:
  hunkctl simulate --heapsize 1024
  hunkctl simulate --heapsize 4096 --workload level.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wl := builtinWorkload
			if workloadPath != "" {
				var err error
				if wl, err = loadWorkload(workloadPath); err != nil {
					return err
				}
			}
			return runSimulate(cmd.OutOrStdout(), wl)
		},
	}
}

// Workload is a list of steps run in order.
type Workload struct {
	Steps []Step `yaml:"steps"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op        string      `yaml:"op"`
	Name      string      `yaml:"name,omitempty"`
	Size      memory.Size `yaml:"size,omitempty"`
	Width     int         `yaml:"width,omitempty"`
	Height    int         `yaml:"height,omitempty"`
	Format    string      `yaml:"format,omitempty"`
	Flags     []string    `yaml:"flags,omitempty"`
	Owner     uint32      `yaml:"owner,omitempty"`
	Seed      int         `yaml:"seed,omitempty"`
	Use       []string    `yaml:"use,omitempty"`
	Threshold int         `yaml:"threshold,omitempty"`
}

var builtinWorkload = Workload{Steps: []Step{
	{Op: "texture", Name: "conchars", Width: 128, Height: 128, Flags: []string{"Persist", "Conchars", "NoPicMip"}},
	{Op: "zone_alloc", Name: "autoexec", Size: 1 << 10},
	{Op: "mark_low"},
	{Op: "alloc_low", Name: "level", Size: 192 << 10},
	{Op: "mark_high"},
	{Op: "alloc_high", Name: "scratch", Size: 32 << 10},
	{Op: "texture", Name: "wall1", Width: 64, Height: 64, Flags: []string{"Mipmap"}, Owner: 1, Seed: 1},
	{Op: "texture", Name: "wall2", Width: 64, Height: 64, Flags: []string{"Mipmap"}, Owner: 1, Seed: 2},
	{Op: "texture", Name: "floor", Width: 128, Height: 64, Flags: []string{"Mipmap"}, Owner: 1, Seed: 3},
	{Op: "texture", Name: "sky", Width: 128, Height: 128, Format: "rgba", Owner: 1, Seed: 4},
	{Op: "frame", Use: []string{"conchars", "wall1", "sky"}},
	{Op: "frame", Use: []string{"conchars", "wall1"}},
	{Op: "frame", Use: []string{"conchars", "wall1"}},
	{Op: "release_unused", Threshold: 2},
	{Op: "reset_high"},
	{Op: "zone_free", Name: "autoexec"},
	{Op: "check"},
}}

func loadWorkload(path string) (Workload, error) {
	var wl Workload
	data, err := os.ReadFile(path)
	if err != nil {
		return wl, errors.Wrap(err, "read workload")
	}
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return wl, errors.Wrapf(err, "parse workload %s", path)
	}
	if len(wl.Steps) == 0 {
		return wl, errors.Newf("workload %s has no steps", path)
	}
	return wl, nil
}

// simulation holds the state a workload refers to by name.
type simulation struct {
	m        *memory.Memory
	reg      *texture.Registry
	out      io.Writer
	lowMarks []hunk.Mark
	highMark []hunk.Mark
	zoneRefs map[string]zone.Ref
	textures map[string]texture.Handle
	frame    int
}

func runSimulate(w io.Writer, wl Workload) error {
	m, err := openMemory()
	if err != nil {
		return err
	}
	defer m.Close()

	reg, err := texture.NewRegistry(m.Cache(), m.Arena(),
		texture.LoaderFunc(func(src texture.Source, _ texture.SrcFormat, _, _ int) ([]byte, error) {
			return src.Data, nil
		}),
		texture.WithFatalHandler(func(err error) { _ = m.Fatal(err) }),
	)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	s := &simulation{
		m:        m,
		reg:      reg,
		out:      &buf,
		zoneRefs: make(map[string]zone.Ref),
		textures: make(map[string]texture.Handle),
	}
	for i, st := range wl.Steps {
		logger.L.Debug("workload step", "index", i+1, "op", st.Op, "name", st.Name)
		if err := s.run(st); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i+1, st.Op)
		}
	}
	if err := m.Check(); err != nil {
		return err
	}

	if err := m.Report(&buf, reportOptions()); err != nil {
		return err
	}
	if !jsonOut {
		s.printTextures()
	}
	return sink(w).Commit(buf.Bytes())
}

func (s *simulation) run(st Step) error {
	a := s.m.Arena()
	switch st.Op {
	case "alloc_low":
		_, _, err := a.AllocLow(int(st.Size), st.Name)
		return s.m.Fatal(err)
	case "alloc_high":
		_, _, err := a.AllocHigh(int(st.Size), st.Name)
		return s.m.Fatal(err)
	case "temp":
		_, err := a.TempAlloc(int(st.Size))
		return s.m.Fatal(err)
	case "mark_low":
		s.lowMarks = append(s.lowMarks, a.MarkLow())
	case "mark_high":
		s.highMark = append(s.highMark, a.MarkHigh())
	case "reset_low":
		if len(s.lowMarks) == 0 {
			return errors.New("reset_low without mark_low")
		}
		m := s.lowMarks[len(s.lowMarks)-1]
		s.lowMarks = s.lowMarks[:len(s.lowMarks)-1]
		return s.m.Fatal(a.ResetLow(m))
	case "reset_high":
		if len(s.highMark) == 0 {
			return errors.New("reset_high without mark_high")
		}
		m := s.highMark[len(s.highMark)-1]
		s.highMark = s.highMark[:len(s.highMark)-1]
		return s.m.Fatal(a.ResetHigh(m))
	case "zone_alloc":
		ref, _, err := s.m.Zone().AllocTagged(int(st.Size), zone.TagStatic)
		if err != nil {
			return s.m.Fatal(err)
		}
		s.zoneRefs[st.Name] = ref
	case "zone_free":
		ref, ok := s.zoneRefs[st.Name]
		if !ok {
			return errors.Newf("zone_free: unknown block %q", st.Name)
		}
		delete(s.zoneRefs, st.Name)
		return s.m.Fatal(s.m.Zone().Free(ref))
	case "texture":
		return s.loadTexture(st)
	case "frame":
		s.frame++
		for _, name := range st.Use {
			h, ok := s.textures[name]
			if !ok {
				return errors.Newf("frame: unknown texture %q", name)
			}
			if err := s.reg.MarkUsed(h, s.frame); err != nil {
				return err
			}
			if _, err := s.reg.Pixels(h); err != nil {
				return err
			}
		}
	case "release_unused":
		n := s.reg.ReleaseUnused(s.frame, st.Threshold)
		logger.L.Debug("released unused textures", "count", n, "frame", s.frame)
	case "free_owner":
		s.reg.FreeForOwner(texture.OwnerID(st.Owner))
		for name, h := range s.textures {
			if _, err := s.reg.Get(h); err != nil {
				delete(s.textures, name)
			}
		}
	case "flush":
		s.m.Cache().Flush()
	case "check":
		return s.m.Check()
	default:
		return errors.Newf("unknown op %q", st.Op)
	}
	return nil
}

func (s *simulation) loadTexture(st Step) error {
	format := texture.Indexed
	if st.Format != "" {
		var err error
		if format, err = texture.ParseSrcFormat(st.Format); err != nil {
			return err
		}
	}
	flags, err := texture.ParseFlags(st.Flags...)
	if err != nil {
		return err
	}
	h, err := s.reg.FindOrLoad(texture.Request{
		Name:   st.Name,
		Owner:  texture.OwnerID(st.Owner),
		Source: texture.Source{Data: synthesize(st.Width*st.Height*format.BytesPerPixel(), st.Seed)},
		Format: format,
		Width:  st.Width,
		Height: st.Height,
		Flags:  flags,
	})
	if err != nil {
		return err
	}
	s.textures[st.Name] = h
	return nil
}

// synthesize returns deterministic source pixels for seed.
func synthesize(n, seed int) []byte {
	out := make([]byte, n)
	x := uint32(seed)*2654435761 + 1
	for i := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x)
	}
	return out
}

func (s *simulation) printTextures() {
	st := s.reg.Stats()
	fmt.Fprintf(s.out, "textures: %d loaded, %d decodes, %d hits, %d regenerated, %d uncached, %d placeholders\n",
		st.Textures, st.Decodes, st.Hits, st.Regenerations, st.Uncached, st.Placeholders)
	for _, t := range s.reg.Textures() {
		state := "resident"
		switch {
		case t.Placeholder:
			state = "placeholder"
		case t.Uncached:
			state = "uncached"
		case !t.Resident:
			state = "evicted"
		}
		fmt.Fprintf(s.out, "  %-16s %4dx%-4d %-8s crc %04x  %s\n", t.Name, t.Width, t.Height, t.Format, t.SourceCRC, state)
	}
	logger.L.Debug("simulation finished", "frame", s.frame, "textures", st.Textures)
}
