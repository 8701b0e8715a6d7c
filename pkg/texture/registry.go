package texture

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/hunk/cache"
	"github.com/joshuapare/hunkkit/internal/crc16"
	"github.com/joshuapare/hunkkit/internal/logger"
)

// MaxTextures is the default size of the descriptor table.
const MaxTextures = 2048

// NoColor is the Shirt and Pants value of a texture that is never colormapped.
const NoColor = -1

const placeholderSize = 8

// OwnerID groups textures loaded on behalf of one model or map. Zero is the
// global owner.
type OwnerID uint32

// Colors are the player colors applied to an indexed texture, 0 to MaxColor.
type Colors struct {
	Shirt int
	Pants int
}

// Request describes a texture to find or load. A nil Colors means the
// texture is never colormapped.
type Request struct {
	Name   string
	Owner  OwnerID
	Source Source
	Format SrcFormat
	Width  int
	Height int
	Flags  Flags
	Colors *Colors
}

func (req Request) colors() (shirt, pants int8) {
	if req.Colors == nil {
		return NoColor, NoColor
	}
	return int8(req.Colors.Shirt), int8(req.Colors.Pants)
}

func (req Request) validate() error {
	switch {
	case req.Name == "":
		return errors.Wrap(ErrBadRequest, "texture: empty name")
	case req.Width <= 0 || req.Height <= 0:
		return errors.Wrapf(ErrBadRequest, "texture: %q has bad dimensions %dx%d", req.Name, req.Width, req.Height)
	case !req.Format.valid():
		return errors.Wrapf(ErrBadRequest, "texture: %q has unknown format %d", req.Name, req.Format)
	}
	if c := req.Colors; c != nil {
		if c.Shirt < 0 || c.Shirt > MaxColor || c.Pants < 0 || c.Pants > MaxColor {
			return errors.Wrapf(ErrBadRequest, "texture: %q colors %d/%d out of range", req.Name, c.Shirt, c.Pants)
		}
	}
	return nil
}

// Handle refers to a texture descriptor. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Texture is a snapshot of a descriptor.
type Texture struct {
	Name         string
	Owner        OwnerID
	Width        int // decoded level 0
	Height       int
	Levels       int
	Flags        Flags
	Source       Source
	Format       SrcFormat
	SourceWidth  int
	SourceHeight int
	SourceCRC    uint16
	Shirt        int8
	Pants        int8
	VisFrame     int

	Resident    bool // pixels available without regeneration
	Uncached    bool // pixels held outside the cache
	Placeholder bool
	Stale       bool // source is re-read and checksummed on next access
}

type key struct {
	owner OwnerID
	name  string
	shirt int8
	pants int8
}

type entry struct {
	gen         uint32
	live        bool
	desc        Texture
	crcKnown    bool
	placeholder bool
	recheck     bool
	data        cache.Handle
	heap        []byte
}

func (e *entry) key() key {
	return key{owner: e.desc.Owner, name: e.desc.Name, shirt: e.desc.Shirt, pants: e.desc.Pants}
}

func (e *entry) sameSource(req Request) bool {
	return e.desc.Source.equal(req.Source) && e.sameShape(req)
}

// sameShape reports whether req decodes the same bytes to the same pixels.
func (e *entry) sameShape(req Request) bool {
	return e.desc.Format == req.Format &&
		e.desc.SourceWidth == req.Width && e.desc.SourceHeight == req.Height &&
		e.desc.Flags&^Overwrite == req.Flags&^Overwrite
}

// Stats counts registry activity.
type Stats struct {
	Textures      int
	Hits          int
	Decodes       int
	Regenerations int
	Uncached      int
	Placeholders  int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithPalette replaces the default palette.
func WithPalette(p *Palette) Option {
	return func(r *Registry) { r.palette = p }
}

// WithPicMip sets the initial picmip level.
func WithPicMip(n int) Option {
	return func(r *Registry) { r.picmip = max(0, n) }
}

// WithMaxTextures sets the descriptor table size.
func WithMaxTextures(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.max = n
		}
	}
}

// WithFatalHandler receives fatal memory errors before they are returned.
func WithFatalHandler(fn func(error)) Option {
	return func(r *Registry) { r.onFatal = fn }
}

// Registry maps texture identities to descriptors and their cached pixels.
type Registry struct {
	cache   *cache.Cache
	arena   *hunk.Arena
	loader  Loader
	log     *slog.Logger
	palette *Palette
	picmip  int
	max     int
	onFatal func(error)

	table []entry
	free  []uint32
	byKey map[key]uint32
	frame int

	placeholder     hunk.Block
	placeholderHeap []byte

	stats Stats
}

// NewRegistry creates a registry storing pixels in c. The placeholder
// checkerboard is allocated on a's low stack.
func NewRegistry(c *cache.Cache, a *hunk.Arena, loader Loader, opts ...Option) (*Registry, error) {
	if c == nil || a == nil || loader == nil {
		return nil, errors.AssertionFailedf("texture: NewRegistry needs a cache, an arena and a loader")
	}
	r := &Registry{cache: c, arena: a, loader: loader, max: MaxTextures}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.Or(r.log)
	if r.palette == nil {
		r.palette = DefaultPalette()
	}

	r.table = make([]entry, r.max)
	r.free = make([]uint32, 0, r.max)
	for i := r.max - 1; i >= 0; i-- {
		r.table[i].gen = 1
		r.free = append(r.free, uint32(i))
	}
	r.byKey = make(map[key]uint32)

	pixels := checkerboard(placeholderSize)
	b, buf, err := a.AllocLow(len(pixels), "notexture")
	if err != nil {
		return nil, r.fatal(errors.Wrap(err, "texture: placeholder"))
	}
	copy(buf, pixels)
	r.placeholder = b
	r.placeholderHeap = pixels
	return r, nil
}

func checkerboard(n int) []byte {
	out := make([]byte, n*n*4)
	for y := range n {
		for x := range n {
			p := out[(y*n+x)*4:]
			if (x+y)%2 == 0 {
				p[0], p[2] = 255, 255
			}
			p[3] = 255
		}
	}
	return out
}

// FindOrLoad returns the texture matching req's identity, loading or
// regenerating its pixels as needed.
func (r *Registry) FindOrLoad(req Request) (Handle, error) {
	if err := req.validate(); err != nil {
		return Handle{}, err
	}
	shirt, pants := req.colors()
	k := key{owner: req.Owner, name: req.Name, shirt: shirt, pants: pants}

	if idx, ok := r.byKey[k]; ok {
		e := &r.table[idx]
		h := Handle{index: idx, gen: e.gen}
		if !e.sameSource(req) {
			if req.Flags&Overwrite == 0 {
				return Handle{}, errors.Wrapf(ErrNameInUse, "texture: %q already loaded from another source", req.Name)
			}
			r.log.Debug("texture overwrite", "name", req.Name)
			if !e.sameShape(req) {
				r.dropData(e)
				e.crcKnown = false
			}
			e.desc.Source = req.Source
			e.desc.Format = req.Format
			e.desc.SourceWidth = req.Width
			e.desc.SourceHeight = req.Height
			e.desc.Flags = req.Flags
			e.placeholder = false
			return h, r.load(e)
		}
		if e.recheck {
			return h, r.load(e)
		}
		if e.placeholder || r.resident(e) {
			r.stats.Hits++
			if !e.data.IsZero() {
				_ = r.cache.Touch(e.data)
			}
			return h, nil
		}
		r.stats.Regenerations++
		return h, r.load(e)
	}

	if len(r.free) == 0 {
		return Handle{}, errors.Wrapf(ErrTableFull, "texture: %d textures loaded", r.max)
	}
	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	e := &r.table[idx]
	e.live = true
	e.desc = Texture{
		Name:         req.Name,
		Owner:        req.Owner,
		Flags:        req.Flags,
		Source:       req.Source,
		Format:       req.Format,
		SourceWidth:  req.Width,
		SourceHeight: req.Height,
		Shirt:        shirt,
		Pants:        pants,
		VisFrame:     r.frame,
	}
	r.byKey[k] = idx
	return Handle{index: idx, gen: e.gen}, r.load(e)
}

// load reads and checksums e's source. Resident pixels whose source
// checksum is unchanged are kept; otherwise the source is decoded and stored.
// Read and decode failures install the placeholder; only fatal errors are
// returned.
func (r *Registry) load(e *entry) error {
	d := &e.desc
	e.recheck = false
	raw, err := r.loader.LoadSource(d.Source, d.Format, d.SourceWidth, d.SourceHeight)
	if err != nil {
		r.usePlaceholder(e, err)
		return nil
	}

	crc := crc16.Checksum(raw)
	if e.crcKnown && crc == d.SourceCRC && !e.placeholder && r.resident(e) {
		r.log.Debug("texture source unchanged", "name", d.Name, "crc", crc)
		return nil
	}
	if e.crcKnown && crc != d.SourceCRC {
		r.log.Warn("texture source changed", "name", d.Name, "old_crc", d.SourceCRC, "new_crc", crc)
	}
	d.SourceCRC = crc
	e.crcKnown = true

	img, err := decode(raw, decodeParams{
		format:  d.Format,
		width:   d.SourceWidth,
		height:  d.SourceHeight,
		flags:   d.Flags,
		shirt:   d.Shirt,
		pants:   d.Pants,
		picmip:  r.picmip,
		palette: r.palette,
	})
	if err != nil {
		r.usePlaceholder(e, err)
		return nil
	}
	r.stats.Decodes++
	r.dropData(e)
	e.placeholder = false
	d.Width, d.Height, d.Levels = img.width, img.height, img.levels
	return r.store(e, img.pixels)
}

func (r *Registry) store(e *entry, pixels []byte) error {
	name := e.desc.Name
	var (
		h   cache.Handle
		buf []byte
		err error
	)
	if e.desc.Flags&Persist != 0 {
		h, buf, err = r.cache.AllocPinned(len(pixels), name)
	} else {
		h, buf, err = r.cache.Alloc(len(pixels), name)
	}
	switch {
	case err == nil:
		copy(buf, pixels)
		e.data = h
		e.heap = nil
		return nil
	case errors.Is(err, cache.ErrExhausted):
		r.log.Warn("texture served uncached", "name", name, "size", len(pixels), "err", err)
		e.data = cache.Handle{}
		e.heap = pixels
		r.stats.Uncached++
		return nil
	default:
		return r.fatal(errors.Wrapf(err, "texture: store %q", name))
	}
}

func (r *Registry) usePlaceholder(e *entry, err error) {
	r.log.Warn("texture replaced by placeholder", "name", e.desc.Name, "err", err)
	r.dropData(e)
	e.placeholder = true
	e.desc.Width, e.desc.Height, e.desc.Levels = placeholderSize, placeholderSize, 1
	r.stats.Placeholders++
}

func (r *Registry) dropData(e *entry) {
	if !e.data.IsZero() {
		_ = r.cache.Free(e.data)
	}
	e.data = cache.Handle{}
	e.heap = nil
}

func (r *Registry) resident(e *entry) bool {
	return e.heap != nil || r.cache.Resident(e.data)
}

func (r *Registry) fatal(err error) error {
	if hunk.IsFatal(err) && r.onFatal != nil {
		r.onFatal(err)
	}
	return err
}

func (r *Registry) lookup(h Handle) (*entry, error) {
	if h.gen == 0 || int(h.index) >= len(r.table) {
		return nil, ErrInvalidHandle
	}
	e := &r.table[h.index]
	if !e.live || e.gen != h.gen {
		return nil, ErrInvalidHandle
	}
	return e, nil
}

func (r *Registry) placeholderPixels() []byte {
	if buf, err := r.arena.Bytes(r.placeholder); err == nil {
		return buf
	}
	return r.placeholderHeap
}

// MarkUsed records that h was drawn in frame and touches its pixels. Calls
// after the first in the same frame do nothing.
func (r *Registry) MarkUsed(h Handle, frame int) error {
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.frame = max(r.frame, frame)
	if e.desc.VisFrame == frame {
		return nil
	}
	e.desc.VisFrame = frame
	if !e.data.IsZero() {
		_ = r.cache.Touch(e.data)
	}
	return nil
}

func (r *Registry) idle(e *entry, frame, threshold int) bool {
	return e.live && e.desc.Flags&Persist == 0 && frame-e.desc.VisFrame >= threshold
}

// CollectUnused counts non-persistent textures not drawn in the last
// threshold frames.
func (r *Registry) CollectUnused(frame, threshold int) int {
	n := 0
	for i := range r.table {
		if r.idle(&r.table[i], frame, threshold) {
			n++
		}
	}
	return n
}

// ReleaseUnused drops the pixels of the textures CollectUnused counts. The
// descriptors stay and regenerate on the next access. Returns the number of
// textures whose pixels were released.
func (r *Registry) ReleaseUnused(frame, threshold int) int {
	n := 0
	for i := range r.table {
		e := &r.table[i]
		if !r.idle(e, frame, threshold) || !r.resident(e) {
			continue
		}
		r.dropData(e)
		n++
	}
	if n > 0 {
		r.log.Debug("released unused textures", "count", n, "frame", frame)
	}
	return n
}

// Pixels returns the RGBA pixels of h, level 0 followed by any mip levels,
// regenerating them if they were evicted. The slice is only valid until the
// next call that allocates from the cache or arena.
func (r *Registry) Pixels(h Handle) ([]byte, error) {
	e, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	if e.recheck {
		if err := r.load(e); err != nil {
			return nil, err
		}
	}
	if !e.placeholder && e.heap == nil {
		if data, ok := r.cache.Check(e.data); ok {
			return data, nil
		}
		r.stats.Regenerations++
		if err := r.load(e); err != nil {
			return nil, err
		}
	}
	switch {
	case e.placeholder:
		return r.placeholderPixels(), nil
	case e.heap != nil:
		return e.heap, nil
	default:
		return r.cache.Data(e.data)
	}
}

// Get returns a snapshot of h's descriptor.
func (r *Registry) Get(h Handle) (Texture, error) {
	e, err := r.lookup(h)
	if err != nil {
		return Texture{}, err
	}
	return r.export(e), nil
}

func (r *Registry) export(e *entry) Texture {
	t := e.desc
	t.Placeholder = e.placeholder
	t.Uncached = e.heap != nil
	t.Resident = e.placeholder || r.resident(e)
	t.Stale = e.recheck
	return t
}

// Free releases the texture and its pixels.
func (r *Registry) Free(h Handle) error {
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.release(h.index, e)
	return nil
}

func (r *Registry) release(idx uint32, e *entry) {
	r.dropData(e)
	delete(r.byKey, e.key())
	*e = entry{gen: e.gen + 1}
	if e.gen == 0 {
		e.gen = 1
	}
	r.free = append(r.free, idx)
}

// FreeForOwner releases every texture of owner and returns how many there were.
func (r *Registry) FreeForOwner(owner OwnerID) int {
	n := 0
	for i := range r.table {
		e := &r.table[i]
		if e.live && e.desc.Owner == owner {
			r.release(uint32(i), e)
			n++
		}
	}
	if n > 0 {
		r.log.Debug("freed textures for owner", "owner", owner, "count", n)
	}
	return n
}

// ReloadAll re-reads every texture's source and decodes those whose
// checksum changed or whose pixels are gone. Placeholders get another chance
// to load.
func (r *Registry) ReloadAll() error {
	for i := range r.table {
		e := &r.table[i]
		if !e.live {
			continue
		}
		e.placeholder = false
		if err := r.load(e); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate marks every texture read from file stale. The next access
// re-reads the file and decodes again only if its checksum changed. Returns
// the number of textures affected.
func (r *Registry) Invalidate(file string) int {
	n := 0
	for i := range r.table {
		e := &r.table[i]
		if e.live && e.desc.Source.File == file {
			e.recheck = true
			n++
		}
	}
	return n
}

// SetPicMip changes the picmip level. Textures affected by picmip drop their
// pixels and regenerate at the new size on next access.
func (r *Registry) SetPicMip(n int) {
	n = max(0, n)
	if n == r.picmip {
		return
	}
	r.picmip = n
	for i := range r.table {
		e := &r.table[i]
		if e.live && !e.placeholder && e.desc.Flags&NoPicMip == 0 {
			r.dropData(e)
		}
	}
}

// PicMip returns the current picmip level.
func (r *Registry) PicMip() int { return r.picmip }

// Len returns the number of live textures.
func (r *Registry) Len() int { return len(r.byKey) }

// Textures returns every live texture ordered by owner, then name.
func (r *Registry) Textures() []Texture {
	out := make([]Texture, 0, len(r.byKey))
	for i := range r.table {
		if e := &r.table[i]; e.live {
			out = append(out, r.export(e))
		}
	}
	slices.SortFunc(out, func(a, b Texture) int {
		if a.Owner != b.Owner {
			if a.Owner < b.Owner {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.Shirt)*16 + int(a.Pants) - (int(b.Shirt)*16 + int(b.Pants))
	})
	return out
}

// Stats returns activity counters.
func (r *Registry) Stats() Stats {
	st := r.stats
	st.Textures = len(r.byKey)
	return st
}
