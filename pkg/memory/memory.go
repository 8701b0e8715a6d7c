// Package memory assembles the arena, zone and cache into one context object
// with explicit construction and teardown.
//
// A Memory owns the fatal handler. Errors marked fatal (arena reservation
// failure, zone exhaustion, a bad reset mark, detected corruption) are
// routed to it through Fatal; the default handler logs and panics, since
// continuing with a broken memory model is unsafe. Tests install a
// recording handler instead.
//
//	m, err := memory.New(memory.Config{ArenaSize: 64 << 20})
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	ref, err := m.Zone().Strdup("exec autoexec.cfg")
package memory

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/hunk/cache"
	"github.com/joshuapare/hunkkit/hunk/printer"
	"github.com/joshuapare/hunkkit/hunk/verify"
	"github.com/joshuapare/hunkkit/hunk/zone"
	"github.com/joshuapare/hunkkit/internal/logger"
)

// ErrFatal marks errors that must terminate the process.
var ErrFatal = hunk.ErrFatal

// ErrConfig indicates an invalid Config.
var ErrConfig = errors.New("memory: invalid config")

// IsFatal reports whether err carries the fatal marker.
func IsFatal(err error) bool { return hunk.IsFatal(err) }

// FatalHandler receives fatal errors.
type FatalHandler func(err error)

// Option configures a Memory.
type Option func(*options)

type options struct {
	log     *slog.Logger
	onFatal FatalHandler
	reserve hunk.ReserveFunc
}

// WithLogger sets the logger shared by every layer.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFatalHandler replaces the default log-and-panic handler.
func WithFatalHandler(fn FatalHandler) Option {
	return func(o *options) { o.onFatal = fn }
}

// WithReserveFunc replaces the platform arena reservation.
func WithReserveFunc(fn hunk.ReserveFunc) Option {
	return func(o *options) { o.reserve = fn }
}

// Memory is one independent arena with its zone and cache.
type Memory struct {
	cfg     Config
	log     *slog.Logger
	onFatal FatalHandler

	arena *hunk.Arena
	zone  *zone.Zone
	cache *cache.Cache
}

// New reserves the arena, carves the zone from its bottom and installs the
// cache in the gap.
func New(cfg Config, opts ...Option) (*Memory, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Memory{cfg: cfg.withDefaults(), log: logger.Or(o.log), onFatal: o.onFatal}
	if m.onFatal == nil {
		m.onFatal = m.defaultFatal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	arenaOpts := []hunk.Option{hunk.WithLogger(m.log)}
	if o.reserve != nil {
		arenaOpts = append(arenaOpts, hunk.WithReserveFunc(o.reserve))
	}
	a, err := hunk.Reserve(int(m.cfg.ArenaSize), arenaOpts...)
	if err != nil {
		return nil, m.Fatal(err)
	}

	_, buf, err := a.Carve(int(m.cfg.ZoneSize), "zone")
	if err != nil {
		_ = a.Close()
		return nil, m.Fatal(err)
	}
	z, err := zone.New(buf, zone.WithLogger(m.log), zone.WithDebugChecks(m.cfg.DebugChecks))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	m.arena = a
	m.zone = z
	m.cache = cache.New(a, cache.WithLogger(m.log), cache.WithSlots(m.cfg.CacheSlots))
	m.log.Info("memory initialized",
		"arena", a.Size(), "zone", z.Budget(), "cache_slots", m.cfg.CacheSlots)
	return m, nil
}

// Config returns the effective configuration, defaults applied.
func (m *Memory) Config() Config { return m.cfg }

// Arena returns the arena.
func (m *Memory) Arena() *hunk.Arena { return m.arena }

// Zone returns the zone carved from the arena, or nil after Close.
func (m *Memory) Zone() *zone.Zone { return m.zone }

// Cache returns the cache living between the stacks.
func (m *Memory) Cache() *cache.Cache { return m.cache }

// Fatal passes err to the fatal handler when it carries the fatal marker and
// returns err unchanged either way.
func (m *Memory) Fatal(err error) error {
	if err != nil && IsFatal(err) {
		m.onFatal(err)
	}
	return err
}

func (m *Memory) defaultFatal(err error) {
	m.log.Error("fatal memory error", "err", err)
	panic(err)
}

// Check validates every layer. Corruption goes to the fatal handler.
func (m *Memory) Check() error {
	if m.arena == nil {
		return hunk.ErrClosed
	}
	return m.Fatal(verify.AllInvariants(m.arena, m.zone, m.cache))
}

// Snapshot captures the current layout for reporting.
func (m *Memory) Snapshot() printer.Snapshot {
	if m.arena == nil {
		return printer.Snapshot{}
	}
	return printer.Capture(m.arena, m.zone, m.cache)
}

// Report prints the current layout to w.
func (m *Memory) Report(w io.Writer, opts printer.Options) error {
	return printer.Print(w, m.Snapshot(), opts)
}

// Close flushes the cache, detaches the zone and releases the arena. The
// accessors return nil afterwards; zones and caches obtained earlier fail
// with hunk.ErrClosed.
func (m *Memory) Close() error {
	if m.arena == nil {
		return nil
	}
	m.cache.Flush()
	m.zone.Close()
	err := m.arena.Close()
	m.arena, m.zone, m.cache = nil, nil, nil
	m.log.Debug("memory closed")
	return err
}
