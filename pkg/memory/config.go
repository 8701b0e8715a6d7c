package memory

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultZoneSize is the zone budget used when Config.ZoneSize is zero.
	DefaultZoneSize = 48 * 1024

	// DefaultCacheSlots is the cache entry limit used when Config.CacheSlots is zero.
	DefaultCacheSlots = 1024
)

// Config sizes a Memory. ArenaSize has no default: the caller decides the
// memory ceiling.
type Config struct {
	ArenaSize   Size `yaml:"arena_size"`
	ZoneSize    Size `yaml:"zone_size"`
	CacheSlots  int  `yaml:"cache_slots"`
	DebugChecks bool `yaml:"debug_checks"`
}

// Size is a byte count. In YAML it is either a plain integer or a string
// with a binary suffix such as "64MiB", "48KiB" or "512K".
type Size int

// UnmarshalYAML accepts integers and suffixed strings.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		if n < 0 {
			return errors.Wrapf(ErrConfig, "memory: negative size %d", n)
		}
		*s = Size(n)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = Size(parsed)
	return nil
}

var sizeSuffixes = []struct {
	suffix string
	mult   int
}{
	{"gib", 1 << 30}, {"mib", 1 << 20}, {"kib", 1 << 10},
	{"g", 1 << 30}, {"m", 1 << 20}, {"k", 1 << 10},
	{"b", 1},
}

// ParseSize parses a byte count with an optional binary suffix.
func ParseSize(s string) (int, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	mult := 1
	for _, sfx := range sizeSuffixes {
		if strings.HasSuffix(t, sfx.suffix) {
			t = strings.TrimSpace(strings.TrimSuffix(t, sfx.suffix))
			mult = sfx.mult
			break
		}
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, errors.Wrapf(ErrConfig, "memory: bad size %q", s)
	}
	if n < 0 {
		return 0, errors.Wrapf(ErrConfig, "memory: negative size %q", s)
	}
	if n > math.MaxInt/mult {
		return 0, errors.Wrapf(ErrConfig, "memory: size %q overflows", s)
	}
	return n * mult, nil
}

// withDefaults fills zero fields with their defaults.
func (c Config) withDefaults() Config {
	if c.ZoneSize == 0 {
		c.ZoneSize = DefaultZoneSize
	}
	if c.CacheSlots == 0 {
		c.CacheSlots = DefaultCacheSlots
	}
	return c
}

// Validate reports configuration errors after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	switch {
	case c.ArenaSize <= 0:
		return errors.Wrap(ErrConfig, "memory: arena_size is required")
	case c.ZoneSize < 64:
		return errors.Wrapf(ErrConfig, "memory: zone_size %d below 64 bytes", c.ZoneSize)
	case int64(c.ZoneSize) > math.MaxInt32:
		// block headers hold 32-bit sizes
		return errors.Wrapf(ErrConfig, "memory: zone_size %d above %d bytes", c.ZoneSize, math.MaxInt32)
	case c.ZoneSize >= c.ArenaSize:
		return errors.Wrapf(ErrConfig, "memory: zone_size %d does not fit arena_size %d", c.ZoneSize, c.ArenaSize)
	case c.CacheSlots < 0:
		return errors.Wrapf(ErrConfig, "memory: cache_slots %d is negative", c.CacheSlots)
	}
	return nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "memory: read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "memory: parse %s", path), ErrConfig)
	}
	return &cfg, nil
}
