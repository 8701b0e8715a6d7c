package verify

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hunkkit/hunk"
	"github.com/joshuapare/hunkkit/hunk/cache"
	"github.com/joshuapare/hunkkit/hunk/zone"
	"github.com/joshuapare/hunkkit/internal/format"
)

func newLayers(t *testing.T) (*hunk.Arena, *zone.Zone, *cache.Cache) {
	t.Helper()
	a, err := hunk.Reserve(256 << 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, buf, err := a.Carve(4096, "zone")
	require.NoError(t, err)
	z, err := zone.New(buf)
	require.NoError(t, err)
	return a, z, cache.New(a)
}

func TestAllInvariants_Valid(t *testing.T) {
	a, z, c := newLayers(t)

	_, err := z.Strdup("map e1m1")
	require.NoError(t, err)
	_, _, err = a.AllocLow(1000, "level")
	require.NoError(t, err)
	_, _, err = a.AllocHigh(2000, "scratch")
	require.NoError(t, err)
	_, _, err = c.Alloc(5000, "sound")
	require.NoError(t, err)

	require.NoError(t, AllInvariants(a, z, c))
	require.NoError(t, AllInvariants(a, nil, nil))
}

func TestZoneImage_BadSentinel(t *testing.T) {
	a, z, _ := newLayers(t)
	ref, _, err := z.Alloc(40)
	require.NoError(t, err)

	format.PutU32(a.Raw(), int(ref)-format.ZoneHeaderSize+format.ZoneIDOffset, 0xBAD)

	err = ZoneImage(a.Raw()[:z.Budget()])
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad sentinel")
	require.True(t, errors.Is(err, hunk.ErrCorrupt))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, 0, ve.Offset)
}

func TestZoneImage_Overrun(t *testing.T) {
	a, z, _ := newLayers(t)
	ref, _, err := z.Alloc(12)
	require.NoError(t, err)
	capBuf, err := z.Bytes(ref)
	require.NoError(t, err)

	a.Raw()[int(ref)+len(capBuf)] ^= 0xFF
	err = ZoneImage(a.Raw()[:z.Budget()])
	require.Error(t, err)
	require.Contains(t, err.Error(), "block overrun")
}

func TestZoneImage_TooSmall(t *testing.T) {
	err := ZoneImage(make([]byte, 16))
	require.Error(t, err)
	require.Contains(t, err.Error(), "too small")
}

func TestZone_NotCarved(t *testing.T) {
	a, err := hunk.Reserve(64 << 10)
	require.NoError(t, err)
	defer a.Close()

	z, err := zone.New(make([]byte, 4096))
	require.NoError(t, err)

	err = Zone(a, z)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds carved")
}

func TestZone_PropagatesLayerError(t *testing.T) {
	a, z, _ := newLayers(t)
	_, _, err := z.Alloc(40)
	require.NoError(t, err)
	format.PutI32(a.Raw(), format.ZonePrevOffset, 32)

	err = Zone(a, z)
	require.Error(t, err)
	require.True(t, errors.Is(err, zone.ErrCorrupt))
	require.True(t, hunk.IsFatal(err))
}

func TestArena_Closed(t *testing.T) {
	a, err := hunk.Reserve(64 << 10)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	err = AllInvariants(a, nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, hunk.ErrClosed))
}
