package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZoneHeaderLayout(t *testing.T) {
	b := make([]byte, 2*ZoneHeaderSize)
	h := ZoneHeader{Size: 0x40, Tag: 1, ID: ZoneID, Prev: NoPrev}
	PutZoneHeader(b, ZoneHeaderSize, h)

	require.Equal(t, h, ReadZoneHeader(b, ZoneHeaderSize))
	require.False(t, h.Free())
	require.Equal(t, []byte{0x40, 0, 0, 0}, b[ZoneHeaderSize+ZoneSizeOffset:ZoneHeaderSize+ZoneTagOffset])
	require.Equal(t, uint32(ZoneID), ReadU32(b, ZoneHeaderSize+ZoneIDOffset))
	require.Equal(t, int32(-1), ReadI32(b, ZoneHeaderSize+ZonePrevOffset))
	require.Zero(t, ReadU32(b, 0), "header written outside its slot")
}
