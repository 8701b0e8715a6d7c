package format

import "encoding/binary"

// PutU32 stores v little-endian at b[off:].
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutI32 stores v little-endian at b[off:].
func PutI32(b []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
}

// ReadU32 loads a little-endian uint32 from b[off:].
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadI32 loads a little-endian int32 from b[off:].
func ReadI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

// ZoneHeader is a decoded zone block header.
type ZoneHeader struct {
	Size int
	Tag  int
	ID   uint32
	Prev int
}

// Free reports whether the block is on the free list.
func (h ZoneHeader) Free() bool { return h.Tag == 0 }

// ReadZoneHeader decodes the header of the block at off. The caller checks
// that off+ZoneHeaderSize is within b.
func ReadZoneHeader(b []byte, off int) ZoneHeader {
	return ZoneHeader{
		Size: int(ReadI32(b, off+ZoneSizeOffset)),
		Tag:  int(ReadI32(b, off+ZoneTagOffset)),
		ID:   ReadU32(b, off+ZoneIDOffset),
		Prev: int(ReadI32(b, off+ZonePrevOffset)),
	}
}

// PutZoneHeader encodes h at off.
func PutZoneHeader(b []byte, off int, h ZoneHeader) {
	PutI32(b, off+ZoneSizeOffset, int32(h.Size))
	PutI32(b, off+ZoneTagOffset, int32(h.Tag))
	PutU32(b, off+ZoneIDOffset, h.ID)
	PutI32(b, off+ZonePrevOffset, int32(h.Prev))
}
