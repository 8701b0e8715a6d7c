package format

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Entry names are stored as fixed-width Windows-1252 fields, NUL padded,
// the way the engine's asset names are byte strings rather than UTF-8.

// PutName encodes name into dst (at most NameLen bytes), truncating and
// replacing characters that have no single-byte form.
func PutName(dst []byte, name string) {
	clear(dst)
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	raw, err := enc.Bytes([]byte(name))
	if err != nil {
		raw = []byte(name)
	}
	copy(dst, raw)
}

// DecodeName returns the display form of a fixed-width name field.
func DecodeName(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(src)
	if err != nil {
		return string(src)
	}
	return string(out)
}

// Name is a fixed-width encoded entry name.
type Name [NameLen]byte

// MakeName encodes s into a Name.
func MakeName(s string) Name {
	var n Name
	PutName(n[:], s)
	return n
}

// String decodes the name for display.
func (n Name) String() string {
	return DecodeName(n[:])
}
