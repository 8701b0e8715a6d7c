package texture

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Flags select how a texture is regenerated and how long it lives.
type Flags uint32

const (
	// Mipmap builds a box-filtered mip chain.
	Mipmap Flags = 1 << iota
	// Linear forces linear filtering.
	Linear
	// Nearest forces nearest filtering.
	Nearest
	// Alpha makes palette index 255 transparent.
	Alpha
	// Pad pads the image up to power-of-two dimensions.
	Pad
	// Persist pins the pixels in the cache; they are never evicted for space.
	Persist
	// Overwrite lets a request replace an existing texture of the same name.
	Overwrite
	// NoPicMip always loads full size.
	NoPicMip
	// FullBright keeps only the fullbright palette range.
	FullBright
	// NoBright blacks out the fullbright palette range.
	NoBright
	// Conchars makes palette index 0 transparent.
	Conchars
	// WarpImage marks textures resized with the warp image size.
	WarpImage
)

var flagNames = []string{
	"Mipmap", "Linear", "Nearest", "Alpha", "Pad", "Persist",
	"Overwrite", "NoPicMip", "FullBright", "NoBright", "Conchars", "WarpImage",
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlags combines flag names as printed by String, ignoring case.
func ParseFlags(names ...string) (Flags, error) {
	var f Flags
	for _, name := range names {
		i := indexFold(flagNames, name)
		if i < 0 {
			return 0, errors.Wrapf(ErrBadRequest, "texture: unknown flag %q", name)
		}
		f |= 1 << i
	}
	return f, nil
}

func indexFold(list []string, s string) int {
	for i, v := range list {
		if strings.EqualFold(v, s) {
			return i
		}
	}
	return -1
}

// SrcFormat is the pixel format of the source data.
type SrcFormat uint8

const (
	// Indexed is one palette index per pixel.
	Indexed SrcFormat = iota
	// LightMap is one luminance byte per pixel.
	LightMap
	// RGBA is four bytes per pixel.
	RGBA
)

func (f SrcFormat) String() string {
	switch f {
	case Indexed:
		return "indexed"
	case LightMap:
		return "lightmap"
	case RGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// ParseSrcFormat parses a format name as printed by String.
func ParseSrcFormat(s string) (SrcFormat, error) {
	for f := Indexed; f <= RGBA; f++ {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return 0, errors.Wrapf(ErrBadRequest, "texture: unknown format %q", s)
}

// BytesPerPixel returns the source size of one pixel.
func (f SrcFormat) BytesPerPixel() int {
	if f == RGBA {
		return 4
	}
	return 1
}

func (f SrcFormat) valid() bool { return f <= RGBA }
