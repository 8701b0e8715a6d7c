package texture

import (
	"bytes"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// image is decoded RGBA data: level 0 followed by its mip levels.
type image struct {
	pixels []byte
	width  int
	height int
	levels int
}

// decodeParams are the regeneration parameters recorded in a descriptor.
type decodeParams struct {
	format  SrcFormat
	width   int
	height  int
	flags   Flags
	shirt   int8
	pants   int8
	picmip  int
	palette *Palette
}

func decode(raw []byte, p decodeParams) (image, error) {
	if p.width <= 0 || p.height <= 0 {
		return image{}, errors.Wrapf(ErrDecode, "texture: bad dimensions %dx%d", p.width, p.height)
	}
	n := p.width * p.height
	if need := n * p.format.BytesPerPixel(); len(raw) < need {
		return image{}, errors.Wrapf(ErrDecode, "texture: %s source has %d bytes, need %d", p.format, len(raw), need)
	}

	var rgba []byte
	switch p.format {
	case Indexed:
		rgba = indexedToRGBA(raw[:n], p)
	case LightMap:
		rgba = make([]byte, n*4)
		for i, v := range raw[:n] {
			rgba[i*4], rgba[i*4+1], rgba[i*4+2], rgba[i*4+3] = v, v, v, 255
		}
	case RGBA:
		rgba = bytes.Clone(raw[:n*4])
	default:
		return image{}, errors.Wrapf(ErrDecode, "texture: unknown format %d", p.format)
	}

	w, h := p.width, p.height
	if p.flags&Pad != 0 {
		rgba, w, h = pad(rgba, w, h)
	}
	if p.flags&NoPicMip == 0 {
		for i := 0; i < p.picmip && (w > 1 || h > 1); i++ {
			rgba, w, h = halve(rgba, w, h)
		}
	}

	img := image{pixels: rgba, width: w, height: h, levels: 1}
	if p.flags&Mipmap != 0 {
		level, mw, mh := rgba, w, h
		for mw > 1 || mh > 1 {
			level, mw, mh = halve(level, mw, mh)
			img.pixels = append(img.pixels, level...)
			img.levels++
		}
	}
	return img, nil
}

func indexedToRGBA(src []byte, p decodeParams) []byte {
	pal := p.palette
	if pal == nil {
		pal = DefaultPalette()
	}
	var remap *[256]byte
	if p.shirt >= 0 || p.pants >= 0 {
		t := translation(p.shirt, p.pants)
		remap = &t
	}

	out := make([]byte, len(src)*4)
	for i, idx := range src {
		if remap != nil {
			idx = remap[idx]
		}
		c := pal[idx]
		switch {
		case p.flags&FullBright != 0 && idx < FirstFullBright:
			c = [4]byte{}
		case p.flags&NoBright != 0 && idx >= FirstFullBright:
			c = [4]byte{0, 0, 0, 255}
		}
		if (p.flags&Alpha != 0 && idx == TransparentIndex) || (p.flags&Conchars != 0 && idx == 0) {
			c = [4]byte{}
		}
		copy(out[i*4:i*4+4], c[:])
	}
	return out
}

// halve box-filters an RGBA image to half size, clamping odd edges.
func halve(src []byte, w, h int) ([]byte, int, int) {
	nw, nh := max(1, w/2), max(1, h/2)
	out := make([]byte, nw*nh*4)
	for y := range nh {
		y0, y1 := min(2*y, h-1), min(2*y+1, h-1)
		for x := range nw {
			x0, x1 := min(2*x, w-1), min(2*x+1, w-1)
			for c := range 4 {
				sum := int(src[(y0*w+x0)*4+c]) + int(src[(y0*w+x1)*4+c]) +
					int(src[(y1*w+x0)*4+c]) + int(src[(y1*w+x1)*4+c])
				out[(y*nw+x)*4+c] = byte((sum + 2) / 4)
			}
		}
	}
	return out, nw, nh
}

// pad grows an RGBA image to power-of-two dimensions with transparent texels.
func pad(src []byte, w, h int) ([]byte, int, int) {
	pw, ph := pow2(w), pow2(h)
	if pw == w && ph == h {
		return src, w, h
	}
	out := make([]byte, pw*ph*4)
	for y := range h {
		copy(out[y*pw*4:], src[y*w*4:(y+1)*w*4])
	}
	return out, pw, ph
}

func pow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
