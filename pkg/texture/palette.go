package texture

// Palette maps the 256 indices of indexed sources to RGBA.
type Palette [256][4]byte

const (
	// FirstFullBright is the first index of the fullbright range, which
	// runs to the end of the palette.
	FirstFullBright = 224

	// TransparentIndex is transparent for textures loaded with Alpha.
	TransparentIndex = 255

	// ShirtRange and PantsRange are the first indices of the two 16-entry
	// player color ranges rewritten by Colors.
	ShirtRange = 16
	PantsRange = 96

	// MaxColor is the highest shirt or pants color.
	MaxColor = 13
)

// ramp bases for the 16 palette rows
var rampBase = [16][3]byte{
	{255, 255, 255}, {143, 111, 87}, {143, 143, 171}, {107, 107, 15},
	{127, 0, 0}, {143, 107, 0}, {183, 99, 43}, {171, 91, 67},
	{231, 147, 143}, {219, 191, 167}, {175, 123, 107}, {255, 239, 79},
	{43, 47, 255}, {255, 243, 27}, {255, 175, 127}, {255, 127, 0},
}

// DefaultPalette returns a palette with the usual row layout: sixteen ramps
// of sixteen shades, the first eight ramps dark to bright and the rest
// bright to dark, with the last two rows fullbright.
func DefaultPalette() *Palette {
	var p Palette
	for i := range p {
		row, shade := i/16, i%16
		if row >= 8 {
			shade = 15 - shade
		}
		base := rampBase[row]
		for c := range 3 {
			p[i][c] = byte(int(base[c]) * (shade + 1) / 16)
		}
		p[i][3] = 255
	}
	return &p
}

// translation returns the index remap for player colors.
func translation(shirt, pants int8) [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	remap := func(rng int, color int8) {
		if color < 0 {
			return
		}
		start := int(color) * 16
		for j := range 16 {
			if start < 128 {
				t[rng+j] = byte(start + j)
			} else {
				t[rng+j] = byte(start + 15 - j)
			}
		}
	}
	remap(ShirtRange, shirt)
	remap(PantsRange, pants)
	return t
}
