package render

import (
	"image/color"
	"math/rand/v2"
)

var (
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// Palette holds one box color per class.
type Palette []color.RGBA

// RandomPalette returns n random colors. The same seed always produces the
// same palette.
func RandomPalette(n int, seed uint64) Palette {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	p := make(Palette, n)
	for i := range p {
		p[i] = color.RGBA{
			R: uint8(rng.IntN(256)),
			G: uint8(rng.IntN(256)),
			B: uint8(rng.IntN(256)),
			A: 255,
		}
	}
	return p
}

// Color returns the color for class, wrapping around for unknown ids.
func (p Palette) Color(class int) color.RGBA {
	if len(p) == 0 {
		return White
	}
	if class < 0 {
		class = -class
	}
	return p[class%len(p)]
}
