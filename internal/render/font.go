package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
}

// FontFor returns the label font matching a box line thickness.
func FontFor(lineThickness int) Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     float64(lineThickness) / 3,
		Color:     color.RGBA{R: 225, G: 255, B: 255, A: 255},
		Thickness: max(lineThickness-1, 1),
		LineType:  gocv.LineAA,
	}
}

// LineThickness returns a line width scaled to the image size when the
// configured value is not positive.
func LineThickness(configured, width, height int) int {
	if configured > 0 {
		return configured
	}
	return int(0.002*float64(width+height)/2+0.5) + 1
}
