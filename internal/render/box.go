// Package render draws detections onto frames.
package render

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/yolodesk/internal/detector"
	"github.com/ayusman/yolodesk/internal/postprocess"
)

// LabelText formats a detection label as "<class> <conf>".
func LabelText(name string, conf float32) string {
	return fmt.Sprintf("%s %.2f", name, conf)
}

// Box draws one rectangle and its filled label above the top-left corner.
func Box(img *gocv.Mat, box detector.Box, label string, clr Palette, class, lineThickness int) {
	tl := LineThickness(lineThickness, img.Cols(), img.Rows())
	useClr := clr.Color(class)

	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2))
	gocv.Rectangle(img, rect, useClr, tl)

	if label == "" {
		return
	}

	font := FontFor(tl)
	textSize := gocv.GetTextSize(label, font.Face, font.Scale, font.Thickness)

	// filled background for the label
	labelRect := image.Rect(rect.Min.X, rect.Min.Y-textSize.Y-3, rect.Min.X+textSize.X, rect.Min.Y)
	gocv.Rectangle(img, labelRect, useClr, -1)

	gocv.PutTextWithParams(img, label, image.Pt(rect.Min.X, rect.Min.Y-2),
		font.Face, font.Scale, font.Color, font.Thickness, font.LineType, false)
}

// Detections draws every candidate with its class label and confidence.
func Detections(img *gocv.Mat, cands []detector.Candidate, names []string, clr Palette, lineThickness int) {
	for _, c := range cands {
		label := LabelText(postprocess.Label(names, c.Class), c.Confidence)
		Box(img, c.Box, label, clr, c.Class, lineThickness)
	}
}
