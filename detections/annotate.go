package detections

import (
	"fmt"
	"image"
	"image/color"

	"github.com/Tutortoise/helmet-detection-service/models"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const boxThickness = 3

var (
	classColors = map[int]color.NRGBA{
		0: {R: 0, G: 255, B: 0, A: 255},
		1: {R: 255, G: 0, B: 0, A: 255},
	}
	fallbackColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	textColor     = image.NewUniform(color.White)
	labelFace     = basicfont.Face7x13
)

func colorFor(classID int) color.NRGBA {
	if c, ok := classColors[classID]; ok {
		return c
	}
	return fallbackColor
}

// Annotate draws boxes and labels on a copy of img and returns the copy.
// img itself is never written to.
func Annotate(img image.Image, detections []models.Detection) *image.NRGBA {
	dst := imaging.Clone(img)

	for _, det := range detections {
		c := colorFor(det.ClassID)
		box := image.Rect(det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3])
		strokeRect(dst, box, c, boxThickness)

		text := fmt.Sprintf("%s %.0f%%", det.Label, det.Confidence*100)
		textWidth := font.MeasureString(labelFace, text).Ceil()
		textHeight := labelFace.Metrics().Ascent.Ceil()

		labelY := max(det.BBox[1]-10, textHeight+10)
		background := image.Rect(det.BBox[0], labelY-textHeight-5, det.BBox[0]+textWidth+10, labelY+5)
		fillRect(dst, background, c)

		drawer := &font.Drawer{
			Dst:  dst,
			Src:  textColor,
			Face: labelFace,
			Dot:  fixed.P(det.BBox[0]+5, labelY),
		}
		drawer.DrawString(text)
	}

	return dst
}

// strokeRect draws an outline of the given thickness centred on r's edges.
func strokeRect(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	outer := r.Inset(-thickness / 2)
	inner := outer.Inset(thickness)
	if inner.Empty() {
		fillRect(dst, outer, c)
		return
	}

	fillRect(dst, image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y), c)
	fillRect(dst, image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y), c)
	fillRect(dst, image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y), c)
	fillRect(dst, image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y), c)
}

func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}
