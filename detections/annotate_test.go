package detections

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/Tutortoise/helmet-detection-service/models"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func TestAnnotate(t *testing.T) {
	black := color.NRGBA{A: 255}
	green := classColors[0]
	red := classColors[1]

	src := solidImage(200, 200, black)
	original := append([]byte(nil), src.Pix...)

	dets := []models.Detection{
		{Label: LabelWithHelmet, Confidence: 0.95, BBox: [4]int{20, 60, 120, 160}, ClassID: 0},
		{Label: LabelWithoutHelmet, Confidence: 0.5, BBox: [4]int{140, 20, 190, 190}, ClassID: 1},
	}

	out := Annotate(src, dets)

	t.Run("source image is untouched", func(t *testing.T) {
		if !bytes.Equal(src.Pix, original) {
			t.Error("Annotate modified the source image")
		}
	})

	t.Run("returns a distinct image of the same size", func(t *testing.T) {
		if out == src {
			t.Fatal("expected a copy, got the source image")
		}
		if out.Bounds() != src.Bounds() {
			t.Errorf("expected bounds %v, got %v", src.Bounds(), out.Bounds())
		}
	})

	t.Run("draws box edges in the class colour", func(t *testing.T) {
		if got := out.NRGBAAt(20, 110); got != green {
			t.Errorf("expected left edge %v, got %v", green, got)
		}
		if got := out.NRGBAAt(120, 110); got != green {
			t.Errorf("expected right edge %v, got %v", green, got)
		}
		if got := out.NRGBAAt(190, 100); got != red {
			t.Errorf("expected right edge of second box %v, got %v", red, got)
		}
	})

	t.Run("leaves the box interior alone", func(t *testing.T) {
		if got := out.NRGBAAt(70, 120); got != black {
			t.Errorf("expected interior %v, got %v", black, got)
		}
	})

	t.Run("fills the label background above the box", func(t *testing.T) {
		// label baseline is y1-10 = 50; the background spans up to ascent+5 above it
		if got := out.NRGBAAt(22, 40); got != green {
			t.Errorf("expected label background %v, got %v", green, got)
		}
	})

	t.Run("draws white label text", func(t *testing.T) {
		found := false
		for y := 34; y < 55 && !found; y++ {
			for x := 25; x < 100; x++ {
				if out.NRGBAAt(x, y) == (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
					found = true
					break
				}
			}
		}
		if !found {
			t.Error("expected white text pixels inside the label")
		}
	})
}

func TestAnnotate_UnknownClassIsWhite(t *testing.T) {
	src := solidImage(100, 100, color.NRGBA{A: 255})
	out := Annotate(src, []models.Detection{
		{Label: "7", Confidence: 0.8, BBox: [4]int{30, 40, 80, 90}, ClassID: 7},
	})

	if got := out.NRGBAAt(30, 70); got != fallbackColor {
		t.Errorf("expected %v, got %v", fallbackColor, got)
	}
}

func TestAnnotate_NoDetections(t *testing.T) {
	src := solidImage(10, 10, color.NRGBA{R: 9, G: 8, B: 7, A: 255})
	out := Annotate(src, nil)

	if !bytes.Equal(out.Pix, src.Pix) {
		t.Error("expected an identical copy when there is nothing to draw")
	}
}

func TestAnnotate_LabelClampedToTop(t *testing.T) {
	src := solidImage(100, 100, color.NRGBA{A: 255})
	out := Annotate(src, []models.Detection{
		{Label: LabelWithHelmet, Confidence: 0.9, BBox: [4]int{10, 2, 60, 60}, ClassID: 0},
	})

	// the baseline is pushed down to ascent+10 so the label stays on screen
	textHeight := labelFace.Metrics().Ascent.Ceil()
	labelY := textHeight + 10
	if got := out.NRGBAAt(12, labelY-textHeight-4); got != classColors[0] {
		t.Errorf("expected label background near the top, got %v", got)
	}
}
