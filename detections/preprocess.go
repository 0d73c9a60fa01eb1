package detections

import (
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// letterbox records how the original image was placed inside the model
// input so boxes can be mapped back.
type letterbox struct {
	scale        float64
	padX, padY   int
	origW, origH int
}

func (l letterbox) toOriginal(x, y float64) (float64, float64) {
	ox := (x - float64(l.padX)) / l.scale
	oy := (y - float64(l.padY)) / l.scale
	return clamp(ox, 0, float64(l.origW)), clamp(oy, 0, float64(l.origH))
}

type tensorBuffer struct {
	data []float32
}

// Preprocessor turns images into normalised CHW float tensors.
type Preprocessor struct {
	width, height int
	numWorkers    int
	bufferPool    *sync.Pool
}

func NewPreprocessor(width, height int) *Preprocessor {
	return &Preprocessor{
		width:      width,
		height:     height,
		numWorkers: runtime.GOMAXPROCS(0),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return &tensorBuffer{data: make([]float32, width*height*3)}
			},
		},
	}
}

// Process returns a pooled buffer; hand it back with Put once the tensor
// has been copied into a session.
func (p *Preprocessor) Process(img image.Image) (*tensorBuffer, letterbox) {
	canvas, lb := p.letterbox(img)
	buffer := p.bufferPool.Get().(*tensorBuffer)
	p.processParallel(canvas, buffer.data)
	return buffer, lb
}

func (p *Preprocessor) Put(buffer *tensorBuffer) {
	p.bufferPool.Put(buffer)
}

func (p *Preprocessor) letterbox(img image.Image) (*image.NRGBA, letterbox) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := math.Min(float64(p.width)/float64(w), float64(p.height)/float64(h))

	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	padX := (p.width - nw) / 2
	padY := (p.height - nh) / 2

	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas := imaging.New(p.width, p.height, color.NRGBA{R: LetterboxFill, G: LetterboxFill, B: LetterboxFill, A: 255})
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return canvas, letterbox{scale: scale, padX: padX, padY: padY, origW: w, origH: h}
}

func (p *Preprocessor) processParallel(img *image.NRGBA, buffer []float32) {
	channelSize := p.width * p.height
	rowsPerWorker := (p.height + p.numWorkers - 1) / p.numWorkers

	var wg sync.WaitGroup
	for start := 0; start < p.height; start += rowsPerWorker {
		end := min(start+rowsPerWorker, p.height)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row := img.Pix[y*img.Stride : y*img.Stride+p.width*4]
				offset := y * p.width
				for x := 0; x < p.width; x++ {
					i := offset + x
					buffer[i] = float32(row[x*4]) / 255.0
					buffer[channelSize+i] = float32(row[x*4+1]) / 255.0
					buffer[channelSize*2+i] = float32(row[x*4+2]) / 255.0
				}
			}
		}(start, end)
	}
	wg.Wait()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
