package detections

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/Tutortoise/helmet-detection-service/models"
	"github.com/disintegration/imaging"
)

// Detector finds helmets in an image and renders the findings.
type Detector interface {
	// DetectAndAnnotate returns an annotated copy of img together with
	// every detection whose rounded confidence exceeds threshold.
	// A nil img yields a nil image and an empty list.
	DetectAndAnnotate(ctx context.Context, img image.Image, threshold float64, timings *models.ProcessingTimings) (*image.NRGBA, []models.Detection, error)

	Close() error
}

type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

type Config struct {
	Name      string
	ModelPath string
	PoolSize  int
	// Threads per session; zero splits the CPUs evenly across the pool.
	Threads int
}

// HelmetDetector runs a YOLO helmet model through ONNX Runtime.
type HelmetDetector struct {
	name           string
	spec           ModelSpec
	pool           *SessionPool
	preprocessor   *Preprocessor
	scoreThreshold float32
	iouThreshold   float64
}

func NewHelmetDetector(cfg Config) (*HelmetDetector, error) {
	spec, err := InspectModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", cfg.ModelPath, err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = max(1, runtime.NumCPU()/poolSize)
	}

	pool, err := NewSessionPool(poolSize, func() (Session, error) {
		return newModelSession(spec, threads)
	})
	if err != nil {
		return nil, fmt.Errorf("create session pool for %s: %w", cfg.ModelPath, err)
	}

	return newHelmetDetector(cfg.Name, spec, pool), nil
}

func newHelmetDetector(name string, spec ModelSpec, pool *SessionPool) *HelmetDetector {
	return &HelmetDetector{
		name:           name,
		spec:           spec,
		pool:           pool,
		preprocessor:   NewPreprocessor(int(spec.InputShape[3]), int(spec.InputShape[2])),
		scoreThreshold: ScoreThreshold,
		iouThreshold:   IouThreshold,
	}
}

func (d *HelmetDetector) Name() string {
	return d.name
}

func (d *HelmetDetector) Spec() ModelSpec {
	return d.spec
}

func (d *HelmetDetector) PoolStats() PoolStats {
	return d.pool.Stats()
}

func (d *HelmetDetector) DetectAndAnnotate(ctx context.Context, img image.Image, threshold float64, timings *models.ProcessingTimings) (*image.NRGBA, []models.Detection, error) {
	if img == nil {
		return nil, []models.Detection{}, nil
	}
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}
	if img.Bounds().Empty() {
		return imaging.Clone(img), []models.Detection{}, nil
	}

	prepStart := time.Now()
	buffer, lb := d.preprocessor.Process(img)
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	output, err := d.infer(ctx, buffer.data)
	d.preprocessor.Put(buffer)
	if err != nil {
		return nil, nil, err
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	candidates, err := decodeOutput(output, d.spec.NumClasses(), d.spec.NumAnchors(), lb, d.scoreThreshold)
	if err != nil {
		return nil, nil, &ProcessingError{Message: "process predictions", Cause: err}
	}
	kept := nonMaxSuppression(candidates, d.iouThreshold, MaxDetections)

	detections := make([]models.Detection, 0, len(kept))
	for _, c := range kept {
		conf := roundConfidence(c.score)
		if conf <= threshold {
			continue
		}
		detections = append(detections, models.Detection{
			Label:      labelFor(c.classID),
			Confidence: conf,
			BBox:       [4]int{int(c.box[0]), int(c.box[1]), int(c.box[2]), int(c.box[3])},
			ClassID:    c.classID,
		})
	}
	timings.Postprocess = time.Since(postStart)

	annotateStart := time.Now()
	annotated := Annotate(img, detections)
	timings.Annotate = time.Since(annotateStart)

	return annotated, detections, nil
}

func (d *HelmetDetector) infer(ctx context.Context, input []float32) ([]float32, error) {
	session, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, &ProcessingError{Message: "acquire model session", Cause: err}
	}
	defer d.pool.Release(session)

	output, err := session.Run(input)
	if err != nil {
		return nil, &ProcessingError{Message: "model inference", Cause: err}
	}
	return output, nil
}

func (d *HelmetDetector) Close() error {
	d.pool.Close()
	return nil
}
