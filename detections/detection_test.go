package detections

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/Tutortoise/helmet-detection-service/models"
)

const testAnchors = 8400

func newTestDetector(t *testing.T, session *fakeSession) *HelmetDetector {
	t.Helper()
	pool, err := NewSessionPool(1, func() (Session, error) {
		return session, nil
	})
	if err != nil {
		t.Fatalf("NewSessionPool: %v", err)
	}
	d := newHelmetDetector("test", defaultModelSpec("test.onnx"), pool)
	t.Cleanup(func() { d.Close() })
	return d
}

// helmetOutput holds two real boxes, one duplicate and one weak score.
func helmetOutput() []float32 {
	out := make([]float32, (4+len(ClassLabels))*testAnchors)
	setAnchor(out, testAnchors, 0, [4]float32{55, 80, 90, 140}, 0.95, 0.01)
	setAnchor(out, testAnchors, 1, [4]float32{400, 400, 100, 100}, 0.01, 0.5)
	setAnchor(out, testAnchors, 2, [4]float32{57, 82, 90, 140}, 0.9, 0.0)
	setAnchor(out, testAnchors, 3, [4]float32{200, 200, 20, 20}, 0.2, 0.0)
	return out
}

func TestHelmetDetector_DetectAndAnnotate(t *testing.T) {
	session := &fakeSession{output: helmetOutput()}
	d := newTestDetector(t, session)

	src := solidImage(InputWidth, InputHeight, color.NRGBA{R: 40, G: 40, B: 40, A: 255})
	original := append([]byte(nil), src.Pix...)

	var timings models.ProcessingTimings
	annotated, dets, err := d.DetectAndAnnotate(context.Background(), src, DefaultConfThreshold, &timings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("feeds a full CHW tensor", func(t *testing.T) {
		if session.lastInput != 3*InputWidth*InputHeight {
			t.Errorf("expected input length %d, got %d", 3*InputWidth*InputHeight, session.lastInput)
		}
	})

	t.Run("suppresses duplicates and weak scores", func(t *testing.T) {
		if len(dets) != 2 {
			t.Fatalf("expected 2 detections, got %d: %+v", len(dets), dets)
		}
	})

	t.Run("first detection", func(t *testing.T) {
		want := models.Detection{
			Label:      LabelWithHelmet,
			Confidence: 0.95,
			BBox:       [4]int{10, 10, 100, 150},
			ClassID:    0,
		}
		if dets[0] != want {
			t.Errorf("expected %+v, got %+v", want, dets[0])
		}
	})

	t.Run("second detection", func(t *testing.T) {
		want := models.Detection{
			Label:      LabelWithoutHelmet,
			Confidence: 0.5,
			BBox:       [4]int{350, 350, 450, 450},
			ClassID:    1,
		}
		if dets[1] != want {
			t.Errorf("expected %+v, got %+v", want, dets[1])
		}
	})

	t.Run("annotates a copy", func(t *testing.T) {
		if !bytes.Equal(src.Pix, original) {
			t.Error("input image was modified")
		}
		if annotated == nil || annotated.Bounds() != src.Bounds() {
			t.Fatal("expected an annotated image with the input bounds")
		}
		if got := annotated.NRGBAAt(10, 80); got != classColors[0] {
			t.Errorf("expected box edge %v, got %v", classColors[0], got)
		}
	})

	t.Run("records timings", func(t *testing.T) {
		if timings.Preprocess <= 0 || timings.Annotate <= 0 {
			t.Errorf("expected timings to be recorded, got %+v", timings)
		}
	})

	t.Run("returns the session to the pool", func(t *testing.T) {
		if stats := d.PoolStats(); stats.InUse != 0 || stats.TotalReleased != 1 {
			t.Errorf("unexpected pool stats %+v", stats)
		}
	})
}

func TestHelmetDetector_Threshold(t *testing.T) {
	d := newTestDetector(t, &fakeSession{output: helmetOutput()})
	src := solidImage(InputWidth, InputHeight, color.NRGBA{A: 255})

	_, dets, err := d.DetectAndAnnotate(context.Background(), src, 0.5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 1 || dets[0].Label != LabelWithHelmet {
		t.Errorf("expected only the 0.95 detection above 0.5, got %+v", dets)
	}
}

func TestHelmetDetector_NilImage(t *testing.T) {
	session := &fakeSession{output: helmetOutput()}
	d := newTestDetector(t, session)

	annotated, dets, err := d.DetectAndAnnotate(context.Background(), nil, DefaultConfThreshold, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if annotated != nil {
		t.Error("expected no image")
	}
	if dets == nil || len(dets) != 0 {
		t.Errorf("expected an empty, non-nil list, got %#v", dets)
	}
	if session.runs != 0 {
		t.Error("expected no inference for a nil image")
	}
}

func TestHelmetDetector_InferenceError(t *testing.T) {
	cause := errors.New("device lost")
	d := newTestDetector(t, &fakeSession{err: cause})
	src := solidImage(64, 64, color.NRGBA{A: 255})

	_, _, err := d.DetectAndAnnotate(context.Background(), src, DefaultConfThreshold, nil)
	if err == nil {
		t.Fatal("expected an error")
	}

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a ProcessingError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the inference error to be wrapped")
	}
}

func TestHelmetDetector_CanceledWhileWaiting(t *testing.T) {
	d := newTestDetector(t, &fakeSession{output: helmetOutput()})

	held, err := d.pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer d.pool.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = d.DetectAndAnnotate(ctx, solidImage(32, 32, color.NRGBA{A: 255}), DefaultConfThreshold, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestModelSpec(t *testing.T) {
	spec := defaultModelSpec("best.onnx")
	if spec.NumClasses() != 2 {
		t.Errorf("expected 2 classes, got %d", spec.NumClasses())
	}
	if spec.NumAnchors() != testAnchors {
		t.Errorf("expected %d anchors, got %d", testAnchors, spec.NumAnchors())
	}
}
