package detections

import (
	"context"
	"image"
	"sync"

	"github.com/Tutortoise/helmet-detection-service/models"
)

// MockDetector is a test implementation of the Detector interface.
// It returns preset detections and annotates them like the real detector.
type MockDetector struct {
	mu         sync.Mutex
	detections []models.Detection
	err        error
	calls      int
	closed     int
}

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

func (m *MockDetector) SetDetections(detections []models.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockDetector) DetectAndAnnotate(_ context.Context, img image.Image, threshold float64, _ *models.ProcessingTimings) (*image.NRGBA, []models.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, nil, m.err
	}
	if img == nil {
		return nil, []models.Detection{}, nil
	}

	detections := make([]models.Detection, 0, len(m.detections))
	for _, d := range m.detections {
		if d.Confidence > threshold {
			detections = append(detections, d)
		}
	}
	return Annotate(img, detections), detections, nil
}

func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}
