package detections

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// candidate is a decoded box in original image pixels, before confidence
// rounding and labelling.
type candidate struct {
	box     [4]float64
	score   float32
	classID int
}

// decodeOutput reads a [1, 4+nc, anchors] YOLO output. Box channels are
// centre x, centre y, width, height in letterboxed input pixels.
func decodeOutput(predictions []float32, numClasses, numAnchors int, lb letterbox, scoreThreshold float32) ([]candidate, error) {
	expectedSize := (4 + numClasses) * numAnchors
	if len(predictions) != expectedSize {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expectedSize)
	}

	candidates := make([]candidate, 0, 64)
	for i := 0; i < numAnchors; i++ {
		classID, score := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := predictions[(4+c)*numAnchors+i]; s > score {
				score = s
				classID = c
			}
		}
		if score <= scoreThreshold {
			continue
		}

		cx := float64(predictions[i])
		cy := float64(predictions[numAnchors+i])
		w := float64(predictions[2*numAnchors+i])
		h := float64(predictions[3*numAnchors+i])

		x1, y1 := lb.toOriginal(cx-w/2, cy-h/2)
		x2, y2 := lb.toOriginal(cx+w/2, cy+h/2)

		candidates = append(candidates, candidate{
			box:     [4]float64{x1, y1, x2, y2},
			score:   score,
			classID: classID,
		})
	}

	sortCandidatesByScore(candidates)
	return candidates, nil
}

func sortCandidatesByScore(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// roundConfidence rounds up to the next hundredth. Displayed and
// thresholded confidences are therefore biased upward by up to 0.01.
func roundConfidence(score float32) float64 {
	return math.Ceil(float64(score*100)) / 100
}

func labelFor(classID int) string {
	if classID >= 0 && classID < len(ClassLabels) {
		return ClassLabels[classID]
	}
	return strconv.Itoa(classID)
}
