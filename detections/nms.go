package detections

import "math"

// nonMaxSuppression keeps the highest scoring box of each overlapping group
// of the same class. Input must be sorted by score, descending.
func nonMaxSuppression(candidates []candidate, iouThreshold float64, maxDetections int) []candidate {
	suppressed := make([]bool, len(candidates))
	kept := make([]candidate, 0, len(candidates))

	for i := range candidates {
		if suppressed[i] {
			continue
		}
		kept = append(kept, candidates[i])
		if len(kept) == maxDetections {
			break
		}
		for j := i + 1; j < len(candidates); j++ {
			if suppressed[j] || candidates[j].classID != candidates[i].classID {
				continue
			}
			if calculateIOU(candidates[i].box, candidates[j].box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

func calculateIOU(box1, box2 [4]float64) float64 {
	x1 := math.Max(box1[0], box2[0])
	y1 := math.Max(box1[1], box2[1])
	x2 := math.Min(box1[2], box2[2])
	y2 := math.Min(box1[3], box2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (box1[2] - box1[0]) * (box1[3] - box1[1])
	area2 := (box2[2] - box2[0]) * (box2[3] - box2[1])
	union := area1 + area2 - intersection
	if union <= 0 {
		return 0.0
	}

	return intersection / union
}
