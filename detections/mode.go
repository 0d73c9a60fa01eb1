package detections

import (
	"errors"
	"fmt"
)

// Mode selects which detector, and so which speed/accuracy tradeoff,
// handles a request.
type Mode string

const (
	ModeImage  Mode = "image"
	ModeVideo  Mode = "video"
	ModeWebcam Mode = "webcam"
)

var Modes = []Mode{ModeImage, ModeVideo, ModeWebcam}

// ParseMode maps unknown values, including the empty string, to ModeImage.
func ParseMode(s string) Mode {
	switch m := Mode(s); m {
	case ModeImage, ModeVideo, ModeWebcam:
		return m
	default:
		return ModeImage
	}
}

// Registry binds each mode to a shared detector. Several modes may share
// one detector.
type Registry struct {
	detectors map[Mode]Detector
}

func NewRegistry(detectors map[Mode]Detector) (*Registry, error) {
	if detectors[ModeImage] == nil {
		return nil, fmt.Errorf("registry needs a detector for mode %q", ModeImage)
	}
	table := make(map[Mode]Detector, len(detectors))
	for mode, d := range detectors {
		if d != nil {
			table[mode] = d
		}
	}
	return &Registry{detectors: table}, nil
}

// Lookup falls back to the image detector for modes without a binding.
func (r *Registry) Lookup(mode Mode) Detector {
	if d, ok := r.detectors[mode]; ok {
		return d
	}
	return r.detectors[ModeImage]
}

// Close closes every distinct detector once.
func (r *Registry) Close() error {
	closed := make(map[Detector]bool, len(r.detectors))
	var errs []error
	for _, mode := range Modes {
		d, ok := r.detectors[mode]
		if !ok || closed[d] {
			continue
		}
		closed[d] = true
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s detector: %w", mode, err))
		}
	}
	return errors.Join(errs...)
}
