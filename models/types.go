package models

import "time"

// Detection is one recognised object in an image. Coordinates are pixels
// in the original image, ordered x1, y1, x2, y2.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
	ClassID    int     `json:"class_id"`
}

type Stats struct {
	Total         int `json:"total"`
	WithHelmet    int `json:"with_helmet"`
	WithoutHelmet int `json:"without_helmet"`
}

type DetectResponse struct {
	Success    bool        `json:"success"`
	Detections []Detection `json:"detections"`
	Stats      Stats       `json:"stats"`
	Image      string      `json:"image,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type SamplesResponse struct {
	Images []string `json:"images"`
	Videos []string `json:"videos"`
}

type ProcessingTimings struct {
	RequestID   string
	Mode        string
	ImageDecode time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Annotate    time.Duration
	Encode      time.Duration
	Total       time.Duration
}
