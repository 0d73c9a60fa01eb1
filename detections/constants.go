package detections

const (
	InputWidth  = 640
	InputHeight = 640

	// ScoreThreshold is the raw-score cut applied before NMS, matching the
	// YOLO runtime default the published weights were tuned with.
	ScoreThreshold = 0.25
	IouThreshold   = 0.7
	MaxDetections  = 300

	// DefaultConfThreshold is applied to the ceil-rounded confidence after NMS.
	DefaultConfThreshold = 0.1

	LetterboxFill = 114
)

const (
	LabelWithHelmet    = "With Helmet"
	LabelWithoutHelmet = "Without Helmet"
)

// ClassLabels maps model class ids to display labels.
var ClassLabels = []string{LabelWithHelmet, LabelWithoutHelmet}
