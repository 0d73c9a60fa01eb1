package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Tutortoise/helmet-detection-service/detections"
	"github.com/sirupsen/logrus"
)

const (
	modelLarge = "YOLOV8L"
	modelSmall = "YOLOV8S"
	modelNano  = "YOLOV8N"

	weightsFile = "best.onnx"
)

type Config struct {
	Host          string
	Port          int
	LowMemoryMode bool
	WeightsDir    string
	MediaDir      string
	OnnxLibPath   string
	PoolSize      int
	MaxUploadMB   int64
	LogLevel      logrus.Level
}

func loadConfig() Config {
	cfg := Config{
		Host:          getEnv("HOST", "0.0.0.0"),
		Port:          getEnvInt("PORT", 8080),
		LowMemoryMode: getEnvBool("LOW_MEMORY_MODE", false),
		WeightsDir:    getEnv("WEIGHTS_DIR", "Weights"),
		MediaDir:      getEnv("MEDIA_DIR", "Media"),
		OnnxLibPath:   getEnv("ONNXRUNTIME_LIB", detections.DefaultLibraryPath()),
		PoolSize:      getEnvInt("POOL_SIZE", detections.DefaultPoolSize),
		MaxUploadMB:   int64(getEnvInt("MAX_UPLOAD_MB", 32)),
		LogLevel:      logrus.InfoLevel,
	}

	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		cfg.LogLevel = level
	}
	if getEnvBool("DEBUG", false) {
		cfg.LogLevel = logrus.DebugLevel
	}
	return cfg
}

// modelPaths maps each mode to its weight file. Low memory mode binds the
// nano model to every mode.
func (c Config) modelPaths() map[detections.Mode]string {
	path := func(model string) string {
		return filepath.Join(c.WeightsDir, model, weightsFile)
	}
	if c.LowMemoryMode {
		nano := path(modelNano)
		return map[detections.Mode]string{
			detections.ModeImage:  nano,
			detections.ModeVideo:  nano,
			detections.ModeWebcam: nano,
		}
	}
	return map[detections.Mode]string{
		detections.ModeImage:  path(modelLarge),
		detections.ModeVideo:  path(modelNano),
		detections.ModeWebcam: path(modelSmall),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return strings.EqualFold(val, "true")
}
