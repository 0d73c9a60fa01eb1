package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Tutortoise/helmet-detection-service/detections"
	"github.com/Tutortoise/helmet-detection-service/models"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const defaultMultipartMemory = 10 << 20

type AppState struct {
	Detectors      *detections.Registry
	Metrics        *Metrics
	Log            logrus.FieldLogger
	MediaDir       string
	MaxUploadBytes int64
}

func newLogger(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(level)
	return log
}

func logTimings(log logrus.FieldLogger, t *models.ProcessingTimings) {
	log.WithFields(logrus.Fields{
		"request_id":  t.RequestID,
		"mode":        t.Mode,
		"decode":      t.ImageDecode,
		"preprocess":  t.Preprocess,
		"inference":   t.Inference,
		"postprocess": t.Postprocess,
		"annotate":    t.Annotate,
		"encode":      t.Encode,
		"total":       t.Total,
	}).Debug("processing times")
}

// loadDetectors creates one detector per distinct weight file, so modes
// that share a file share a detector.
func loadDetectors(cfg Config, log logrus.FieldLogger, metrics *Metrics) (*detections.Registry, error) {
	byPath := make(map[string]*detections.HelmetDetector)
	bound := make(map[detections.Mode]detections.Detector, len(detections.Modes))

	closeAll := func() {
		for _, d := range byPath {
			d.Close()
		}
	}

	for mode, path := range cfg.modelPaths() {
		d, ok := byPath[path]
		if !ok {
			name := strings.ToLower(filepath.Base(filepath.Dir(path)))
			var err error
			d, err = detections.NewHelmetDetector(detections.Config{
				Name:      name,
				ModelPath: path,
				PoolSize:  cfg.PoolSize,
			})
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("load %s model: %w", mode, err)
			}
			byPath[path] = d
			metrics.RegisterPool(name, d.PoolStats)
			log.WithFields(logrus.Fields{
				"model":   name,
				"path":    path,
				"classes": d.Spec().NumClasses(),
				"input":   fmt.Sprint(d.Spec().InputShape),
				"pool":    d.PoolStats().Size,
				"cpu":     detections.CPUFeatures(),
			}).Info("model loaded")
		}
		bound[mode] = d
		log.WithFields(logrus.Fields{"mode": mode, "model": d.Name()}).Info("mode bound")
	}

	registry, err := detections.NewRegistry(bound)
	if err != nil {
		closeAll()
		return nil, err
	}
	return registry, nil
}

func newRouter(state *AppState) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(state.Log), recoverer(state.Log))

	r.HandleFunc("/", handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/detect", handleDetect(state)).Methods(http.MethodPost)
	r.HandleFunc("/samples", handleSamples(state)).Methods(http.MethodGet)
	r.HandleFunc("/sample/{filename}", handleSample(state)).Methods(http.MethodGet)
	state.addMonitoringRoutes(r)

	return r
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func main() {
	cfg := loadConfig()
	log := newLogger(cfg.LogLevel)

	if err := detections.InitRuntime(cfg.OnnxLibPath); err != nil {
		log.Fatalf("Failed to initialize ONNX environment: %v", err)
	}
	defer detections.DestroyRuntime()

	if cfg.LowMemoryMode {
		log.Info("Running in low memory mode, using the nano model for all modes")
	}

	metrics := NewMetrics()
	registry, err := loadDetectors(cfg, log, metrics)
	if err != nil {
		log.Fatalf("Failed to load detectors: %v", err)
	}
	defer registry.Close()

	state := &AppState{
		Detectors:      registry,
		Metrics:        metrics,
		Log:            log,
		MediaDir:       cfg.MediaDir,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	}

	srv := &http.Server{
		Handler:      withCORS(newRouter(state)),
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Local access:   http://localhost:%d", cfg.Port)
		log.Infof("Network access: http://%s:%d", outboundIP(), cfg.Port)
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// outboundIP reports the address of the interface used for outbound
// traffic. No packet is sent.
func outboundIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
