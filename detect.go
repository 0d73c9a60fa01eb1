package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Tutortoise/helmet-detection-service/detections"
	"github.com/Tutortoise/helmet-detection-service/models"
	"github.com/disintegration/imaging"
)

const jpegQuality = 70

type uploadError struct {
	code    string
	message string
	status  int
}

var (
	errNoImage       = &uploadError{CodeNoImage, MsgNoImage, http.StatusBadRequest}
	errEmptyFilename = &uploadError{CodeEmptyFilename, MsgNoFilename, http.StatusBadRequest}
	errInvalidUpload = &uploadError{CodeInvalidUpload, MsgInvalidUpload, http.StatusBadRequest}
	errTooLarge      = &uploadError{CodeTooLarge, MsgTooLarge, http.StatusRequestEntityTooLarge}
)

func handleDetect(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		timings := &models.ProcessingTimings{RequestID: requestIDFrom(r.Context())}

		mode := detections.ModeImage
		status := http.StatusOK
		defer func() {
			state.Metrics.ObserveRequest(string(mode), status)
		}()
		fail := func(code, message string, st int) {
			status = st
			sendErrorResponse(w, code, message, st)
		}

		r.Body = http.MaxBytesReader(w, r.Body, state.MaxUploadBytes)
		imgBytes, uerr := readImageUpload(r)
		if uerr != nil {
			fail(uerr.code, uerr.message, uerr.status)
			return
		}

		mode = detections.ParseMode(r.FormValue("mode"))
		timings.Mode = string(mode)
		annotated := isTruthy(r.FormValue("annotated"))

		decodeStart := time.Now()
		img, err := decodeImage(imgBytes)
		timings.ImageDecode = time.Since(decodeStart)
		if err != nil {
			state.Log.WithField("request_id", timings.RequestID).WithError(err).Debug("image decode failed")
			fail(CodeInvalidImage, MsgInvalidImage, http.StatusBadRequest)
			return
		}

		detector := state.Detectors.Lookup(mode)
		detectStart := time.Now()
		annotatedImg, found, err := detector.DetectAndAnnotate(r.Context(), img, detections.DefaultConfThreshold, timings)
		if err != nil {
			state.Log.WithField("request_id", timings.RequestID).WithField("mode", mode).WithError(err).Error("detection failed")
			fail(CodeProcessingError, err.Error(), http.StatusInternalServerError)
			return
		}
		if found == nil {
			found = []models.Detection{}
		}

		labels := make([]string, len(found))
		for i, d := range found {
			labels[i] = d.Label
		}
		state.Metrics.ObserveDetect(mode, time.Since(detectStart), labels)

		response := models.DetectResponse{
			Success:    true,
			Detections: found,
			Stats:      summarize(found),
		}

		if annotated {
			encodeStart := time.Now()
			encoded, err := encodeJPEGBase64(annotatedImg)
			timings.Encode = time.Since(encodeStart)
			if err != nil {
				state.Log.WithField("request_id", timings.RequestID).WithError(err).Error("encode annotated image failed")
				fail(CodeProcessingError, err.Error(), http.StatusInternalServerError)
				return
			}
			response.Image = encoded
		}

		timings.Total = time.Since(startTotal)
		logTimings(state.Log, timings)

		writeJSON(w, http.StatusOK, response)
	}
}

func readImageUpload(r *http.Request) ([]byte, *uploadError) {
	if err := r.ParseMultipartForm(defaultMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, errTooLarge
		case errors.Is(err, http.ErrNotMultipart):
			return nil, errNoImage
		default:
			return nil, errInvalidUpload
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		// A file part sent without a filename is parsed as a plain value.
		if _, ok := r.MultipartForm.Value["image"]; ok {
			return nil, errEmptyFilename
		}
		return nil, errNoImage
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, errEmptyFilename
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errInvalidUpload
	}
	return data, nil
}

func decodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func encodeJPEGBase64(img *image.NRGBA) (string, error) {
	if img == nil {
		return "", errors.New("no annotated image to encode")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// summarize counts only the two known labels; any other label still counts
// toward Total.
func summarize(found []models.Detection) models.Stats {
	stats := models.Stats{Total: len(found)}
	for _, d := range found {
		switch d.Label {
		case detections.LabelWithHelmet:
			stats.WithHelmet++
		case detections.LabelWithoutHelmet:
			stats.WithoutHelmet++
		}
	}
	return stats
}
