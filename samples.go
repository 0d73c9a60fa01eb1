package main

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Tutortoise/helmet-detection-service/models"
	"github.com/gorilla/mux"
)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png"}
	videoExtensions = []string{".mp4", ".avi", ".mov"}
)

// listSamples buckets the media directory's files by extension. A missing
// directory yields two empty lists.
func listSamples(dir string) (models.SamplesResponse, error) {
	samples := models.SamplesResponse{
		Images: []string{},
		Videos: []string{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return samples, nil
		}
		return samples, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case hasExtension(name, imageExtensions):
			samples.Images = append(samples.Images, name)
		case hasExtension(name, videoExtensions):
			samples.Videos = append(samples.Videos, name)
		}
	}
	return samples, nil
}

func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func handleSamples(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		samples, err := listSamples(state.MediaDir)
		if err != nil {
			state.Log.WithError(err).Error("list samples failed")
			sendErrorResponse(w, CodeInternalError, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, samples)
	}
}

// handleSample serves a single file from the media directory. Only plain
// file names are accepted.
func handleSample(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["filename"]
		if !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(state.MediaDir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}
