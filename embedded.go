package main

import (
	"embed"
	"net/http"
)

//go:embed web/index.html
var embeddedFiles embed.FS

// handleIndex serves the upload page bundled into the binary.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := embeddedFiles.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
