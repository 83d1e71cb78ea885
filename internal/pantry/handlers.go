package pantry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

// maxUploadSize handles high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// jsonError writes {"error": message} with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleListItems returns every pantry item
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListItems(r.Context())
	if err != nil {
		slog.Error("Error listing items", "error", err)
		jsonError(w, "Failed to load pantry items", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(items); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleDeleteItem deletes a pantry item
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		jsonError(w, "Item ID must be an integer", http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteItem(r.Context(), id); err != nil {
		slog.Error("Error deleting item", "id", id, "error", err)
		jsonError(w, "Failed to delete item", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// contentTypeFor falls back to the file extension when the part has no Content-Type
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// ingestErrorResponse maps pipeline failures to a status and a user-facing message
func ingestErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, scanning.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType, "Unsupported image. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF."
	case errors.Is(err, scanning.ErrAnalysisParse):
		return http.StatusUnprocessableEntity, "Could not read any items from the receipt. Please try another photo."
	case errors.Is(err, scanning.ErrAnalysisService):
		return http.StatusBadGateway, "Receipt analysis failed. Please try again."
	default:
		return http.StatusInternalServerError, "Failed to add items to your pantry."
	}
}

// handleUploadReceipt handles receipt upload and ingestion
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file was selected. Please choose a receipt photo to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)

	result, err := s.service.Ingest(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error ingesting receipt", "filename", header.Filename, "error", err)
		code, msg := ingestErrorResponse(err)
		jsonError(w, msg, code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetCapture returns a captured receipt image for preview
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetCapture(mux.Vars(r)["name"])
	if err != nil {
		jsonError(w, "Capture not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}
