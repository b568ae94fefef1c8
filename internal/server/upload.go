package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/learnbot-go/internal/ingestion"
	"github.com/54b3r/learnbot-go/internal/logging"
)

// handleUpload handles POST /api/upload: a multipart form with a single
// "file" field holding a .txt or .pdf document. The file is chunked,
// embedded, and indexed before the response is written, so a 200 means the
// document is immediately searchable.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	fileType, ok := fileTypeFor(filename)
	if !ok {
		http.Error(w, "only .txt and .pdf files are supported", http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		log.Error("upload read failed", slog.Any("error", err))
		http.Error(w, "failed to read upload", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	chunks, err := s.ingester.Ingest(r.Context(), content, filename, fileType)
	if err != nil {
		if errors.Is(err, ingestion.ErrInvalidDocument) {
			http.Error(w, "document contains no extractable text", http.StatusBadRequest)
			return
		}
		log.Error("ingestion failed",
			slog.String("filename", filename),
			slog.Any("error", err),
		)
		http.Error(w, "failed to process document", http.StatusInternalServerError)
		return
	}

	log.Info("document ingested",
		slog.String("filename", filename),
		slog.Int("chunks", chunks),
		slog.Duration("elapsed", time.Since(start)),
	)
	s.metrics.uploadsTotal.Inc()
	s.metrics.uploadChunksTotal.Add(float64(chunks))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(uploadResponse{
		Message:     fmt.Sprintf("%s processed successfully", filename),
		FileID:      filename,
		ChunksAdded: chunks,
	}); err != nil {
		log.Error("upload encode error", slog.Any("error", err))
	}
}

// fileTypeFor maps a filename extension to an ingestion file type. The
// second return is false for unsupported extensions.
func fileTypeFor(filename string) (ingestion.FileType, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return ingestion.FileTypeText, true
	case ".pdf":
		return ingestion.FileTypePDF, true
	default:
		return "", false
	}
}
