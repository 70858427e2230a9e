package handler

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
	"github.com/shyim/lighthouse-report/internal/pipeline"
	"github.com/shyim/lighthouse-report/internal/storage"
	"github.com/shyim/lighthouse-report/internal/urls"
	"github.com/shyim/lighthouse-report/internal/utils"
)

// Auditor runs the pipeline for one result id.
type Auditor interface {
	Run(ctx context.Context, id string, urls []string) (*pipeline.Result, error)
}

type Options struct {
	AuthToken string
	MaxURLs   int
	// CacheDir holds downloaded result bundles.
	CacheDir string
}

type Handler struct {
	auditor   Auditor
	store     storage.Store
	publisher *storage.Publisher
	opts      Options
	logger    *log.Logger
}

// NewHandler wires the routes to an auditor and, optionally, a store. Without
// a store the result routes answer 503.
func NewHandler(auditor Auditor, store storage.Store, opts Options, logger *log.Logger) *Handler {
	if opts.MaxURLs <= 0 {
		opts.MaxURLs = 5
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "lighthouse-cache")
	}
	h := &Handler{auditor: auditor, store: store, opts: opts, logger: logger}
	if store != nil {
		h.publisher = storage.NewPublisher(store, logger)
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/result/{id}", h.HandleAnalyze)
	mux.HandleFunc("DELETE /api/result/{id}", h.HandleDeleteResult)
	mux.HandleFunc("GET /result/{id}/{path...}", h.HandleGetResult)
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") && h.opts.AuthToken != "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") || authHeader[7:] != h.opts.AuthToken {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid Request Body", http.StatusBadRequest)
		return
	}

	list := urls.Split(strings.Join(req.URLs, " "))
	if len(list) == 0 || len(list) > h.opts.MaxURLs {
		renderError(w, fmt.Sprintf("URLs must be between 1 and %d items", h.opts.MaxURLs), nil, http.StatusBadRequest)
		return
	}
	if err := urls.Validate(list); err != nil {
		renderError(w, "Invalid URL", ptr(err.Error()), http.StatusBadRequest)
		return
	}

	h.logger.Info("starting lighthouse analysis", "id", id, "urls", list)

	res, err := h.auditor.Run(r.Context(), id, list)
	if err != nil {
		status := http.StatusInternalServerError
		if failure.Is(err, failure.FatalInput) {
			status = http.StatusBadRequest
		}
		h.logger.Error("lighthouse analysis failed", "id", id, "error", err)
		renderError(w, "Failed to run lighthouse analysis", ptr(err.Error()), status)
		return
	}

	// A new run replaces whatever bundle was cached for this id.
	os.Remove(h.cachePath(id))

	h.logger.Info("lighthouse analysis completed", "id", id, "records", len(res.Records))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.RunResponse{
		ID:        res.ID,
		Records:   res.Records,
		Artifacts: res.Artifacts,
		Failures:  res.Failures.Strings(),
	})
}

func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if h.store == nil {
		http.Error(w, "Storage not configured", http.StatusServiceUnavailable)
		return
	}

	zipPath := h.cachePath(id)
	if _, err := os.Stat(zipPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if err := h.store.DownloadFile(r.Context(), storage.BundleKey(id), zipPath); err != nil {
			os.Remove(zipPath)
			if !errors.Is(err, storage.ErrNotFound) {
				h.logger.Warn("failed to download bundle", "id", id, "error", err)
			}
			http.NotFound(w, r)
			return
		}
	}

	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer archive.Close()

	file := utils.FindInZip(&archive.Reader, r.PathValue("path"))
	if file == nil {
		http.NotFound(w, r)
		return
	}

	rc, err := file.Open()
	if err != nil {
		http.Error(w, "Failed to open file", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=604800")
	w.Header().Set("Last-Modified", file.Modified.UTC().Format(http.TimeFormat))

	io.Copy(w, rc)
}

func (h *Handler) HandleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if h.publisher == nil {
		http.Error(w, "Storage not configured", http.StatusServiceUnavailable)
		return
	}

	removed, err := h.publisher.Remove(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete result", "id", id, "error", err)
		renderError(w, "Failed to delete result", ptr(err.Error()), http.StatusInternalServerError)
		return
	}
	os.Remove(h.cachePath(id))

	h.logger.Info("result deleted", "id", id, "objects", removed)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) cachePath(id string) string {
	return filepath.Join(h.opts.CacheDir, id+".zip")
}

func renderError(w http.ResponseWriter, msg string, details *string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   msg,
		Details: details,
	})
}

func ptr(v string) *string {
	return &v
}
