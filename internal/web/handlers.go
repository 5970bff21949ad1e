package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
	"github.com/codecouncil-ai/codecouncil/internal/scan"
)

// Runner executes one council review. *service.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, files []core.FileUnit, objective string) (*core.TeamAnalysisResult, error)
}

// Handlers carries the dependencies of the API endpoints.
type Handlers struct {
	runner         Runner
	store          core.RunStore
	uploads        *uploadRegistry
	maxUploadBytes int64
	logger         *logging.Logger
}

func NewHandlers(runner Runner, store core.RunStore, clock core.Clock, maxUploadBytes int64, logger *logging.Logger) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultUploadCap
	}
	return &Handlers{
		runner:         runner,
		store:          store,
		uploads:        newUploadRegistry(clock),
		maxUploadBytes: maxUploadBytes,
		logger:         logger.WithComponent("web.handlers"),
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// uploadResponse is the reply to a successful upload.
type uploadResponse struct {
	UploadID  string   `json:"upload_id"`
	FileCount int      `json:"file_count"`
	Files     []string `json:"files"`
}

// CreateUpload accepts multipart source files under the "files" field and
// stages them for analysis.
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no files in upload; use the \"files\" field")
		return
	}

	var units []core.FileUnit
	for _, header := range parts {
		file, err := header.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("opening %s: %v", header.Filename, err))
			return
		}
		content, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("reading %s: %v", header.Filename, err))
			return
		}
		units = append(units, scan.FromContent(header.Filename, string(content)))
	}

	id, err := h.uploads.add(units)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	names := make([]string, len(units))
	for i, unit := range units {
		names[i] = unit.Name
	}
	h.logger.Info("upload staged", "upload_id", id, "files", len(units))
	respondJSON(w, http.StatusCreated, uploadResponse{UploadID: id, FileCount: len(units), Files: names})
}

// analysisRequest triggers a run over a staged upload.
type analysisRequest struct {
	UploadID  string `json:"upload_id"`
	Objective string `json:"objective"`
}

// CreateAnalysis runs the council synchronously over a staged upload and
// returns the full result. The upload is consumed either way.
func (h *Handlers) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UploadID == "" {
		respondError(w, http.StatusUnprocessableEntity, "upload_id required")
		return
	}

	files, ok := h.uploads.take(req.UploadID)
	if !ok {
		respondError(w, http.StatusNotFound, "upload not found or expired")
		return
	}

	result, err := h.runner.Run(r.Context(), files, req.Objective)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if h.store != nil {
		if err := h.store.SaveRun(r.Context(), result); err != nil {
			h.logger.Warn("saving run failed", "run_id", result.RunID, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// GetAnalysis returns one stored run.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.store.GetRun(r.Context(), core.RunID(id))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListAnalyses returns recent run summaries, newest first.
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	summaries, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if summaries == nil {
		summaries = []core.RunSummary{}
	}
	respondJSON(w, http.StatusOK, summaries)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch domErr.Category {
	case core.ErrCatValidation:
		status = http.StatusUnprocessableEntity
	case core.ErrCatNotFound:
		status = http.StatusNotFound
	case core.ErrCatRateLimit:
		status = http.StatusTooManyRequests
	case core.ErrCatTimeout:
		status = http.StatusGatewayTimeout
	case core.ErrCatCircuit, core.ErrCatUpstream:
		status = http.StatusBadGateway
	case core.ErrCatCancelled:
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, domErr.Message)
}
