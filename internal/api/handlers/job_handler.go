package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/Simplifai/internal/api/middlewares"
	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/ingestion_engine"
	"github.com/markdave123-py/Simplifai/internal/core/pipeline"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// JobService is the part of the job pipeline the HTTP layer drives.
type JobService interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*models.Job, error)
	GetStatus(ctx context.Context, ownerID, jobID string) (*pipeline.JobStatus, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]models.Job, error)
	Chunks(ctx context.Context, ownerID, jobID string, start, count int) ([]pipeline.ChunkResult, int, error)
	Result(ctx context.Context, ownerID, jobID string) (*pipeline.Result, error)
	ChainStatus(ctx context.Context, ownerID, chainID string) (pipeline.ChainStatus, error)
}

const defaultChunkPage = 10

type JobHandler struct {
	jobs     JobService
	maxBytes int64
	log      *zap.Logger
}

func NewJobHandler(jobs JobService, maxUploadBytes int64, log *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, maxBytes: maxUploadBytes, log: logging.OrNop(log)}
}

type submitResponse struct {
	JobID     string       `json:"job_id"`
	ChainID   string       `json:"chain_id"`
	Stage     models.Stage `json:"stage"`
	StatusURL string       `json:"status_url"`
}

// Submit accepts a multipart upload with a "file" part, an optional "mode"
// (simplify or summarize) and an optional "profile" JSON object.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}

	// Form fields and multipart framing get some room on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: h.tooLarge()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "could not read file"})
		return
	}
	if int64(len(data)) > h.maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: h.tooLarge()})
		return
	}

	mode := models.Mode(strings.ToLower(strings.TrimSpace(r.FormValue("mode"))))
	if mode == "" {
		mode = models.ModeSimplify
	}
	profile := models.DefaultProfile()
	if raw := strings.TrimSpace(r.FormValue("profile")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			writeError(w, h.log, core.Invalid("profile", "%v", err))
			return
		}
	}

	job, err := h.jobs.Submit(r.Context(), pipeline.Submission{
		OwnerID:     ownerID,
		FileName:    header.Filename,
		ContentType: ingestion_engine.DetectContentType(header.Header.Get("Content-Type"), header.Filename),
		Data:        data,
		Mode:        mode,
		Profile:     profile,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:     job.ID,
		ChainID:   job.ChainID,
		Stage:     job.Stage,
		StatusURL: "/api/jobs/" + job.ID,
	})
}

func (h *JobHandler) tooLarge() string {
	return fmt.Sprintf("file exceeds %d MB limit", h.maxBytes>>20)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	jobs, err := h.jobs.ListJobs(r.Context(), ownerID, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}
	st, err := h.jobs.GetStatus(r.Context(), ownerID, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type resultResponse struct {
	models.ResultManifest
	Content string `json:"content"`
}

func (h *JobHandler) Result(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}
	res, err := h.jobs.Result(r.Context(), ownerID, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{ResultManifest: res.Manifest, Content: string(res.Content)})
}

type chunksResponse struct {
	JobID  string                 `json:"job_id"`
	Start  int                    `json:"start"`
	Total  int                    `json:"total"`
	Chunks []pipeline.ChunkResult `json:"chunks"`
}

func (h *JobHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}
	start, err := intParam(r, "start", 0)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	count, err := intParam(r, "count", defaultChunkPage)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	chunks, total, err := h.jobs.Chunks(r.Context(), ownerID, jobID, start, count)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, chunksResponse{JobID: jobID, Start: start, Total: total, Chunks: chunks})
}

func (h *JobHandler) Chain(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}
	st, err := h.jobs.ChainStatus(r.Context(), ownerID, chi.URLParam(r, "chainID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.Invalid(name, "not an integer: %q", raw)
	}
	return n, nil
}
