package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/Simplifai/internal/api/middlewares"
	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/logging"
)

const (
	notInDocument = "I cannot find this in the document."
	answerTokens  = 512
)

// ChatHandler answers questions about a job's document from its indexed text.
type ChatHandler struct {
	jobs  JobService
	index core.VectorIndex
	llm   core.LLMProvider
	topK  int
	log   *zap.Logger
}

func NewChatHandler(jobs JobService, index core.VectorIndex, llm core.LLMProvider, topK int, log *zap.Logger) *ChatHandler {
	if topK < 1 {
		topK = 5
	}
	return &ChatHandler{jobs: jobs, index: index, llm: llm, topK: topK, log: logging.OrNop(log)}
}

type ChatRequest struct {
	Query string `json:"query"`
}

type chatSource struct {
	Position int `json:"position"`
	Page     int `json:"page"`
}

type chatResponse struct {
	Answer  string       `json:"answer"`
	Sources []chatSource `json:"sources"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, ok := middleware.OwnerFromContext(ctx)
	if !ok {
		http.Error(w, "owner not found in context", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, h.log, core.Invalid("query", "required"))
		return
	}

	// Confirm the job belongs to the caller before touching its index.
	jobID := chi.URLParam(r, "jobID")
	if _, err := h.jobs.GetStatus(ctx, ownerID, jobID); err != nil {
		writeError(w, h.log, err)
		return
	}

	spans, err := h.index.Query(ctx, ownerID, jobID, req.Query, h.topK)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if len(spans) == 0 {
		writeJSON(w, http.StatusOK, chatResponse{Answer: notInDocument, Sources: []chatSource{}})
		return
	}

	var sb strings.Builder
	sources := make([]chatSource, len(spans))
	for i, s := range spans {
		sb.WriteString(s.Text)
		sb.WriteString("\n---\n")
		sources[i] = chatSource{Position: s.Position, Page: s.Page}
	}
	prompt := fmt.Sprintf("Answer the question using only the document excerpts below. If the answer is not in them, reply exactly: %s\n\nEXCERPTS:\n%s\nQUESTION: %s\n\nANSWER:",
		notInDocument, sb.String(), req.Query)

	answer, err := h.llm.Complete(ctx, prompt, answerTokens)
	if err != nil {
		writeError(w, h.log, fmt.Errorf("answer question: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, Sources: sources})
}
