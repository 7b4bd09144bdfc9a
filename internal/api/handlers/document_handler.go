package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/paperbase-io/paperbase/internal/api/middlewares"
	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/index"
	"github.com/paperbase-io/paperbase/internal/ingest"
	"github.com/paperbase-io/paperbase/internal/models"
	"github.com/paperbase-io/paperbase/internal/retrieval"
)

const maxUploadBytes = 64 << 20

// Reindexer rebuilds a document's vectors from persisted paragraphs.
type Reindexer interface {
	Reindex(ctx context.Context, documentID string) (index.Report, error)
}

type DocumentHandler struct {
	db        core.DbClient
	intake    *ingest.Intake
	retriever *retrieval.Retriever
	reindexer Reindexer
	log       *zap.Logger
}

func NewDocumentHandler(db core.DbClient, intake *ingest.Intake, retriever *retrieval.Retriever, reindexer Reindexer, log *zap.Logger) *DocumentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentHandler{db: db, intake: intake, retriever: retriever, reindexer: reindexer, log: log}
}

// Upload accepts a multipart PDF and hands it to the intake pipeline.
// Re-uploads of known content return immediately with the existing
// document.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	fileName := filepath.Base(header.Filename)
	res, err := h.intake.Submit(r.Context(), userID, fileName, data)
	if err != nil {
		h.log.Error("submit failed", zap.String("file", fileName), zap.Error(err))
		http.Error(w, "failed to ingest document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// List returns the caller's documents with their per-owner display names.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	docs, err := h.db.ListDocumentsByOwner(r.Context(), userID)
	if err != nil {
		h.log.Error("list documents failed", zap.Error(err))
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// Status reports the pollable extraction state of one document.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":   doc.ID,
		"status":        doc.Status,
		"total_pages":   doc.TotalPages,
		"current_page":  doc.CurrentPage,
		"error_message": doc.ErrorMessage,
		"job_id":        doc.JobID,
	})
}

// Search runs semantic retrieval scoped to one document.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	topK := queryInt(r, "top_k", 5)
	chunks, err := h.retriever.Retrieve(r.Context(), query, doc.ID, userID, topK)
	if err != nil {
		h.log.Error("search failed", zap.String("document_id", doc.ID), zap.Error(err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": chunks})
}

// Related surfaces the caller's other documents most similar to a query,
// abstracts first.
func (h *DocumentHandler) Related(w http.ResponseWriter, r *http.Request) {
	userID, doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	topK := queryInt(r, "top_k", 5)
	related, err := h.retriever.RetrieveRelated(r.Context(), query, userID, doc.ID, topK)
	if err != nil {
		h.log.Error("related lookup failed", zap.String("document_id", doc.ID), zap.Error(err))
		http.Error(w, "related lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"related": related})
}

// Delete removes the caller's binding; the last binding removes the
// document entirely.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	if err := h.intake.Delete(r.Context(), doc.ID, userID); err != nil {
		h.log.Error("delete failed", zap.String("document_id", doc.ID), zap.Error(err))
		http.Error(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reindex rebuilds the document's chunks and vectors from persisted
// paragraphs, without re-running extraction. Useful after an indexing
// degrade or an embedding model change.
func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	report, err := h.reindexer.Reindex(r.Context(), doc.ID)
	if err != nil {
		h.log.Error("reindex failed", zap.String("document_id", doc.ID), zap.Error(err))
		http.Error(w, "reindex failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"persisted":   report.Persisted,
		"chunks":      report.Count,
	})
}

// authorizedDocument loads the document from the URL and checks the
// caller owns a binding to it.
func (h *DocumentHandler) authorizedDocument(w http.ResponseWriter, r *http.Request) (string, *models.Document, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return "", nil, false
	}
	docID := chi.URLParam(r, "documentID")
	doc, err := h.db.GetDocumentByID(r.Context(), docID)
	if err != nil {
		h.log.Error("document lookup failed", zap.String("document_id", docID), zap.Error(err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return "", nil, false
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return "", nil, false
	}
	owns, err := h.db.HasOwnership(r.Context(), docID, userID)
	if err != nil {
		h.log.Error("ownership check failed", zap.String("document_id", docID), zap.Error(err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return "", nil, false
	}
	if !owns {
		http.Error(w, "document not found", http.StatusNotFound)
		return "", nil, false
	}
	return userID, doc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		return
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
