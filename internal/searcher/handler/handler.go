// Package handler exposes the search service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/querylog"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/logger"
)

// Searcher is the part of searcher.Service the handler serves.
type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.SearchResult, error)
	Suggest(ctx context.Context, partial string, limit int) ([]string, error)
	Reindex(ctx context.Context, ids []string) (indexer.ReindexReport, error)
	InvalidateCache(ctx context.Context) error
	CacheStats() (hits, misses int64)
}

// StatsSource reports aggregated query log statistics.
type StatsSource interface {
	Stats() querylog.Stats
}

// DocumentStore is the writable corpus behind the document routes.
type DocumentStore interface {
	Put(ctx context.Context, doc *corpus.Document) error
	Delete(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*corpus.Document, error)
}

type Handler struct {
	search Searcher
	stats  StatsSource
	docs   DocumentStore
	logger *slog.Logger
}

// New builds a handler. stats and docs may be nil, which disables their
// routes.
func New(s Searcher, stats StatsSource, docs DocumentStore) *Handler {
	return &Handler{
		search: s,
		stats:  stats,
		docs:   docs,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("POST /api/v1/reindex", h.Reindex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/stats", h.QueryStats)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.PutDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searcher.Request{
		Query: q.Get("q"),
		Filters: executor.Filters{
			Category: q.Get("category"),
			Source:   q.Get("source"),
			Status:   q.Get("status"),
		},
		Profile: q.Get("profile"),
	}
	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		h.writeErr(w, r, fmt.Errorf("%w: limit: %v", apperrors.ErrInvalidInput, err))
		return
	}
	if req.Offset, err = intParam(q.Get("offset")); err != nil {
		h.writeErr(w, r, fmt.Errorf("%w: offset: %v", apperrors.ErrInvalidInput, err))
		return
	}
	if v := q.Get("min_relevance"); v != "" {
		if req.MinRelevance, err = strconv.ParseFloat(v, 64); err != nil {
			h.writeErr(w, r, fmt.Errorf("%w: min_relevance: %v", apperrors.ErrInvalidInput, err))
			return
		}
	}

	result, err := h.search.Search(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		h.writeErr(w, r, fmt.Errorf("%w: limit must be a non-negative integer", apperrors.ErrInvalidInput))
		return
	}
	out, err := h.search.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"suggestions": out})
}

type reindexRequest struct {
	IDs []string `json:"ids"`
}

type reindexResponse struct {
	Requested int    `json:"requested"`
	Indexed   int    `json:"indexed"`
	Removed   int    `json:"removed"`
	Failed    int    `json:"failed"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// Reindex accepts an optional JSON body {"ids": [...]}. An empty body or
// list reindexes the whole corpus. Partial failures still report counts.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	var body reindexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.writeErr(w, r, fmt.Errorf("%w: malformed body: %v", apperrors.ErrInvalidInput, err))
			return
		}
	}
	report, err := h.search.Reindex(r.Context(), body.IDs)
	resp := reindexResponse{
		Requested: report.Requested,
		Indexed:   report.Indexed,
		Removed:   report.Removed,
		Failed:    report.Failed,
		ElapsedMs: report.Elapsed.Milliseconds(),
	}
	if err != nil {
		if report.Requested == 0 {
			h.writeErr(w, r, err)
			return
		}
		resp.Error = err.Error()
		h.writeJSON(w, http.StatusMultiStatus, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.search.CacheStats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.search.InvalidateCache(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) QueryStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, http.StatusNotFound, "query statistics are disabled")
		return
	}
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		h.writeError(w, http.StatusNotFound, "document store is read-only")
		return
	}
	doc, err := h.docs.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		h.writeError(w, http.StatusNotFound, "document store is read-only")
		return
	}
	var doc corpus.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeErr(w, r, fmt.Errorf("%w: malformed document: %v", apperrors.ErrInvalidInput, err))
		return
	}
	id := r.PathValue("id")
	if doc.ID != "" && doc.ID != id {
		h.writeErr(w, r, fmt.Errorf("%w: body id %q does not match path", apperrors.ErrInvalidInput, doc.ID))
		return
	}
	doc.ID = id
	if err := h.docs.Put(r.Context(), &doc); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &doc)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		h.writeError(w, http.StatusNotFound, "document store is read-only")
		return
	}
	if err := h.docs.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	if apperrors.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error(), "code": apperrors.Code(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
