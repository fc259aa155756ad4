// Package server exposes the operator HTTP surface: health, batch
// inspection, explicit re-extract, review worksheet export, and metrics.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/export"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

type OpsHandler struct {
	docs    repository.DocumentRepository
	batches repository.BatchRepository
	export  *export.Service
	logger  *slog.Logger
}

func NewOpsHandler(docs repository.DocumentRepository, batches repository.BatchRepository, exp *export.Service, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{docs: docs, batches: batches, export: exp, logger: logger}
}

// NewRouter wires the ops endpoints and the metrics endpoint.
func NewRouter(h *OpsHandler, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/batches", h.ListBatches).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}", h.GetBatch).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/reextract", h.ReextractDocument).Methods(http.MethodPost)
	api.HandleFunc("/exports/review", h.ExportReview).Methods(http.MethodGet)

	return r
}

func (h *OpsHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	batches, err := h.batches.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list batches", err)
		return
	}
	h.respondJSON(w, http.StatusOK, batches)
}

func (h *OpsHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid batch id", err)
		return
	}
	batch, err := h.batches.GetByID(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "batch not found", err)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get batch", err)
		return
	}
	h.respondJSON(w, http.StatusOK, batch)
}

func (h *OpsHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid document id", err)
		return
	}
	doc, err := h.docs.GetByID(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "document not found", err)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get document", err)
		return
	}
	h.respondJSON(w, http.StatusOK, doc)
}

// ReextractDocument re-queues a document on explicit operator request.
// Documents currently claimed by a batch are rejected with a conflict.
func (h *OpsHandler) ReextractDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid document id", err)
		return
	}
	err = h.docs.RequeueForReextract(r.Context(), id)
	if errors.Is(err, common.ErrConflict) {
		h.respondError(w, http.StatusConflict, "document is processing or not eligible for re-extraction", err)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to requeue document", err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *OpsHandler) ExportReview(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateWindow(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid date window", err)
		return
	}
	data, err := h.export.ExportReviewXLSX(r.Context(), from, to)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "export failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="extraction-review.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseDateWindow(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

func (h *OpsHandler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}

func (h *OpsHandler) respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.logger.Warn("ops request failed", "status", status, "message", message, "error", err)
	}
	h.respondJSON(w, status, map[string]string{"error": message})
}
