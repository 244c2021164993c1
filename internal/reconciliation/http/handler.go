// Package reconciliationhttp exposes intercompany reconciliation endpoints.
package reconciliationhttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/groupledger/groupledger/internal/platform/httpx"
	"github.com/groupledger/groupledger/internal/reconciliation"
)

// Handler wires reconciliation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *reconciliation.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *reconciliation.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consolidations/{id}/reconciliations", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/summary", h.summary)
		r.Post("/auto-reconcile", h.autoReconcile)
	})
	r.Post("/reconciliations/{id}/reconcile", h.reconcile)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.service.List(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reconciliations": pairs})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) autoReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.AutoReconcile(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type reconcileRequest struct {
	Version          int64  `json:"version" validate:"required"`
	DifferenceReason string `json:"difference_reason"`
	ActionTaken      string `json:"action_taken"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.Reconcile(r.Context(), pathID(r), req.Version, req.DifferenceReason, req.ActionTaken)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
