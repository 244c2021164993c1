// Package goodwillhttp exposes goodwill calculation endpoints.
package goodwillhttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/goodwill"
	"github.com/groupledger/groupledger/internal/platform/httpx"
)

// Handler wires goodwill endpoints.
type Handler struct {
	logger  *slog.Logger
	service *goodwill.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *goodwill.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidations/{id}/goodwill", h.list)
	r.Route("/goodwill/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/impairments", h.listImpairments)
		r.Post("/impairments", h.recordImpairment)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	calcs, err := h.service.List(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"calculations":   calcs,
		"total_goodwill": goodwill.TotalGoodwill(calcs),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	calc, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

func (h *Handler) listImpairments(w http.ResponseWriter, r *http.Request) {
	tests, err := h.service.ListImpairments(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"impairments": tests})
}

type impairmentRequest struct {
	Version    int64           `json:"version" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	TestDate   time.Time       `json:"test_date" validate:"required"`
	Conclusion string          `json:"conclusion" validate:"required"`
}

func (h *Handler) recordImpairment(w http.ResponseWriter, r *http.Request) {
	var req impairmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	calc, test, err := h.service.RecordImpairment(r.Context(), pathID(r), req.Version,
		req.Amount, req.TestDate, req.Conclusion)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"calculation": calc, "impairment": test})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
