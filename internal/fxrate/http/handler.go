// Package fxratehttp exposes exchange-rate endpoints.
package fxratehttp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/fxrate"
	"github.com/groupledger/groupledger/internal/platform/httpx"
	"github.com/groupledger/groupledger/internal/shared"
)

// Handler wires FX endpoints.
type Handler struct {
	logger  *slog.Logger
	service *fxrate.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *fxrate.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/fx/rates", func(r chi.Router) {
		r.Get("/", h.lookup)
		r.Put("/", h.upsert)
		r.Post("/import", h.importCSV)
		r.Post("/validate-coverage", h.validateCoverage)
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	asOf, err := time.Parse("2006-01-02", r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid date", "as_of must be YYYY-MM-DD")
		return
	}
	q, err := h.service.Lookup(r.Context(), from, to, asOf)
	if err != nil {
		if errors.Is(err, fxrate.ErrRateNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: %w", shared.ErrNotFound, err))
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

type upsertRequest struct {
	From       string          `json:"from" validate:"required,len=3"`
	To         string          `json:"to" validate:"required,len=3"`
	AsOf       time.Time       `json:"as_of" validate:"required"`
	Closing    decimal.Decimal `json:"closing"`
	Average    decimal.Decimal `json:"average"`
	Historical decimal.Decimal `json:"historical"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := fxrate.Quote{
		From:       req.From,
		To:         req.To,
		AsOf:       req.AsOf,
		Closing:    req.Closing,
		Average:    req.Average,
		Historical: req.Historical,
	}
	if err := h.service.Upsert(r.Context(), q); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", shared.ErrValidation, err))
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	imported, err := h.service.ImportCSV(r.Context(), r.Body)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", shared.ErrValidation, err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"imported": imported})
}

type coverageRequest struct {
	Pairs []string  `json:"pairs" validate:"required,min=1"`
	AsOf  time.Time `json:"as_of" validate:"required"`
}

func (h *Handler) validateCoverage(w http.ResponseWriter, r *http.Request) {
	var req coverageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.ValidateCoverage(r.Context(), req.Pairs, req.AsOf)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", shared.ErrValidation, err))
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
