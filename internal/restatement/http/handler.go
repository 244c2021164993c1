// Package restatementhttp exposes restatement endpoints.
package restatementhttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/platform/httpx"
	"github.com/groupledger/groupledger/internal/restatement"
)

// Handler wires restatement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *restatement.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *restatement.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidations/{id}/restatements", h.list)
	r.Post("/consolidations/{id}/restatements", h.create)
	r.Post("/consolidations/{id}/restatements/propose-recurring", h.proposeRecurring)
	r.Route("/restatements/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Post("/transition", h.transition)
	})
}

type journalLineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Label       string          `json:"label"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type restatementRequest struct {
	EntityID         int64                `json:"entity_id" validate:"required"`
	Type             restatement.Type     `json:"type" validate:"required"`
	Description      string               `json:"description" validate:"required"`
	AssetsDelta      decimal.Decimal      `json:"assets_delta"`
	LiabilitiesDelta decimal.Decimal      `json:"liabilities_delta"`
	EquityDelta      decimal.Decimal      `json:"equity_delta"`
	IncomeDelta      decimal.Decimal      `json:"income_delta"`
	ExpenseDelta     decimal.Decimal      `json:"expense_delta"`
	TaxDelta         decimal.Decimal      `json:"tax_delta"`
	IsRecurring      bool                 `json:"is_recurring"`
	Lines            []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (req restatementRequest) toDomain(consolidationID int64) restatement.Restatement {
	r := restatement.Restatement{
		ConsolidationID:  consolidationID,
		EntityID:         req.EntityID,
		Type:             req.Type,
		Description:      req.Description,
		AssetsDelta:      req.AssetsDelta,
		LiabilitiesDelta: req.LiabilitiesDelta,
		EquityDelta:      req.EquityDelta,
		IncomeDelta:      req.IncomeDelta,
		ExpenseDelta:     req.ExpenseDelta,
		TaxDelta:         req.TaxDelta,
		IsRecurring:      req.IsRecurring,
	}
	for _, line := range req.Lines {
		r.Lines = append(r.Lines, restatement.JournalLine{
			AccountCode: line.AccountCode,
			Label:       line.Label,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req restatementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), req.toDomain(pathID(r)))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	restatements, err := h.service.List(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restatements": restatements})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type updateRequest struct {
	restatementRequest
	Version int64 `json:"version" validate:"required"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry := req.toDomain(0)
	entry.ID = pathID(r)
	updated, err := h.service.Update(r.Context(), entry, req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type transitionRequest struct {
	Status  restatement.Status `json:"status" validate:"required"`
	Version int64              `json:"version" validate:"required"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	entry, err := h.service.Transition(r.Context(), pathID(r), req.Version, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type proposeRecurringRequest struct {
	FromConsolidationID int64 `json:"from_consolidation_id" validate:"required"`
}

func (h *Handler) proposeRecurring(w http.ResponseWriter, r *http.Request) {
	var req proposeRecurringRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	proposed, err := h.service.ProposeRecurring(r.Context(), req.FromConsolidationID, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"restatements": proposed})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
