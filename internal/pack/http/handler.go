// Package packhttp exposes the consolidation package endpoints.
package packhttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/platform/httpx"
)

// Handler wires package endpoints.
type Handler struct {
	logger  *slog.Logger
	service *pack.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *pack.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidations/{id}/packages", h.list)
	r.Post("/consolidations/{id}/packages", h.create)
	r.Route("/packages/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/contents", h.upsertContents)
		r.Post("/submit", h.submit)
		r.Post("/validate", h.validate)
		r.Post("/reject", h.reject)
	})
}

type createRequest struct {
	EntityID      int64  `json:"entity_id" validate:"required"`
	LocalCurrency string `json:"local_currency" validate:"required,len=3"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), pack.CreateInput{
		ConsolidationID: pathID(r),
		EntityID:        req.EntityID,
		LocalCurrency:   req.LocalCurrency,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.ListByConsolidation(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"packages": packages})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type lineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	AccountName string          `json:"account_name"`
	Nature      pack.LineNature `json:"nature" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	AmountLocal decimal.Decimal `json:"amount_local"`
}

type intercompanyRequest struct {
	CounterpartyEntityID int64                 `json:"counterparty_entity_id" validate:"required"`
	Type                 pack.IntercompanyType `json:"type" validate:"required,oneof=RECEIVABLE PAYABLE REVENUE EXPENSE DIVIDEND"`
	AmountLocal          decimal.Decimal       `json:"amount_local"`
}

type contentsRequest struct {
	TotalAssetsLocal      decimal.Decimal       `json:"total_assets_local"`
	TotalLiabilitiesLocal decimal.Decimal       `json:"total_liabilities_local"`
	TotalEquityLocal      decimal.Decimal       `json:"total_equity_local"`
	OpeningEquityLocal    decimal.Decimal       `json:"opening_equity_local"`
	TotalRevenueLocal     decimal.Decimal       `json:"total_revenue_local"`
	TotalExpensesLocal    decimal.Decimal       `json:"total_expenses_local"`
	NetIncomeLocal        decimal.Decimal       `json:"net_income_local"`
	Lines                 []lineRequest         `json:"lines" validate:"dive"`
	Intercompany          []intercompanyRequest `json:"intercompany" validate:"dive"`
	Version               int64                 `json:"version" validate:"required"`
}

func (h *Handler) upsertContents(w http.ResponseWriter, r *http.Request) {
	var req contentsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p := pack.Package{
		ID:                    pathID(r),
		TotalAssetsLocal:      req.TotalAssetsLocal,
		TotalLiabilitiesLocal: req.TotalLiabilitiesLocal,
		TotalEquityLocal:      req.TotalEquityLocal,
		OpeningEquityLocal:    req.OpeningEquityLocal,
		TotalRevenueLocal:     req.TotalRevenueLocal,
		TotalExpensesLocal:    req.TotalExpensesLocal,
		NetIncomeLocal:        req.NetIncomeLocal,
		Version:               req.Version,
	}
	for _, line := range req.Lines {
		p.Lines = append(p.Lines, pack.TrialBalanceLine{
			AccountCode: line.AccountCode,
			AccountName: line.AccountName,
			Nature:      line.Nature,
			AmountLocal: line.AmountLocal,
		})
	}
	for _, ic := range req.Intercompany {
		p.Intercompany = append(p.Intercompany, pack.IntercompanyBalance{
			CounterpartyEntityID: ic.CounterpartyEntityID,
			Type:                 ic.Type,
			AmountLocal:          ic.AmountLocal,
		})
	}
	updated, err := h.service.UpsertContents(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type versionRequest struct {
	Version int64 `json:"version" validate:"required"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	p, err := h.service.Submit(r.Context(), pathID(r), req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	p, err := h.service.Validate(r.Context(), pathID(r), req.Version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type rejectRequest struct {
	Version int64  `json:"version" validate:"required"`
	Reason  string `json:"reason" validate:"required"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := httpx.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Reject(r.Context(), pathID(r), req.Version, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
