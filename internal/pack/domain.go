// Package pack models the consolidation package: one entity's local-currency
// trial balance submitted into a consolidation run, and its translation into
// the consolidation currency.
package pack

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the package workflow.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusValidated Status = "VALIDATED"
	StatusRejected  Status = "REJECTED"
)

// transitions is the package state machine: current status -> allowed targets.
// REJECTED returns control to the submitting entity, so it behaves as DRAFT.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusValidated, StatusRejected},
	StatusRejected:  {StatusSubmitted},
}

// CanTransition reports whether from -> to is a legal package step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether the package contents may still change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// LineNature classifies a trial-balance line for rate selection: balance-sheet
// natures translate at the closing rate, flow natures at the average rate.
type LineNature string

const (
	NatureAsset     LineNature = "ASSET"
	NatureLiability LineNature = "LIABILITY"
	NatureEquity    LineNature = "EQUITY"
	NatureIncome    LineNature = "INCOME"
	NatureExpense   LineNature = "EXPENSE"
)

// IsFlow reports whether the nature translates at the average rate.
func (n LineNature) IsFlow() bool {
	return n == NatureIncome || n == NatureExpense
}

// TrialBalanceLine is one account line of a package.
type TrialBalanceLine struct {
	ID              int64           `json:"id"`
	AccountCode     string          `json:"account_code"`
	AccountName     string          `json:"account_name"`
	Nature          LineNature      `json:"nature"`
	AmountLocal     decimal.Decimal `json:"amount_local"`
	AmountConverted decimal.Decimal `json:"amount_converted"`
}

// IntercompanyType classifies a declared intercompany balance.
type IntercompanyType string

const (
	IntercoReceivable IntercompanyType = "RECEIVABLE"
	IntercoPayable    IntercompanyType = "PAYABLE"
	IntercoRevenue    IntercompanyType = "REVENUE"
	IntercoExpense    IntercompanyType = "EXPENSE"
	IntercoDividend   IntercompanyType = "DIVIDEND"
)

// IsFlow reports whether the balance translates at the average rate.
func (t IntercompanyType) IsFlow() bool {
	return t == IntercoRevenue || t == IntercoExpense || t == IntercoDividend
}

// IntercompanyBalance is one declared balance against a counterparty entity.
type IntercompanyBalance struct {
	ID                   int64            `json:"id"`
	CounterpartyEntityID int64            `json:"counterparty_entity_id"`
	Type                 IntercompanyType `json:"type"`
	AmountLocal          decimal.Decimal  `json:"amount_local"`
	AmountConverted      decimal.Decimal  `json:"amount_converted"`
}

// Package is one entity's trial balance inside a consolidation run.
// Local-currency fields are the submitted inputs and are never mutated by
// translation; converted fields are populated by the translator.
type Package struct {
	ID              int64  `json:"id"`
	ConsolidationID int64  `json:"consolidation_id"`
	EntityID        int64  `json:"entity_id"`
	LocalCurrency   string `json:"local_currency"`
	Status          Status `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	TotalAssetsLocal      decimal.Decimal `json:"total_assets_local"`
	TotalLiabilitiesLocal decimal.Decimal `json:"total_liabilities_local"`
	TotalEquityLocal      decimal.Decimal `json:"total_equity_local"`
	OpeningEquityLocal    decimal.Decimal `json:"opening_equity_local"`
	TotalRevenueLocal     decimal.Decimal `json:"total_revenue_local"`
	TotalExpensesLocal    decimal.Decimal `json:"total_expenses_local"`
	NetIncomeLocal        decimal.Decimal `json:"net_income_local"`

	TotalAssetsConverted      decimal.Decimal `json:"total_assets_converted"`
	TotalLiabilitiesConverted decimal.Decimal `json:"total_liabilities_converted"`
	TotalEquityConverted      decimal.Decimal `json:"total_equity_converted"`
	TotalRevenueConverted     decimal.Decimal `json:"total_revenue_converted"`
	TotalExpensesConverted    decimal.Decimal `json:"total_expenses_converted"`
	NetIncomeConverted        decimal.Decimal `json:"net_income_converted"`
	TranslationDifference     decimal.Decimal `json:"translation_difference"`

	Lines        []TrialBalanceLine    `json:"lines,omitempty"`
	Intercompany []IntercompanyBalance `json:"intercompany,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

var (
	// ErrPackageNotFound indicates the package is missing.
	ErrPackageNotFound = errors.New("pack: package not found")
	// ErrNotEditable indicates contents were changed outside DRAFT/REJECTED.
	ErrNotEditable = errors.New("pack: package is not editable in current status")
	// ErrReasonRequired indicates a rejection without a reason.
	ErrReasonRequired = errors.New("pack: rejection reason required")
)

// CreateInput validates new package requests.
type CreateInput struct {
	ConsolidationID int64
	EntityID        int64
	LocalCurrency   string
}

// Validate ensures identifiers are supplied.
func (in CreateInput) Validate() error {
	if in.ConsolidationID == 0 || in.EntityID == 0 {
		return errors.New("pack: consolidation and entity required")
	}
	if len(in.LocalCurrency) != 3 {
		return fmt.Errorf("pack: local currency must be ISO 4217, got %q", in.LocalCurrency)
	}
	return nil
}
