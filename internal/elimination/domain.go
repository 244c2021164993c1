// Package elimination detects and removes intercompany effects from a
// consolidation run: reciprocal balances, intragroup flows, dividends, and
// the parent's investment against subsidiary equity.
package elimination

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType enumerates the closed set of elimination variants.
type EntryType string

const (
	TypeReceivablePayable EntryType = "RECEIVABLE_PAYABLE"
	TypeRevenueExpense    EntryType = "REVENUE_EXPENSE"
	TypeDividends         EntryType = "DIVIDENDS"
	TypeEquity            EntryType = "EQUITY"
	TypeMarginInventory   EntryType = "MARGIN_INVENTORY"
	TypeMarginFixedAssets EntryType = "MARGIN_FIXED_ASSETS"
	TypeOther             EntryType = "OTHER"
)

func (t EntryType) valid() bool {
	switch t {
	case TypeReceivablePayable, TypeRevenueExpense, TypeDividends, TypeEquity,
		TypeMarginInventory, TypeMarginFixedAssets, TypeOther:
		return true
	}
	return false
}

// JournalLine is one leg of an elimination entry.
type JournalLine struct {
	AccountCode string          `json:"account_code"`
	Label       string          `json:"label"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Entry is one elimination adjustment, automatic or manual.
type Entry struct {
	ID              int64           `json:"id"`
	ConsolidationID int64           `json:"consolidation_id"`
	Type            EntryType       `json:"type"`
	EntityID1       int64           `json:"entity_id_1"`
	EntityID2       int64           `json:"entity_id_2,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Lines           []JournalLine   `json:"lines"`
	IsAutomatic     bool            `json:"is_automatic"`
	IsValidated     bool            `json:"is_validated"`
	// SourceKey is deterministic for automatic entries so regeneration
	// replaces rather than duplicates them.
	SourceKey string    `json:"source_key,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrUnbalanced indicates journal lines whose debits and credits differ.
var ErrUnbalanced = errors.New("elimination: journal lines not balanced")

// ErrEntryNotFound occurs when entry lookup fails.
var ErrEntryNotFound = errors.New("elimination: entry not found")

// Balanced verifies Σdebit = Σcredit over the entry's lines, exactly.
func (e Entry) Balanced() error {
	var debit, credit decimal.Decimal
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s vs credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// Validate checks a manual entry before insertion.
func (e Entry) Validate() error {
	if e.ConsolidationID == 0 {
		return errors.New("elimination: consolidation id required")
	}
	if !e.Type.valid() {
		return fmt.Errorf("elimination: unknown entry type %q", e.Type)
	}
	if e.EntityID1 == 0 {
		return errors.New("elimination: first entity required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return errors.New("elimination: description required")
	}
	if len(e.Lines) < 2 {
		return errors.New("elimination: at least two journal lines required")
	}
	return e.Balanced()
}

// Warning surfaces an unmatched or partially matched intercompany pair.
type Warning struct {
	Type      EntryType       `json:"type"`
	EntityID1 int64           `json:"entity_id_1"`
	EntityID2 int64           `json:"entity_id_2"`
	Amount1   decimal.Decimal `json:"amount_1"`
	Amount2   decimal.Decimal `json:"amount_2"`
	Message   string          `json:"message"`
}

// GenerationResult is the outcome of one engine run.
type GenerationResult struct {
	ConsolidationID int64     `json:"consolidation_id"`
	Entries         []Entry   `json:"entries"`
	Warnings        []Warning `json:"warnings"`
	// GoodwillInputs carries the equity-elimination residual per
	// participation, later refined by the goodwill calculator.
	GoodwillInputs map[int64]decimal.Decimal `json:"goodwill_inputs"`
}

// TotalEliminated sums the absolute amounts of the generated entries.
func (r GenerationResult) TotalEliminated() decimal.Decimal {
	var total decimal.Decimal
	for _, e := range r.Entries {
		total = total.Add(e.Amount.Abs())
	}
	return total
}
