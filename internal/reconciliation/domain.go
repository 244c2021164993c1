// Package reconciliation cross-checks the intercompany balances declared by
// both sides of an entity pair and tracks their sign-off.
package reconciliation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType names the reciprocal declaration being compared.
type TransactionType string

const (
	TxnReceivablePayable TransactionType = "RECEIVABLE_PAYABLE"
	TxnRevenueExpense    TransactionType = "REVENUE_EXPENSE"
	TxnDividend          TransactionType = "DIVIDEND"
)

// Tolerance is the pair of thresholds a difference is judged against.
// Either threshold alone is enough to pass.
type Tolerance struct {
	Amount decimal.Decimal `json:"amount"`
	Pct    decimal.Decimal `json:"pct"`
}

// Reconciliation is one pairwise comparison inside a run.
type Reconciliation struct {
	ID              int64           `json:"id"`
	ConsolidationID int64           `json:"consolidation_id"`
	EntityID1       int64           `json:"entity_id_1"`
	EntityID2       int64           `json:"entity_id_2"`
	Type            TransactionType `json:"type"`

	Amount1       decimal.Decimal `json:"amount_1"`
	Amount2       decimal.Decimal `json:"amount_2"`
	Difference    decimal.Decimal `json:"difference"`
	DifferencePct decimal.Decimal `json:"difference_pct"`

	ToleranceAmount   decimal.Decimal `json:"tolerance_amount"`
	TolerancePct      decimal.Decimal `json:"tolerance_pct"`
	IsWithinTolerance bool            `json:"is_within_tolerance"`

	IsReconciled     bool       `json:"is_reconciled"`
	DifferenceReason string     `json:"difference_reason,omitempty"`
	ActionTaken      string     `json:"action_taken,omitempty"`
	ReconciledAt     *time.Time `json:"reconciled_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrReconciliationNotFound indicates the pair is missing.
	ErrReconciliationNotFound = errors.New("reconciliation: not found")
	// ErrReasonRequired indicates a manual sign-off outside tolerance
	// without a difference reason and action taken.
	ErrReasonRequired = errors.New("reconciliation: difference reason and action taken required outside tolerance")
	// ErrAlreadyReconciled indicates a repeated sign-off.
	ErrAlreadyReconciled = errors.New("reconciliation: already reconciled")
)

// TypeBreakdown is the per-type slice of a summary.
type TypeBreakdown struct {
	Type             TransactionType `json:"type"`
	Pairs            int             `json:"pairs"`
	Reconciled       int             `json:"reconciled"`
	AggregateAbsDiff decimal.Decimal `json:"aggregate_abs_difference"`
	OutsideTolerance int             `json:"outside_tolerance"`
}

// Summary condenses the state of a run's reconciliations.
type Summary struct {
	ConsolidationID   int64 `json:"consolidation_id"`
	TotalPairs        int   `json:"total_pairs"`
	ReconciledCount   int   `json:"reconciled_count"`
	UnreconciledCount int   `json:"unreconciled_count"`
	OutsideTolerance  int   `json:"outside_tolerance"`
	// UnreconciledOutsideTolerance counts the pairs that are both outside
	// tolerance and still unsigned; validation requires an explicit
	// acknowledgement while this is non-zero.
	UnreconciledOutsideTolerance int             `json:"unreconciled_outside_tolerance"`
	AggregateAbsDiff             decimal.Decimal `json:"aggregate_abs_difference"`
	ByType                       []TypeBreakdown `json:"by_type"`
}

// Summarize folds a pair set into a Summary, with a stable by-type order.
func Summarize(consolidationID int64, pairs []Reconciliation) Summary {
	summary := Summary{ConsolidationID: consolidationID, TotalPairs: len(pairs)}
	byType := map[TransactionType]*TypeBreakdown{}
	order := []TransactionType{TxnReceivablePayable, TxnRevenueExpense, TxnDividend}
	for _, t := range order {
		byType[t] = &TypeBreakdown{Type: t}
	}
	for _, pair := range pairs {
		breakdown, ok := byType[pair.Type]
		if !ok {
			breakdown = &TypeBreakdown{Type: pair.Type}
			byType[pair.Type] = breakdown
			order = append(order, pair.Type)
		}
		breakdown.Pairs++
		summary.AggregateAbsDiff = summary.AggregateAbsDiff.Add(pair.Difference.Abs())
		breakdown.AggregateAbsDiff = breakdown.AggregateAbsDiff.Add(pair.Difference.Abs())
		if pair.IsReconciled {
			summary.ReconciledCount++
			breakdown.Reconciled++
		} else {
			summary.UnreconciledCount++
		}
		if !pair.IsWithinTolerance {
			summary.OutsideTolerance++
			breakdown.OutsideTolerance++
			if !pair.IsReconciled {
				summary.UnreconciledOutsideTolerance++
			}
		}
	}
	for _, t := range order {
		if byType[t].Pairs > 0 {
			summary.ByType = append(summary.ByType, *byType[t])
		}
	}
	return summary
}
