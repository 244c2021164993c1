package restatement

import (
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/pack"
)

// Ledger applies validated restatements to translated package figures.
// Deltas are additive, so the outcome is independent of application order.
type Ledger struct{}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// EntityImpact is the summed validated deltas for one entity. Revenue carries
// the income deltas and Expenses the expense plus tax deltas, so NetIncome
// always equals Revenue minus Expenses.
type EntityImpact struct {
	EntityID    int64           `json:"entity_id"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Equity      decimal.Decimal `json:"equity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Expenses    decimal.Decimal `json:"expenses"`
	NetIncome   decimal.Decimal `json:"net_income"`
	Applied     int             `json:"applied"`
}

// Impacts sums validated restatements per entity. Draft and rejected entries
// never contribute.
func (l *Ledger) Impacts(restatements []Restatement) map[int64]EntityImpact {
	impacts := make(map[int64]EntityImpact)
	for _, r := range restatements {
		if r.Status != StatusValidated {
			continue
		}
		impact := impacts[r.EntityID]
		impact.EntityID = r.EntityID
		impact.Assets = impact.Assets.Add(r.AssetsDelta)
		impact.Liabilities = impact.Liabilities.Add(r.LiabilitiesDelta)
		impact.Equity = impact.Equity.Add(r.EquityDelta)
		impact.Revenue = impact.Revenue.Add(r.IncomeDelta)
		impact.Expenses = impact.Expenses.Add(r.ExpenseDelta).Add(r.TaxDelta)
		impact.NetIncome = impact.NetIncome.Add(r.NetIncomeDelta())
		impact.Applied++
		impacts[r.EntityID] = impact
	}
	return impacts
}

// Apply returns copies of the packages with the entity impacts folded into
// the converted figures. Inputs are never mutated.
func (l *Ledger) Apply(packages []pack.Package, restatements []Restatement) []pack.Package {
	impacts := l.Impacts(restatements)
	out := make([]pack.Package, len(packages))
	for i, p := range packages {
		adjusted := p
		if impact, ok := impacts[p.EntityID]; ok {
			adjusted.TotalAssetsConverted = p.TotalAssetsConverted.Add(impact.Assets)
			adjusted.TotalLiabilitiesConverted = p.TotalLiabilitiesConverted.Add(impact.Liabilities)
			adjusted.TotalEquityConverted = p.TotalEquityConverted.Add(impact.Equity)
			adjusted.TotalRevenueConverted = p.TotalRevenueConverted.Add(impact.Revenue)
			adjusted.TotalExpensesConverted = p.TotalExpensesConverted.Add(impact.Expenses)
			adjusted.NetIncomeConverted = p.NetIncomeConverted.Add(impact.NetIncome)
		}
		out[i] = adjusted
	}
	return out
}
