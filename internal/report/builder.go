package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/reconciliation"
)

// Inputs carries everything a statement is assembled from. Reconciliation is
// only consulted by the intercompany statement and the notes.
type Inputs struct {
	Consolidation  consolidation.Consolidation
	Reconciliation reconciliation.Summary
}

// Builder assembles report sections from a run's computed block.
type Builder struct{}

// NewBuilder constructs builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build produces the sections and title for one statement type.
func (b *Builder) Build(typ Type, in Inputs) (ConsolidatedReport, error) {
	if !typ.Valid() {
		return ConsolidatedReport{}, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	c := in.Consolidation
	rep := ConsolidatedReport{
		ConsolidationID: c.ID,
		Type:            typ,
		Title:           fmt.Sprintf("%s - %s", title(typ), c.Name),
		Currency:        c.Currency,
		PeriodEnd:       c.PeriodEnd,
	}
	switch typ {
	case TypeBalanceSheet:
		rep.Sections = balanceSheet(c.Aggregate)
	case TypeIncomeStatement:
		rep.Sections = incomeStatement(c.Aggregate)
	case TypeCashFlow:
		rep.Sections = cashFlow(c.Aggregate)
	case TypeEquityVariation:
		rep.Sections = equityVariation(c.Aggregate)
	case TypeNotes:
		rep.Sections = notes(c.Aggregate, in.Reconciliation)
	case TypeSegment:
		rep.Sections = segment(c.Aggregate)
	case TypeIntercompany:
		rep.Sections = intercompany(in.Reconciliation)
	}
	return rep, nil
}

func title(typ Type) string {
	switch typ {
	case TypeBalanceSheet:
		return "Consolidated Balance Sheet"
	case TypeIncomeStatement:
		return "Consolidated Income Statement"
	case TypeCashFlow:
		return "Consolidated Cash Flow"
	case TypeEquityVariation:
		return "Consolidated Equity Variation"
	case TypeNotes:
		return "Notes to the Consolidated Statements"
	case TypeSegment:
		return "Segment Reporting"
	case TypeIntercompany:
		return "Intercompany Positions"
	}
	return string(typ)
}

func section(heading string, lines ...Line) Section {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return Section{Heading: heading, Lines: lines, Total: total}
}

func balanceSheet(a consolidation.Aggregate) []Section {
	return []Section{
		section("Assets",
			Line{Label: "Total assets", Amount: a.TotalAssets.Sub(a.TotalGoodwill)},
			Line{Label: "Goodwill", Amount: a.TotalGoodwill},
		),
		section("Liabilities",
			Line{Label: "Total liabilities", Amount: a.TotalLiabilities},
		),
		section("Equity",
			Line{Label: "Group equity", Amount: a.TotalEquity.Sub(a.MinorityInterests)},
			Line{Label: "Non-controlling interests", Amount: a.MinorityInterests},
			Line{Label: "Translation difference", Amount: a.TranslationDifference},
		),
	}
}

func incomeStatement(a consolidation.Aggregate) []Section {
	return []Section{
		section("Operations",
			Line{Label: "Revenue", Amount: a.TotalRevenue},
			Line{Label: "Expenses", Amount: a.TotalExpenses.Neg()},
		),
		section("Net income attribution",
			Line{Label: "Group net income", Amount: a.GroupNetIncome},
			Line{Label: "Minority net income", Amount: a.MinorityNetIncome},
		),
	}
}

func cashFlow(a consolidation.Aggregate) []Section {
	netIncome := a.GroupNetIncome.Add(a.MinorityNetIncome)
	return []Section{
		section("Operating activities",
			Line{Label: "Consolidated net income", Amount: netIncome},
			Line{Label: "Intercompany eliminations", Amount: a.TotalEliminated.Neg()},
		),
		section("Translation effects",
			Line{Label: "Currency translation difference", Amount: a.TranslationDifference},
		),
	}
}

func equityVariation(a consolidation.Aggregate) []Section {
	return []Section{
		section("Group share",
			Line{Label: "Closing equity, group share", Amount: a.TotalEquity.Sub(a.MinorityInterests)},
			Line{Label: "Net income of the period", Amount: a.GroupNetIncome},
		),
		section("Non-controlling interests",
			Line{Label: "Closing minority interests", Amount: a.MinorityInterests},
			Line{Label: "Minority share of net income", Amount: a.MinorityNetIncome},
		),
	}
}

func notes(a consolidation.Aggregate, s reconciliation.Summary) []Section {
	return []Section{
		section("Goodwill",
			Line{Label: "Carrying value", Amount: a.TotalGoodwill},
		),
		section("Eliminations",
			Line{Label: "Total eliminated", Amount: a.TotalEliminated},
		),
		section("Intercompany reconciliation",
			Line{Label: "Pairs outside tolerance", Amount: decimal.NewFromInt(int64(s.OutsideTolerance))},
			Line{Label: "Aggregate absolute difference", Amount: s.AggregateAbsDiff},
		),
	}
}

func segment(a consolidation.Aggregate) []Section {
	// Segment axes are not modelled yet, so the statement carries the single
	// consolidated segment.
	return []Section{
		section("Consolidated group",
			Line{Label: "Revenue", Amount: a.TotalRevenue},
			Line{Label: "Assets", Amount: a.TotalAssets},
		),
	}
}

func intercompany(s reconciliation.Summary) []Section {
	sections := make([]Section, 0, len(s.ByType)+1)
	for _, bt := range s.ByType {
		sections = append(sections, section(string(bt.Type),
			Line{Label: "Pairs compared", Amount: decimal.NewFromInt(int64(bt.Pairs))},
			Line{Label: "Reconciled", Amount: decimal.NewFromInt(int64(bt.Reconciled))},
			Line{Label: "Outside tolerance", Amount: decimal.NewFromInt(int64(bt.OutsideTolerance))},
			Line{Label: "Aggregate absolute difference", Amount: bt.AggregateAbsDiff},
		))
	}
	sections = append(sections, section("All types",
		Line{Label: "Total pairs", Amount: decimal.NewFromInt(int64(s.TotalPairs))},
		Line{Label: "Unreconciled", Amount: decimal.NewFromInt(int64(s.UnreconciledCount))},
	))
	return sections
}
