package report

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/reconciliation"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func testRun() consolidation.Consolidation {
	return consolidation.Consolidation{
		ID:       7,
		Name:     "FY25 close",
		Currency: "EUR",
		Status:   consolidation.StatusValidated,
		Aggregate: consolidation.Aggregate{
			TotalAssets:       dec("1170"),
			TotalLiabilities:  dec("550"),
			TotalEquity:       dec("660"),
			TotalRevenue:      dec("700"),
			TotalExpenses:     dec("400"),
			GroupNetIncome:    dec("280"),
			MinorityNetIncome: dec("20"),
			MinorityInterests: dec("60"),
			TotalGoodwill:     dec("10"),
			TotalEliminated:   dec("50"),
		},
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	b := NewBuilder()
	rep, err := b.Build(TypeBalanceSheet, Inputs{Consolidation: testRun()})
	require.NoError(t, err)

	require.Equal(t, TypeBalanceSheet, rep.Type)
	require.Equal(t, "EUR", rep.Currency)
	require.Len(t, rep.Sections, 3)

	assets := rep.Sections[0]
	require.True(t, assets.Total.Equal(dec("1170")), "assets section totals %s", assets.Total)

	// Goodwill shows as its own line inside assets.
	require.Equal(t, "Goodwill", assets.Lines[1].Label)
	require.True(t, assets.Lines[1].Amount.Equal(dec("10")))

	liabilities := rep.Sections[1].Total
	equity := rep.Sections[2].Total
	require.True(t, assets.Total.Equal(liabilities.Add(equity)),
		"balance sheet must balance: %s vs %s", assets.Total, liabilities.Add(equity))
}

func TestBuildIncomeStatement(t *testing.T) {
	b := NewBuilder()
	rep, err := b.Build(TypeIncomeStatement, Inputs{Consolidation: testRun()})
	require.NoError(t, err)

	// Revenue minus expenses equals the attributed net income.
	require.True(t, rep.Sections[0].Total.Equal(dec("300")))
	require.True(t, rep.Sections[1].Total.Equal(dec("300")))
}

func TestBuildIntercompanyUsesSummary(t *testing.T) {
	summary := reconciliation.Summary{
		TotalPairs:        3,
		ReconciledCount:   2,
		UnreconciledCount: 1,
		ByType: []reconciliation.TypeBreakdown{
			{Type: reconciliation.TxnReceivablePayable, Pairs: 2, Reconciled: 2, AggregateAbsDiff: dec("15")},
			{Type: reconciliation.TxnDividend, Pairs: 1, OutsideTolerance: 1, AggregateAbsDiff: dec("100")},
		},
	}
	b := NewBuilder()
	rep, err := b.Build(TypeIntercompany, Inputs{Consolidation: testRun(), Reconciliation: summary})
	require.NoError(t, err)

	require.Len(t, rep.Sections, 3)
	require.Equal(t, string(reconciliation.TxnReceivablePayable), rep.Sections[0].Heading)
	require.Equal(t, string(reconciliation.TxnDividend), rep.Sections[1].Heading)
	require.Equal(t, "All types", rep.Sections[2].Heading)
}

func TestBuildRejectsUnknownType(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build(Type("PROFIT_BRIDGE"), Inputs{Consolidation: testRun()})
	require.ErrorIs(t, err, ErrUnknownType)
}
