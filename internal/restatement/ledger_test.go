package restatement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/pack"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func balancedLines(amount string) []JournalLine {
	return []JournalLine{
		{AccountCode: "DR", Debit: dec(amount)},
		{AccountCode: "CR", Credit: dec(amount)},
	}
}

func validated(entityID int64, assets, liabilities, equity, income, expense, tax string) Restatement {
	return Restatement{
		ConsolidationID:  1,
		EntityID:         entityID,
		Type:             TypeLeaseCapitalization,
		Description:      "alignment",
		Status:           StatusValidated,
		AssetsDelta:      dec(assets),
		LiabilitiesDelta: dec(liabilities),
		EquityDelta:      dec(equity),
		IncomeDelta:      dec(income),
		ExpenseDelta:     dec(expense),
		TaxDelta:         dec(tax),
	}
}

func TestLedgerApplyAddsDeltas(t *testing.T) {
	ledger := NewLedger()
	packages := []pack.Package{{
		EntityID:                  10,
		TotalAssetsConverted:      dec("1000000"),
		TotalLiabilitiesConverted: dec("600000"),
		TotalEquityConverted:      dec("400000"),
		TotalRevenueConverted:     dec("90000"),
		TotalExpensesConverted:    dec("40000"),
		NetIncomeConverted:        dec("50000"),
	}}
	restatements := []Restatement{
		validated(10, "20000", "18000", "2000", "0", "3000", "-500"),
	}

	adjusted := ledger.Apply(packages, restatements)

	require.True(t, adjusted[0].TotalAssetsConverted.Equal(dec("1020000")))
	require.True(t, adjusted[0].TotalLiabilitiesConverted.Equal(dec("618000")))
	require.True(t, adjusted[0].TotalEquityConverted.Equal(dec("402000")))
	// expenses move by expense + tax = 3000 - 500
	require.True(t, adjusted[0].TotalRevenueConverted.Equal(dec("90000")))
	require.True(t, adjusted[0].TotalExpensesConverted.Equal(dec("42500")))
	// net income moves by income - expense - tax = 0 - 3000 - (-500)
	require.True(t, adjusted[0].NetIncomeConverted.Equal(dec("47500")))
	// adjusted revenue minus expenses still equals adjusted net income
	require.True(t, adjusted[0].TotalRevenueConverted.Sub(adjusted[0].TotalExpensesConverted).Equal(adjusted[0].NetIncomeConverted))
	// input untouched
	require.True(t, packages[0].TotalAssetsConverted.Equal(dec("1000000")))
}

func TestLedgerApplyIsOrderIndependent(t *testing.T) {
	ledger := NewLedger()
	packages := []pack.Package{{EntityID: 10, TotalAssetsConverted: dec("100")}}
	a := validated(10, "5", "0", "0", "0", "0", "0")
	b := validated(10, "-3", "0", "0", "0", "0", "0")

	forward := ledger.Apply(packages, []Restatement{a, b})
	reverse := ledger.Apply(packages, []Restatement{b, a})

	require.True(t, forward[0].TotalAssetsConverted.Equal(dec("102")))
	require.True(t, forward[0].TotalAssetsConverted.Equal(reverse[0].TotalAssetsConverted))
}

func TestLedgerIgnoresDraftAndRejected(t *testing.T) {
	ledger := NewLedger()
	draft := validated(10, "999", "0", "0", "0", "0", "0")
	draft.Status = StatusDraft
	rejected := validated(10, "999", "0", "0", "0", "0", "0")
	rejected.Status = StatusRejected

	impacts := ledger.Impacts([]Restatement{draft, rejected})
	require.Empty(t, impacts)
}

func TestLedgerLeavesOtherEntitiesAlone(t *testing.T) {
	ledger := NewLedger()
	packages := []pack.Package{
		{EntityID: 10, TotalAssetsConverted: dec("100")},
		{EntityID: 20, TotalAssetsConverted: dec("200")},
	}
	adjusted := ledger.Apply(packages, []Restatement{validated(10, "1", "0", "0", "0", "0", "0")})

	require.True(t, adjusted[0].TotalAssetsConverted.Equal(dec("101")))
	require.True(t, adjusted[1].TotalAssetsConverted.Equal(dec("200")))
}

func TestRestatementBalanced(t *testing.T) {
	r := validated(10, "0", "0", "0", "0", "0", "0")
	r.Lines = balancedLines("100")
	require.NoError(t, r.Balanced())

	r.Lines = []JournalLine{
		{AccountCode: "DR", Debit: dec("100")},
		{AccountCode: "CR", Credit: dec("90")},
	}
	require.ErrorIs(t, r.Balanced(), ErrUnbalanced)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusDraft, StatusValidated))
	require.True(t, CanTransition(StatusDraft, StatusRejected))
	require.True(t, CanTransition(StatusRejected, StatusDraft))
	require.False(t, CanTransition(StatusValidated, StatusDraft))
	require.False(t, CanTransition(StatusValidated, StatusRejected))
}
