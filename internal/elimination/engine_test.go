package elimination

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func pkgWithInterco(entityID int64, balances ...pack.IntercompanyBalance) pack.Package {
	return pack.Package{
		ConsolidationID: 1,
		EntityID:        entityID,
		Status:          pack.StatusValidated,
		Intercompany:    balances,
	}
}

func TestGenerateReciprocalReceivablePayable(t *testing.T) {
	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoReceivable, AmountConverted: dec("5000")}),
		pkgWithInterco(20, pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoPayable, AmountConverted: dec("5000")}),
	}

	result := engine.Generate(1, packages, nil, nil)

	require.Len(t, result.Entries, 1)
	require.Empty(t, result.Warnings)
	entry := result.Entries[0]
	require.Equal(t, TypeReceivablePayable, entry.Type)
	require.Equal(t, "AUTO:RECEIVABLE_PAYABLE:10:20", entry.SourceKey)
	require.True(t, entry.IsAutomatic)
	require.True(t, entry.Amount.Equal(dec("5000")))
	require.NoError(t, entry.Balanced())
}

func TestGeneratePartialMatchEliminatesMinimum(t *testing.T) {
	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoRevenue, AmountConverted: dec("1000")}),
		pkgWithInterco(20, pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoExpense, AmountConverted: dec("900")}),
	}

	result := engine.Generate(1, packages, nil, nil)

	require.Len(t, result.Entries, 1)
	require.True(t, result.Entries[0].Amount.Equal(dec("900")))
	require.Len(t, result.Warnings, 1)
	require.Equal(t, TypeRevenueExpense, result.Warnings[0].Type)
}

func TestGenerateOneSidedDeclarationWarnsOnly(t *testing.T) {
	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoReceivable, AmountConverted: dec("5000")}),
		pkgWithInterco(20),
	}

	result := engine.Generate(1, packages, nil, nil)

	require.Empty(t, result.Entries)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, int64(10), result.Warnings[0].EntityID1)
	require.Equal(t, int64(20), result.Warnings[0].EntityID2)
}

func TestGenerateDividends(t *testing.T) {
	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoDividend, AmountConverted: dec("2500")}),
		pkgWithInterco(20),
	}

	result := engine.Generate(1, packages, nil, nil)

	require.Len(t, result.Entries, 1)
	entry := result.Entries[0]
	require.Equal(t, TypeDividends, entry.Type)
	require.NoError(t, entry.Balanced())
	require.Equal(t, "FIN-INC", entry.Lines[0].AccountCode)
	require.Equal(t, "RET-EARN", entry.Lines[1].AccountCode)
}

func TestGenerateDividendCounterpartyWithoutPackage(t *testing.T) {
	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 99, Type: pack.IntercoDividend, AmountConverted: dec("2500")}),
	}

	result := engine.Generate(1, packages, nil, nil)

	require.Empty(t, result.Entries)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, TypeDividends, result.Warnings[0].Type)
}

func TestGenerateEquityEliminationProducesGoodwillInput(t *testing.T) {
	engine := NewEngine()
	sub := pkgWithInterco(20)
	sub.TotalEquityConverted = dec("400000")
	packages := []pack.Package{pkgWithInterco(10), sub}
	participations := []perimeter.Participation{{
		ID:                 7,
		ParentEntityID:     10,
		SubsidiaryEntityID: 20,
		OwnershipPct:       dec("80"),
		AcquisitionCost:    dec("350000"),
	}}

	result := engine.Generate(1, packages, nil, participations)

	require.Len(t, result.Entries, 1)
	entry := result.Entries[0]
	require.Equal(t, TypeEquity, entry.Type)
	require.Equal(t, "AUTO:EQUITY:PART:7", entry.SourceKey)
	require.NoError(t, entry.Balanced())
	// 350,000 cost less 80% of 400,000 equity leaves 30,000 residual
	require.True(t, result.GoodwillInputs[7].Equal(dec("30000")))
}

func TestGenerateBadwillResidualStaysBalanced(t *testing.T) {
	engine := NewEngine()
	sub := pkgWithInterco(20)
	sub.TotalEquityConverted = dec("500000")
	packages := []pack.Package{sub}
	participations := []perimeter.Participation{{
		ID:                 9,
		ParentEntityID:     10,
		SubsidiaryEntityID: 20,
		OwnershipPct:       dec("100"),
		AcquisitionCost:    dec("450000"),
	}}

	result := engine.Generate(1, packages, nil, participations)

	require.Len(t, result.Entries, 1)
	require.NoError(t, result.Entries[0].Balanced())
	require.True(t, result.GoodwillInputs[9].Equal(dec("-50000")))
}

func TestGenerateIsDeterministic(t *testing.T) {
	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(30, pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoPayable, AmountConverted: dec("120")}),
		pkgWithInterco(10,
			pack.IntercompanyBalance{CounterpartyEntityID: 30, Type: pack.IntercoReceivable, AmountConverted: dec("120")},
			pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoRevenue, AmountConverted: dec("300")},
		),
		pkgWithInterco(20, pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoExpense, AmountConverted: dec("300")}),
	}

	first := engine.Generate(1, packages, nil, nil)
	second := engine.Generate(1, packages, nil, nil)

	require.Len(t, first.Entries, 2)
	require.Equal(t, len(first.Entries), len(second.Entries))
	for i := range first.Entries {
		require.Equal(t, first.Entries[i].SourceKey, second.Entries[i].SourceKey)
		require.True(t, first.Entries[i].Amount.Equal(second.Entries[i].Amount))
	}
	seen := map[string]bool{}
	for _, entry := range first.Entries {
		require.False(t, seen[entry.SourceKey], "duplicate source key %s", entry.SourceKey)
		seen[entry.SourceKey] = true
	}
}

func TestGenerateAllEntriesBalance(t *testing.T) {
	engine := NewEngine()
	sub := pkgWithInterco(20,
		pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoPayable, AmountConverted: dec("777.77")},
		pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoDividend, AmountConverted: dec("50")},
	)
	sub.TotalEquityConverted = dec("123456.78")
	packages := []pack.Package{
		pkgWithInterco(10, pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoReceivable, AmountConverted: dec("777.77")}),
		sub,
	}
	participations := []perimeter.Participation{{
		ID: 3, ParentEntityID: 10, SubsidiaryEntityID: 20,
		OwnershipPct: dec("65"), AcquisitionCost: dec("90000"),
	}}

	result := engine.Generate(1, packages, nil, participations)

	require.NotEmpty(t, result.Entries)
	for _, entry := range result.Entries {
		require.NoError(t, entry.Balanced(), "entry %s", entry.SourceKey)
	}
}

func TestGenerateWarnsForEntityOutsideGraph(t *testing.T) {
	parent := perimeter.Entity{
		ID: 10, Code: "HOLD", IsParent: true, Active: true,
		ControlType:       perimeter.ControlExclusive,
		TotalOwnershipPct: dec("100"),
	}
	graph, err := perimeter.BuildGraph([]perimeter.Entity{parent})
	require.NoError(t, err)

	engine := NewEngine()
	packages := []pack.Package{
		pkgWithInterco(10),
		pkgWithInterco(99, pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoPayable, AmountConverted: dec("10")}),
	}

	result := engine.Generate(1, packages, graph, nil)

	require.Empty(t, result.Entries)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, int64(99), result.Warnings[0].EntityID1)
}
