package elimination

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
)

// Engine scans validated, translated packages for intercompany positions and
// synthesizes balanced elimination entries. The engine is pure: it reads its
// inputs and returns entries plus warnings; persistence and idempotent
// replacement live in the service.
type Engine struct{}

// NewEngine constructs an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Generate produces the automatic eliminations for one run. Packages must be
// the full validated set; participations drive the equity eliminations.
func (e *Engine) Generate(consolidationID int64, packages []pack.Package, graph *perimeter.Graph, participations []perimeter.Participation) GenerationResult {
	result := GenerationResult{
		ConsolidationID: consolidationID,
		GoodwillInputs:  make(map[int64]decimal.Decimal),
	}

	byEntity := make(map[int64]pack.Package, len(packages))
	ids := make([]int64, 0, len(packages))
	for _, p := range packages {
		if graph != nil {
			if _, ok := graph.Entity(p.EntityID); !ok {
				result.Warnings = append(result.Warnings, Warning{
					Type:      TypeOther,
					EntityID1: p.EntityID,
					Message:   "package entity is not part of the perimeter graph",
				})
				continue
			}
		}
		byEntity[p.EntityID] = p
		ids = append(ids, p.EntityID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// reciprocal balance-sheet and flow positions, ordered pairs
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			e.matchPair(consolidationID, byEntity[a], byEntity[b], &result)
		}
	}

	// dividends flow to any counterparty, not only paired declarations
	for _, id := range ids {
		e.matchDividends(consolidationID, byEntity[id], byEntity, &result)
	}

	// parent investment against proportionate subsidiary equity
	for _, part := range participations {
		e.eliminateEquity(consolidationID, part, byEntity, &result)
	}

	sort.Slice(result.Entries, func(i, j int) bool {
		return result.Entries[i].SourceKey < result.Entries[j].SourceKey
	})
	return result
}

// matchPair eliminates receivable/payable and revenue/expense positions
// declared by both sides of an entity pair.
func (e *Engine) matchPair(consolidationID int64, a, b pack.Package, result *GenerationResult) {
	type pairing struct {
		entryType EntryType
		sideA     pack.IntercompanyType
		sideB     pack.IntercompanyType
		debit     string
		credit    string
	}
	pairings := []pairing{
		{TypeReceivablePayable, pack.IntercoReceivable, pack.IntercoPayable, "Intercompany payables", "Intercompany receivables"},
		{TypeRevenueExpense, pack.IntercoRevenue, pack.IntercoExpense, "Intercompany revenue", "Intercompany expenses"},
	}
	for _, pairSpec := range pairings {
		amountA, declaredA := declaredAmount(a, b.EntityID, pairSpec.sideA)
		amountB, declaredB := declaredAmount(b, a.EntityID, pairSpec.sideB)
		// also check the mirror orientation
		mirrorA, mDeclaredA := declaredAmount(b, a.EntityID, pairSpec.sideA)
		mirrorB, mDeclaredB := declaredAmount(a, b.EntityID, pairSpec.sideB)

		e.matchOrientation(consolidationID, pairSpec.entryType, pairSpec.debit, pairSpec.credit,
			a.EntityID, b.EntityID, amountA, declaredA, amountB, declaredB, result)
		e.matchOrientation(consolidationID, pairSpec.entryType, pairSpec.debit, pairSpec.credit,
			b.EntityID, a.EntityID, mirrorA, mDeclaredA, mirrorB, mDeclaredB, result)
	}
}

func (e *Engine) matchOrientation(consolidationID int64, entryType EntryType, debitLabel, creditLabel string,
	holder, counterparty int64, amount1 decimal.Decimal, declared1 bool, amount2 decimal.Decimal, declared2 bool,
	result *GenerationResult) {
	if !declared1 && !declared2 {
		return
	}
	if declared1 != declared2 {
		declared := amount1
		if declared2 {
			declared = amount2
		}
		result.Warnings = append(result.Warnings, Warning{
			Type:      entryType,
			EntityID1: holder,
			EntityID2: counterparty,
			Amount1:   amount1,
			Amount2:   amount2,
			Message:   fmt.Sprintf("one-sided intercompany declaration of %s, nothing eliminated", declared),
		})
		return
	}
	matched := decimal.Min(amount1.Abs(), amount2.Abs())
	if diff := amount1.Abs().Sub(amount2.Abs()); !diff.IsZero() {
		result.Warnings = append(result.Warnings, Warning{
			Type:      entryType,
			EntityID1: holder,
			EntityID2: counterparty,
			Amount1:   amount1,
			Amount2:   amount2,
			Message:   fmt.Sprintf("partial match, difference %s eliminated at %s", diff.Abs(), matched),
		})
	}
	if matched.IsZero() {
		return
	}
	result.Entries = append(result.Entries, Entry{
		ConsolidationID: consolidationID,
		Type:            entryType,
		EntityID1:       holder,
		EntityID2:       counterparty,
		Amount:          matched,
		Description:     fmt.Sprintf("%s elimination between entities %d and %d", entryType, holder, counterparty),
		IsAutomatic:     true,
		SourceKey:       fmt.Sprintf("AUTO:%s:%d:%d", entryType, holder, counterparty),
		Lines: []JournalLine{
			{AccountCode: "IC-DR", Label: debitLabel, Debit: matched},
			{AccountCode: "IC-CR", Label: creditLabel, Credit: matched},
		},
	})
}

// matchDividends eliminates dividend flows declared toward a counterparty
// that submitted a package.
func (e *Engine) matchDividends(consolidationID int64, p pack.Package, byEntity map[int64]pack.Package, result *GenerationResult) {
	for _, ic := range p.Intercompany {
		if ic.Type != pack.IntercoDividend || ic.AmountConverted.IsZero() {
			continue
		}
		if _, ok := byEntity[ic.CounterpartyEntityID]; !ok {
			result.Warnings = append(result.Warnings, Warning{
				Type:      TypeDividends,
				EntityID1: p.EntityID,
				EntityID2: ic.CounterpartyEntityID,
				Amount1:   ic.AmountConverted,
				Message:   "dividend declared toward an entity with no package in this run",
			})
			continue
		}
		amount := ic.AmountConverted
		result.Entries = append(result.Entries, Entry{
			ConsolidationID: consolidationID,
			Type:            TypeDividends,
			EntityID1:       p.EntityID,
			EntityID2:       ic.CounterpartyEntityID,
			Amount:          amount,
			Description:     fmt.Sprintf("dividend elimination from entity %d to entity %d", p.EntityID, ic.CounterpartyEntityID),
			IsAutomatic:     true,
			SourceKey:       fmt.Sprintf("AUTO:%s:%d:%d", TypeDividends, p.EntityID, ic.CounterpartyEntityID),
			Lines: []JournalLine{
				{AccountCode: "FIN-INC", Label: "Dividend income", Debit: amount},
				{AccountCode: "RET-EARN", Label: "Retained earnings", Credit: amount},
			},
		})
	}
}

// eliminateEquity offsets the parent's investment against the subsidiary's
// proportionate equity at consolidation date. The residual is the preliminary
// goodwill figure handed to the goodwill calculator.
func (e *Engine) eliminateEquity(consolidationID int64, part perimeter.Participation, byEntity map[int64]pack.Package, result *GenerationResult) {
	sub, ok := byEntity[part.SubsidiaryEntityID]
	if !ok {
		result.Warnings = append(result.Warnings, Warning{
			Type:      TypeEquity,
			EntityID1: part.ParentEntityID,
			EntityID2: part.SubsidiaryEntityID,
			Amount1:   part.AcquisitionCost,
			Message:   "participation subsidiary has no package in this run, equity not eliminated",
		})
		return
	}
	share := part.OwnershipPct.Div(decimal.NewFromInt(100))
	proportionateEquity := sub.TotalEquityConverted.Mul(share)
	residual := part.AcquisitionCost.Sub(proportionateEquity)
	result.GoodwillInputs[part.ID] = residual

	lines := []JournalLine{
		{AccountCode: "SUB-EQ", Label: "Subsidiary equity (group share)", Debit: proportionateEquity},
		{AccountCode: "INV-SUB", Label: "Investment in subsidiary", Credit: part.AcquisitionCost},
	}
	if residual.IsPositive() {
		lines = append(lines, JournalLine{AccountCode: "GW-PRE", Label: "Preliminary goodwill", Debit: residual})
	} else if residual.IsNegative() {
		lines = append(lines, JournalLine{AccountCode: "GW-PRE", Label: "Preliminary badwill", Credit: residual.Neg()})
	}
	result.Entries = append(result.Entries, Entry{
		ConsolidationID: consolidationID,
		Type:            TypeEquity,
		EntityID1:       part.ParentEntityID,
		EntityID2:       part.SubsidiaryEntityID,
		Amount:          part.AcquisitionCost,
		Description:     fmt.Sprintf("equity elimination for participation %d", part.ID),
		IsAutomatic:     true,
		SourceKey:       fmt.Sprintf("AUTO:%s:PART:%d", TypeEquity, part.ID),
		Lines:           lines,
	})
}

func declaredAmount(p pack.Package, counterparty int64, icType pack.IntercompanyType) (decimal.Decimal, bool) {
	var total decimal.Decimal
	found := false
	for _, ic := range p.Intercompany {
		if ic.CounterpartyEntityID == counterparty && ic.Type == icType {
			total = total.Add(ic.AmountConverted)
			found = true
		}
	}
	return total, found
}
