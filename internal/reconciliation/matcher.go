package reconciliation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/pack"
)

// pctEpsilon floors the percentage denominator so a zero-against-zero pair
// never divides by zero.
var pctEpsilon = decimal.New(1, -6)

// Matcher pairs reciprocal intercompany declarations and classifies their
// differences against tolerance.
type Matcher struct {
	tolerances map[TransactionType]Tolerance
}

// NewMatcher constructs a Matcher. Missing tolerance entries default to
// zero, meaning any difference lands outside tolerance.
func NewMatcher(tolerances map[TransactionType]Tolerance) *Matcher {
	if tolerances == nil {
		tolerances = map[TransactionType]Tolerance{}
	}
	return &Matcher{tolerances: tolerances}
}

// Match builds the comparison set for one run. Only pairs declared by both
// sides are produced; one-sided declarations are the elimination engine's
// concern.
func (m *Matcher) Match(consolidationID int64, packages []pack.Package) []Reconciliation {
	byEntity := make(map[int64]pack.Package, len(packages))
	ids := make([]int64, 0, len(packages))
	for _, p := range packages {
		byEntity[p.EntityID] = p
		ids = append(ids, p.EntityID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var pairs []Reconciliation
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			pairs = append(pairs, m.matchEntityPair(consolidationID, byEntity[a], byEntity[b])...)
		}
	}
	return pairs
}

func (m *Matcher) matchEntityPair(consolidationID int64, a, b pack.Package) []Reconciliation {
	type pairing struct {
		txnType TransactionType
		sideA   pack.IntercompanyType
		sideB   pack.IntercompanyType
	}
	pairings := []pairing{
		{TxnReceivablePayable, pack.IntercoReceivable, pack.IntercoPayable},
		{TxnRevenueExpense, pack.IntercoRevenue, pack.IntercoExpense},
		{TxnDividend, pack.IntercoDividend, pack.IntercoDividend},
	}
	var out []Reconciliation
	for _, p := range pairings {
		if pair, ok := m.compare(consolidationID, p.txnType, a, b, p.sideA, p.sideB); ok {
			out = append(out, pair)
		}
		if p.sideA == p.sideB {
			continue
		}
		if pair, ok := m.compare(consolidationID, p.txnType, b, a, p.sideA, p.sideB); ok {
			out = append(out, pair)
		}
	}
	return out
}

func (m *Matcher) compare(consolidationID int64, txnType TransactionType, holder, counterparty pack.Package,
	sideHolder, sideCounterparty pack.IntercompanyType) (Reconciliation, bool) {
	amount1, declared1 := declaredAmount(holder, counterparty.EntityID, sideHolder)
	amount2, declared2 := declaredAmount(counterparty, holder.EntityID, sideCounterparty)
	if !declared1 || !declared2 {
		return Reconciliation{}, false
	}
	pair := Reconciliation{
		ConsolidationID: consolidationID,
		EntityID1:       holder.EntityID,
		EntityID2:       counterparty.EntityID,
		Type:            txnType,
		Amount1:         amount1,
		Amount2:         amount2,
	}
	m.classify(&pair)
	return pair, true
}

// classify fills the difference fields and the tolerance verdict.
func (m *Matcher) classify(pair *Reconciliation) {
	tolerance := m.tolerances[pair.Type]
	pair.ToleranceAmount = tolerance.Amount
	pair.TolerancePct = tolerance.Pct

	pair.Difference = pair.Amount1.Sub(pair.Amount2)
	denominator := decimal.Max(pair.Amount1.Abs(), pair.Amount2.Abs(), pctEpsilon)
	pair.DifferencePct = pair.Difference.Abs().Div(denominator).Mul(decimal.NewFromInt(100))

	absDiff := pair.Difference.Abs()
	withinAmount := absDiff.LessThanOrEqual(tolerance.Amount)
	withinPct := tolerance.Pct.IsPositive() && pair.DifferencePct.LessThanOrEqual(tolerance.Pct)
	pair.IsWithinTolerance = withinAmount || withinPct
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
