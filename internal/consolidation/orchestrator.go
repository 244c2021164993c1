package consolidation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/groupledger/groupledger/internal/elimination"
	"github.com/groupledger/groupledger/internal/goodwill"
	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/reconciliation"
	"github.com/groupledger/groupledger/internal/restatement"
	"github.com/groupledger/groupledger/internal/shared"
)

// translateLimit caps the number of concurrent package translations.
const translateLimit = 8

// PerimeterSource supplies the scope of a run.
type PerimeterSource interface {
	GetPerimeter(ctx context.Context, id int64) (perimeter.Perimeter, error)
	BuildGraph(ctx context.Context, perimeterID int64) (*perimeter.Graph, error)
	ListParticipations(ctx context.Context, perimeterID int64) ([]perimeter.Participation, error)
}

// PackageSource supplies and persists the run's packages.
type PackageSource interface {
	ListByConsolidation(ctx context.Context, consolidationID int64) ([]pack.Package, error)
	SaveConverted(ctx context.Context, p pack.Package) error
}

// RestatementSource lists the run's restatements.
type RestatementSource interface {
	List(ctx context.Context, consolidationID int64) ([]restatement.Restatement, error)
}

// EliminationGenerator regenerates the automatic elimination set.
type EliminationGenerator interface {
	Generate(ctx context.Context, consolidationID int64, packages []pack.Package, graph *perimeter.Graph, participations []perimeter.Participation) (elimination.GenerationResult, error)
}

// ReconciliationRunner rebuilds the reconciliation pair set.
type ReconciliationRunner interface {
	Run(ctx context.Context, consolidationID int64, packages []pack.Package) ([]reconciliation.Reconciliation, error)
}

// GoodwillRecalculator rebuilds the goodwill positions.
type GoodwillRecalculator interface {
	Recalculate(ctx context.Context, consolidationID int64, participations []perimeter.Participation, residuals map[int64]decimal.Decimal) ([]goodwill.Calculation, error)
}

// Orchestrator runs the recalculation pipeline: parallel translation behind a
// barrier, eliminations and restatements on the consistent snapshot,
// reconciliation and goodwill concurrently, then one atomic aggregate commit.
type Orchestrator struct {
	store           Store
	perimeters      PerimeterSource
	packages        PackageSource
	translator      *pack.Translator
	restatements    RestatementSource
	ledger          *restatement.Ledger
	eliminations    EliminationGenerator
	reconciliations ReconciliationRunner
	goodwill        GoodwillRecalculator
	logger          *slog.Logger
	now             func() time.Time
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(store Store, perimeters PerimeterSource, packages PackageSource,
	translator *pack.Translator, restatements RestatementSource,
	eliminations EliminationGenerator, reconciliations ReconciliationRunner,
	gw GoodwillRecalculator, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:           store,
		perimeters:      perimeters,
		packages:        packages,
		translator:      translator,
		restatements:    restatements,
		ledger:          restatement.NewLedger(),
		eliminations:    eliminations,
		reconciliations: reconciliations,
		goodwill:        gw,
		logger:          logger,
		now:             time.Now,
	}
}

// Recalculate replaces the computed block of a run. All results are staged in
// memory; the aggregate is committed once, guarded by the expected version.
// Any single failure, including one package's translation, fails the whole
// recalculation with nothing partially visible.
func (o *Orchestrator) Recalculate(ctx context.Context, consolidationID, expectedVersion int64) (Consolidation, error) {
	c, err := o.store.Get(ctx, consolidationID)
	if err != nil {
		return Consolidation{}, err
	}
	if !c.Status.Recalculable() {
		return Consolidation{}, fmt.Errorf("%w: %w: status %s", shared.ErrWorkflow, ErrNotRecalculable, c.Status)
	}

	perim, err := o.perimeters.GetPerimeter(ctx, c.PerimeterID)
	if err != nil {
		return Consolidation{}, err
	}
	graph, err := o.perimeters.BuildGraph(ctx, c.PerimeterID)
	if err != nil {
		return Consolidation{}, err
	}
	participations, err := o.perimeters.ListParticipations(ctx, c.PerimeterID)
	if err != nil {
		return Consolidation{}, err
	}
	packages, err := o.packages.ListByConsolidation(ctx, consolidationID)
	if err != nil {
		return Consolidation{}, err
	}
	if err := checkPackageSet(graph, packages); err != nil {
		return Consolidation{}, err
	}

	translated, err := o.translateAll(ctx, packages, perim.ConsolidationCurrency, c.PeriodEnd)
	if err != nil {
		return Consolidation{}, err
	}

	restatements, err := o.restatements.List(ctx, consolidationID)
	if err != nil {
		return Consolidation{}, err
	}
	adjusted := o.ledger.Apply(translated, restatements)

	// translation barrier passed; persist per-package results, each its own
	// transaction
	for _, p := range translated {
		if err := o.packages.SaveConverted(ctx, p); err != nil {
			return Consolidation{}, fmt.Errorf("consolidation: persist translation for package %d: %w", p.ID, err)
		}
	}

	elim, err := o.eliminations.Generate(ctx, consolidationID, translated, graph, participations)
	if err != nil {
		return Consolidation{}, err
	}

	var calcs []goodwill.Calculation
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		_, err := o.reconciliations.Run(groupCtx, consolidationID, translated)
		return err
	})
	group.Go(func() error {
		var err error
		calcs, err = o.goodwill.Recalculate(groupCtx, consolidationID, participations, elim.GoodwillInputs)
		return err
	})
	if err := group.Wait(); err != nil {
		return Consolidation{}, err
	}

	aggregate := computeAggregate(adjusted, elim.Entries, graph, goodwill.TotalGoodwill(calcs))
	at := o.now().UTC()
	committed, err := o.store.CommitAggregate(ctx, consolidationID, expectedVersion, aggregate, at)
	if err != nil {
		return Consolidation{}, err
	}
	if o.logger != nil {
		o.logger.Info("consolidation recalculated",
			slog.Int64("consolidation_id", consolidationID),
			slog.Int("packages", len(packages)),
			slog.Int("eliminations", len(elim.Entries)),
			slog.String("total_assets", aggregate.TotalAssets.String()))
	}
	return committed, nil
}

// translateAll converts every package concurrently and waits on the barrier.
func (o *Orchestrator) translateAll(ctx context.Context, packages []pack.Package, currency string, periodEnd time.Time) ([]pack.Package, error) {
	translated := make([]pack.Package, len(packages))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(translateLimit)
	for i, p := range packages {
		i, p := i, p
		group.Go(func() error {
			result, err := o.translator.Translate(groupCtx, p, currency, periodEnd)
			if err != nil {
				return fmt.Errorf("consolidation: translate package %d (entity %d): %w", p.ID, p.EntityID, err)
			}
			translated[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return translated, nil
}

// checkPackageSet rejects a run whose in-scope entities lack a validated
// package, naming the blockers.
func checkPackageSet(graph *perimeter.Graph, packages []pack.Package) error {
	byEntity := make(map[int64]pack.Package, len(packages))
	for _, p := range packages {
		byEntity[p.EntityID] = p
	}
	var missing, unvalidated []int64
	for _, e := range graph.InScope() {
		method, _ := perimeter.ResolveMethod(e)
		if method != perimeter.MethodFull && method != perimeter.MethodProportional {
			continue
		}
		p, ok := byEntity[e.ID]
		if !ok {
			missing = append(missing, e.ID)
			continue
		}
		if p.Status != pack.StatusValidated {
			unvalidated = append(unvalidated, p.ID)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	sort.Slice(unvalidated, func(i, j int) bool { return unvalidated[i] < unvalidated[j] })
	if len(missing) > 0 {
		return fmt.Errorf("consolidation: missing packages for entities %v", missing)
	}
	if len(unvalidated) > 0 {
		return fmt.Errorf("%w: packages %v not validated", shared.ErrWorkflow, unvalidated)
	}
	return nil
}

// computeAggregate folds the restated snapshot, the elimination entries, and
// the goodwill total into group figures.
func computeAggregate(packages []pack.Package, entries []elimination.Entry, graph *perimeter.Graph, totalGoodwill decimal.Decimal) Aggregate {
	var agg Aggregate
	for _, p := range packages {
		entity, ok := graph.Entity(p.EntityID)
		if !ok {
			continue
		}
		method, err := perimeter.ResolveMethod(entity)
		if err != nil || method == perimeter.MethodNotConsolidated || method == perimeter.MethodEquity {
			continue
		}
		share := decimal.NewFromInt(1)
		if method == perimeter.MethodProportional && entity.IntegrationPct.IsPositive() {
			share = entity.IntegrationPct.Div(decimal.NewFromInt(100))
		}
		agg.TotalAssets = agg.TotalAssets.Add(p.TotalAssetsConverted.Mul(share))
		agg.TotalLiabilities = agg.TotalLiabilities.Add(p.TotalLiabilitiesConverted.Mul(share))
		agg.TotalEquity = agg.TotalEquity.Add(p.TotalEquityConverted.Mul(share))
		agg.TotalRevenue = agg.TotalRevenue.Add(p.TotalRevenueConverted.Mul(share))
		agg.TotalExpenses = agg.TotalExpenses.Add(p.TotalExpensesConverted.Mul(share))
		agg.TranslationDifference = agg.TranslationDifference.Add(p.TranslationDifference.Mul(share))

		minority := perimeter.MinorityShare(entity)
		if minority.IsPositive() {
			agg.MinorityInterests = agg.MinorityInterests.Add(p.TotalEquityConverted.Mul(minority))
			agg.MinorityNetIncome = agg.MinorityNetIncome.Add(p.NetIncomeConverted.Mul(minority))
		}
	}

	for _, entry := range entries {
		agg.TotalEliminated = agg.TotalEliminated.Add(entry.Amount.Abs())
		switch entry.Type {
		case elimination.TypeReceivablePayable:
			agg.TotalAssets = agg.TotalAssets.Sub(entry.Amount)
			agg.TotalLiabilities = agg.TotalLiabilities.Sub(entry.Amount)
		case elimination.TypeRevenueExpense:
			agg.TotalRevenue = agg.TotalRevenue.Sub(entry.Amount)
			agg.TotalExpenses = agg.TotalExpenses.Sub(entry.Amount)
		case elimination.TypeDividends:
			agg.TotalRevenue = agg.TotalRevenue.Sub(entry.Amount)
		case elimination.TypeEquity:
			for _, line := range entry.Lines {
				switch line.AccountCode {
				case "SUB-EQ":
					agg.TotalEquity = agg.TotalEquity.Sub(line.Debit)
				case "INV-SUB":
					agg.TotalAssets = agg.TotalAssets.Sub(line.Credit)
				}
			}
		}
	}

	agg.TotalGoodwill = totalGoodwill
	agg.TotalAssets = agg.TotalAssets.Add(totalGoodwill)
	netIncome := agg.TotalRevenue.Sub(agg.TotalExpenses)
	agg.GroupNetIncome = netIncome.Sub(agg.MinorityNetIncome)
	return agg
}
