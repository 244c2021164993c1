package goodwill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	Replace(ctx context.Context, consolidationID int64, calcs []Calculation) ([]Calculation, error)
	Get(ctx context.Context, id int64) (Calculation, error)
	List(ctx context.Context, consolidationID int64) ([]Calculation, error)
	SaveImpairment(ctx context.Context, calc Calculation, expectedVersion int64, test ImpairmentTest) (Calculation, error)
	ListImpairments(ctx context.Context, calculationID int64) ([]ImpairmentTest, error)
}

// Service computes and persists goodwill positions.
type Service struct {
	store      Store
	calculator *Calculator
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, calculator: NewCalculator(), logger: logger, now: time.Now}
}

// Recalculate rebuilds the goodwill positions of a run from the current
// participation records. Prior positions for the run are replaced. The
// recorded fair value at acquisition is the authoritative net-asset base;
// the equity-elimination residuals only stand in for participations where no
// fair value was ever recorded.
func (s *Service) Recalculate(ctx context.Context, consolidationID int64, participations []perimeter.Participation, residuals map[int64]decimal.Decimal) ([]Calculation, error) {
	calcs := make([]Calculation, 0, len(participations))
	for _, part := range participations {
		if residual, ok := residuals[part.ID]; ok && part.FairValueAtAcquisition.IsZero() {
			calcs = append(calcs, s.calculator.CalculateFromResidual(consolidationID, part, residual))
			continue
		}
		calcs = append(calcs, s.calculator.Calculate(consolidationID, InputFromParticipation(part)))
	}
	stored, err := s.store.Replace(ctx, consolidationID, calcs)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("goodwill recalculated",
			slog.Int64("consolidation_id", consolidationID),
			slog.Int("calculations", len(stored)))
	}
	return stored, nil
}

// RecordImpairment books an impairment test against a calculation. The test
// is stored as an event; a clamp to the remaining carrying value is flagged
// on the event and logged as a warning.
func (s *Service) RecordImpairment(ctx context.Context, id, expectedVersion int64, amount decimal.Decimal, testDate time.Time, conclusion string) (Calculation, ImpairmentTest, error) {
	calc, err := s.store.Get(ctx, id)
	if err != nil {
		return Calculation{}, ImpairmentTest{}, err
	}
	requested := amount
	updated, clamped, err := s.calculator.ApplyImpairment(calc, amount)
	if err != nil {
		return Calculation{}, ImpairmentTest{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	booked := updated.CurrentPeriodImpairment.Sub(calc.CurrentPeriodImpairment)
	test := ImpairmentTest{
		CalculationID: id,
		TestDate:      testDate,
		Amount:        booked,
		Conclusion:    conclusion,
		Clamped:       clamped,
	}
	persisted, err := s.store.SaveImpairment(ctx, updated, expectedVersion, test)
	if err != nil {
		return Calculation{}, ImpairmentTest{}, err
	}
	if clamped && s.logger != nil {
		s.logger.Warn("impairment clamped to remaining carrying value",
			slog.Int64("calculation_id", id),
			slog.String("requested", requested.String()),
			slog.String("booked", booked.String()))
	}
	return persisted, test, nil
}

// Get returns one calculation.
func (s *Service) Get(ctx context.Context, id int64) (Calculation, error) {
	return s.store.Get(ctx, id)
}

// List returns the calculations of a run.
func (s *Service) List(ctx context.Context, consolidationID int64) ([]Calculation, error) {
	return s.store.List(ctx, consolidationID)
}

// ListImpairments returns the recorded tests of a calculation.
func (s *Service) ListImpairments(ctx context.Context, calculationID int64) ([]ImpairmentTest, error) {
	return s.store.ListImpairments(ctx, calculationID)
}

// TotalGoodwill sums the carrying values of a calculation set.
func TotalGoodwill(calcs []Calculation) decimal.Decimal {
	var total decimal.Decimal
	for _, calc := range calcs {
		total = total.Add(calc.CarryingValue)
	}
	return total
}
