package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists consolidation runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const consolidationColumns = `id, perimeter_id, name, currency, period_end, status,
	total_assets, total_liabilities, total_equity, total_revenue, total_expenses,
	group_net_income, minority_net_income, minority_interests, translation_difference,
	total_goodwill, total_eliminated, unreconciled_acknowledged,
	eliminations_generated_at, recalculated_at, submitted_at, validated_at, published_at,
	version, created_at, updated_at`

func scanConsolidation(row pgx.Row) (Consolidation, error) {
	var c Consolidation
	amounts := make([]string, 11)
	err := row.Scan(&c.ID, &c.PerimeterID, &c.Name, &c.Currency, &c.PeriodEnd, &c.Status,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &amounts[6], &amounts[7], &amounts[8],
		&amounts[9], &amounts[10], &c.UnreconciledAcknowledged,
		&c.EliminationsGeneratedAt, &c.RecalculatedAt, &c.SubmittedAt, &c.ValidatedAt, &c.PublishedAt,
		&c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Consolidation{}, fmt.Errorf("%w: %w", ErrConsolidationNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Consolidation{}, err
	}
	targets := []*decimal.Decimal{
		&c.Aggregate.TotalAssets, &c.Aggregate.TotalLiabilities, &c.Aggregate.TotalEquity,
		&c.Aggregate.TotalRevenue, &c.Aggregate.TotalExpenses,
		&c.Aggregate.GroupNetIncome, &c.Aggregate.MinorityNetIncome, &c.Aggregate.MinorityInterests,
		&c.Aggregate.TranslationDifference, &c.Aggregate.TotalGoodwill, &c.Aggregate.TotalEliminated,
	}
	for i, raw := range amounts {
		if *targets[i], err = decimal.NewFromString(raw); err != nil {
			return Consolidation{}, fmt.Errorf("consolidation: parse amount: %w", err)
		}
	}
	return c, nil
}

// Insert opens a DRAFT run.
func (r *Repository) Insert(ctx context.Context, in CreateInput, currency string) (Consolidation, error) {
	const query = `
		INSERT INTO consolidations (perimeter_id, name, currency, period_end, status,
			total_assets, total_liabilities, total_equity, total_revenue, total_expenses,
			group_net_income, minority_net_income, minority_interests, translation_difference,
			total_goodwill, total_eliminated, unreconciled_acknowledged, version)
		VALUES ($1, $2, $3, $4, 'DRAFT', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, false, 1)
		RETURNING ` + consolidationColumns
	return scanConsolidation(r.pool.QueryRow(ctx, query, in.PerimeterID, in.Name, currency, in.PeriodEnd))
}

// Get returns one run.
func (r *Repository) Get(ctx context.Context, id int64) (Consolidation, error) {
	const query = `SELECT ` + consolidationColumns + ` FROM consolidations WHERE id = $1`
	return scanConsolidation(r.pool.QueryRow(ctx, query, id))
}

// ListByPerimeter returns the runs of a perimeter, newest first.
func (r *Repository) ListByPerimeter(ctx context.Context, perimeterID int64) ([]Consolidation, error) {
	const query = `SELECT ` + consolidationColumns + `
		FROM consolidations WHERE perimeter_id = $1 ORDER BY period_end DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, perimeterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Consolidation
	for rows.Next() {
		c, err := scanConsolidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus moves the lifecycle state, version-guarded, stamping the
// matching timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status, at time.Time) (Consolidation, error) {
	const query = `
		UPDATE consolidations
		SET status = $3,
			submitted_at = CASE WHEN $3 = 'SUBMITTED' THEN $4 ELSE submitted_at END,
			validated_at = CASE WHEN $3 = 'VALIDATED' THEN $4 ELSE validated_at END,
			published_at = CASE WHEN $3 = 'PUBLISHED' THEN $4 ELSE published_at END,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + consolidationColumns
	c, err := scanConsolidation(r.pool.QueryRow(ctx, query, id, expectedVersion, status, at))
	if err != nil {
		return Consolidation{}, r.staleOrMissing(ctx, id, err)
	}
	return c, nil
}

// CommitAggregate replaces the computed block in one write, version-guarded.
func (r *Repository) CommitAggregate(ctx context.Context, id, expectedVersion int64, agg Aggregate, at time.Time) (Consolidation, error) {
	const query = `
		UPDATE consolidations
		SET total_assets = $3, total_liabilities = $4, total_equity = $5,
			total_revenue = $6, total_expenses = $7,
			group_net_income = $8, minority_net_income = $9, minority_interests = $10,
			translation_difference = $11, total_goodwill = $12, total_eliminated = $13,
			eliminations_generated_at = $14, recalculated_at = $14,
			status = CASE WHEN status = 'DRAFT' THEN 'IN_PROGRESS' ELSE status END,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + consolidationColumns
	c, err := scanConsolidation(r.pool.QueryRow(ctx, query, id, expectedVersion,
		agg.TotalAssets.String(), agg.TotalLiabilities.String(), agg.TotalEquity.String(),
		agg.TotalRevenue.String(), agg.TotalExpenses.String(),
		agg.GroupNetIncome.String(), agg.MinorityNetIncome.String(), agg.MinorityInterests.String(),
		agg.TranslationDifference.String(), agg.TotalGoodwill.String(), agg.TotalEliminated.String(),
		at))
	if err != nil {
		return Consolidation{}, r.staleOrMissing(ctx, id, err)
	}
	return c, nil
}

// SetAcknowledged records the outside-tolerance sign-off, version-guarded.
func (r *Repository) SetAcknowledged(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	const query = `
		UPDATE consolidations
		SET unreconciled_acknowledged = true, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + consolidationColumns
	c, err := scanConsolidation(r.pool.QueryRow(ctx, query, id, expectedVersion))
	if err != nil {
		return Consolidation{}, r.staleOrMissing(ctx, id, err)
	}
	return c, nil
}

func (r *Repository) staleOrMissing(ctx context.Context, id int64, cause error) error {
	if !errors.Is(cause, shared.ErrNotFound) {
		return cause
	}
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consolidations WHERE id = $1)`, id).Scan(&exists); err == nil && exists {
		return fmt.Errorf("%w: consolidation %d", shared.ErrStaleVersion, id)
	}
	return cause
}
