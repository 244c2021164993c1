package restatement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// Repository persists restatements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const restatementColumns = `id, consolidation_id, entity_id, restatement_type, description, status,
	assets_delta, liabilities_delta, equity_delta, income_delta, expense_delta, tax_delta,
	is_recurring, source_restatement_id, version, created_at, updated_at`

func scanRestatement(row pgx.Row) (Restatement, error) {
	var r Restatement
	deltas := make([]string, 6)
	err := row.Scan(&r.ID, &r.ConsolidationID, &r.EntityID, &r.Type, &r.Description, &r.Status,
		&deltas[0], &deltas[1], &deltas[2], &deltas[3], &deltas[4], &deltas[5],
		&r.IsRecurring, &r.SourceRestatementID, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Restatement{}, fmt.Errorf("%w: %w", ErrRestatementNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Restatement{}, err
	}
	targets := []*decimal.Decimal{&r.AssetsDelta, &r.LiabilitiesDelta, &r.EquityDelta,
		&r.IncomeDelta, &r.ExpenseDelta, &r.TaxDelta}
	for i, raw := range deltas {
		if *targets[i], err = decimal.NewFromString(raw); err != nil {
			return Restatement{}, fmt.Errorf("restatement: parse delta: %w", err)
		}
	}
	return r, nil
}

// Insert stores a restatement with its lines.
func (repo *Repository) Insert(ctx context.Context, r Restatement) (Restatement, error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Restatement{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO restatements (consolidation_id, entity_id, restatement_type, description, status,
			assets_delta, liabilities_delta, equity_delta, income_delta, expense_delta, tax_delta,
			is_recurring, source_restatement_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		RETURNING ` + restatementColumns
	inserted, err := scanRestatement(tx.QueryRow(ctx, query,
		r.ConsolidationID, r.EntityID, r.Type, r.Description, r.Status,
		r.AssetsDelta.String(), r.LiabilitiesDelta.String(), r.EquityDelta.String(),
		r.IncomeDelta.String(), r.ExpenseDelta.String(), r.TaxDelta.String(),
		r.IsRecurring, r.SourceRestatementID))
	if err != nil {
		return Restatement{}, err
	}
	if err := insertLines(ctx, tx, inserted.ID, r.Lines); err != nil {
		return Restatement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Restatement{}, err
	}
	inserted.Lines = r.Lines
	return inserted, nil
}

func insertLines(ctx context.Context, tx pgx.Tx, restatementID int64, lines []JournalLine) error {
	for _, line := range lines {
		const query = `
			INSERT INTO restatement_lines (restatement_id, account_code, label, debit, credit)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, query, restatementID, line.AccountCode, line.Label,
			line.Debit.String(), line.Credit.String()); err != nil {
			return err
		}
	}
	return nil
}

// Get returns one restatement with its lines.
func (repo *Repository) Get(ctx context.Context, id int64) (Restatement, error) {
	const query = `SELECT ` + restatementColumns + ` FROM restatements WHERE id = $1`
	r, err := scanRestatement(repo.pool.QueryRow(ctx, query, id))
	if err != nil {
		return Restatement{}, err
	}
	r.Lines, err = repo.listLines(ctx, id)
	return r, err
}

// ListByConsolidation returns all restatements of a run with their lines.
func (repo *Repository) ListByConsolidation(ctx context.Context, consolidationID int64) ([]Restatement, error) {
	const query = `SELECT ` + restatementColumns + `
		FROM restatements WHERE consolidation_id = $1 ORDER BY entity_id, id`
	return repo.list(ctx, query, consolidationID)
}

// ListRecurringValidated returns the recurring validated restatements of a run.
func (repo *Repository) ListRecurringValidated(ctx context.Context, consolidationID int64) ([]Restatement, error) {
	const query = `SELECT ` + restatementColumns + `
		FROM restatements
		WHERE consolidation_id = $1 AND is_recurring AND status = 'VALIDATED'
		ORDER BY entity_id, id`
	return repo.list(ctx, query, consolidationID)
}

func (repo *Repository) list(ctx context.Context, query string, consolidationID int64) ([]Restatement, error) {
	rows, err := repo.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Restatement
	for rows.Next() {
		r, err := scanRestatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = repo.listLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update replaces deltas and lines, version-guarded.
func (repo *Repository) Update(ctx context.Context, r Restatement, expectedVersion int64) (Restatement, error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Restatement{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		UPDATE restatements
		SET restatement_type = $3, description = $4,
			assets_delta = $5, liabilities_delta = $6, equity_delta = $7,
			income_delta = $8, expense_delta = $9, tax_delta = $10,
			is_recurring = $11, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + restatementColumns
	updated, err := scanRestatement(tx.QueryRow(ctx, query, r.ID, expectedVersion,
		r.Type, r.Description,
		r.AssetsDelta.String(), r.LiabilitiesDelta.String(), r.EquityDelta.String(),
		r.IncomeDelta.String(), r.ExpenseDelta.String(), r.TaxDelta.String(),
		r.IsRecurring))
	if err != nil {
		return Restatement{}, repo.staleOrMissing(ctx, r.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM restatement_lines WHERE restatement_id = $1`, r.ID); err != nil {
		return Restatement{}, err
	}
	if err := insertLines(ctx, tx, r.ID, r.Lines); err != nil {
		return Restatement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Restatement{}, err
	}
	updated.Lines = r.Lines
	return updated, nil
}

// UpdateStatus moves the workflow state, version-guarded.
func (repo *Repository) UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status) (Restatement, error) {
	const query = `
		UPDATE restatements
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + restatementColumns
	r, err := scanRestatement(repo.pool.QueryRow(ctx, query, id, expectedVersion, status))
	if err != nil {
		return Restatement{}, repo.staleOrMissing(ctx, id, err)
	}
	r.Lines, err = repo.listLines(ctx, id)
	return r, err
}

func (repo *Repository) staleOrMissing(ctx context.Context, id int64, cause error) error {
	if !errors.Is(cause, shared.ErrNotFound) {
		return cause
	}
	var exists bool
	if err := repo.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM restatements WHERE id = $1)`, id).Scan(&exists); err == nil && exists {
		return fmt.Errorf("%w: restatement %d", shared.ErrStaleVersion, id)
	}
	return cause
}

func (repo *Repository) listLines(ctx context.Context, restatementID int64) ([]JournalLine, error) {
	const query = `
		SELECT account_code, label, debit, credit
		FROM restatement_lines WHERE restatement_id = $1 ORDER BY id`
	rows, err := repo.pool.Query(ctx, query, restatementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalLine
	for rows.Next() {
		var line JournalLine
		var debit, credit string
		if err := rows.Scan(&line.AccountCode, &line.Label, &debit, &credit); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
