package perimeter

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

// Repository persists perimeters, entities, and participations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const perimeterColumns = `id, code, name, fiscal_year, start_date, end_date,
	consolidation_ccy, accounting_standard, status, version, created_at, updated_at`

func scanPerimeter(row pgx.Row) (Perimeter, error) {
	var p Perimeter
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.FiscalYear, &p.StartDate, &p.EndDate,
		&p.ConsolidationCurrency, &p.AccountingStandard, &p.Status, &p.Version,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Perimeter{}, fmt.Errorf("%w: %w", ErrPerimeterNotFound, shared.ErrNotFound)
	}
	return p, err
}

// InsertPerimeter creates a perimeter in DRAFT status at version 1.
func (r *Repository) InsertPerimeter(ctx context.Context, in CreatePerimeterInput) (Perimeter, error) {
	const query = `
		INSERT INTO perimeters (code, name, fiscal_year, start_date, end_date,
			consolidation_ccy, accounting_standard, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'DRAFT', 1)
		RETURNING ` + perimeterColumns
	return scanPerimeter(r.pool.QueryRow(ctx, query, in.Code, in.Name, in.FiscalYear,
		in.StartDate, in.EndDate, in.ConsolidationCurrency, in.AccountingStandard))
}

// GetPerimeter fetches a perimeter by id.
func (r *Repository) GetPerimeter(ctx context.Context, id int64) (Perimeter, error) {
	const query = `SELECT ` + perimeterColumns + ` FROM perimeters WHERE id = $1`
	return scanPerimeter(r.pool.QueryRow(ctx, query, id))
}

// ListPerimeters returns perimeters ordered by fiscal year descending.
func (r *Repository) ListPerimeters(ctx context.Context, limit, offset int) ([]Perimeter, error) {
	const query = `SELECT ` + perimeterColumns + `
		FROM perimeters ORDER BY fiscal_year DESC, code LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Perimeter
	for rows.Next() {
		p, err := scanPerimeter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPerimeters returns the total number of perimeters.
func (r *Repository) CountPerimeters(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM perimeters`).Scan(&total)
	return total, err
}

// UpdatePerimeterStatus advances the status with an optimistic version guard.
func (r *Repository) UpdatePerimeterStatus(ctx context.Context, id, expectedVersion int64, status Status) (Perimeter, error) {
	const query = `
		UPDATE perimeters
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + perimeterColumns
	p, err := scanPerimeter(r.pool.QueryRow(ctx, query, id, expectedVersion, status))
	if err != nil {
		return Perimeter{}, staleOrMissing(ctx, r.pool, "perimeters", id, err)
	}
	return p, nil
}

const entityColumns = `id, perimeter_id, code, name, currency, country,
	parent_entity_id, is_parent, direct_pct, indirect_pct, total_pct, integration_pct,
	control_type, method, acquisition_date, disposal_date, active, version,
	created_at, updated_at`

func scanEntity(row pgx.Row) (Entity, error) {
	var e Entity
	var direct, indirect, total, integration string
	var method *string
	err := row.Scan(&e.ID, &e.PerimeterID, &e.Code, &e.Name, &e.Currency, &e.Country,
		&e.ParentEntityID, &e.IsParent, &direct, &indirect, &total, &integration,
		&e.ControlType, &method, &e.AcquisitionDate, &e.DisposalDate, &e.Active,
		&e.Version, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, fmt.Errorf("%w: %w", ErrEntityNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Entity{}, err
	}
	if method != nil {
		e.Method = Method(*method)
	}
	for dst, src := range map[*decimal.Decimal]string{
		&e.DirectOwnershipPct:   direct,
		&e.IndirectOwnershipPct: indirect,
		&e.TotalOwnershipPct:    total,
		&e.IntegrationPct:       integration,
	} {
		d, err := decimal.NewFromString(src)
		if err != nil {
			return Entity{}, fmt.Errorf("perimeter: parse pct: %w", err)
		}
		*dst = d
	}
	return e, nil
}

// InsertEntity creates an entity row at version 1.
func (r *Repository) InsertEntity(ctx context.Context, in CreateEntityInput) (Entity, error) {
	const query = `
		INSERT INTO entities (perimeter_id, code, name, currency, country,
			parent_entity_id, is_parent, direct_pct, indirect_pct, total_pct,
			integration_pct, control_type, method, acquisition_date, active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, true, 1)
		RETURNING ` + entityColumns
	return scanEntity(r.pool.QueryRow(ctx, query,
		in.PerimeterID, in.Code, in.Name, in.Currency, in.Country,
		in.ParentEntityID, in.IsParent,
		in.DirectOwnershipPct.String(), in.IndirectOwnershipPct.String(),
		in.TotalOwnershipPct.String(), in.IntegrationPct.String(),
		in.ControlType, string(in.Method), in.AcquisitionDate))
}

// GetEntity fetches an entity by id.
func (r *Repository) GetEntity(ctx context.Context, id int64) (Entity, error) {
	const query = `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`
	return scanEntity(r.pool.QueryRow(ctx, query, id))
}

// ListEntities returns all entities of a perimeter.
func (r *Repository) ListEntities(ctx context.Context, perimeterID int64) ([]Entity, error) {
	const query = `SELECT ` + entityColumns + ` FROM entities WHERE perimeter_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, perimeterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEntityOwnership rewrites ownership figures with a version guard.
func (r *Repository) UpdateEntityOwnership(ctx context.Context, e Entity) (Entity, error) {
	const query = `
		UPDATE entities
		SET direct_pct = $3, indirect_pct = $4, total_pct = $5, integration_pct = $6,
			control_type = $7, method = NULLIF($8, ''), parent_entity_id = $9,
			acquisition_date = $10, disposal_date = $11,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + entityColumns
	updated, err := scanEntity(r.pool.QueryRow(ctx, query, e.ID, e.Version,
		e.DirectOwnershipPct.String(), e.IndirectOwnershipPct.String(),
		e.TotalOwnershipPct.String(), e.IntegrationPct.String(),
		e.ControlType, string(e.Method), e.ParentEntityID,
		e.AcquisitionDate, e.DisposalDate))
	if err != nil {
		return Entity{}, staleOrMissing(ctx, r.pool, "entities", e.ID, err)
	}
	return updated, nil
}

// DeactivateEntity marks an entity inactive, recording the disposal date.
func (r *Repository) DeactivateEntity(ctx context.Context, id, expectedVersion int64, disposalDate time.Time) (Entity, error) {
	const query = `
		UPDATE entities
		SET active = false, disposal_date = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + entityColumns
	e, err := scanEntity(r.pool.QueryRow(ctx, query, id, expectedVersion, disposalDate))
	if err != nil {
		return Entity{}, staleOrMissing(ctx, r.pool, "entities", id, err)
	}
	return e, nil
}

// EntityReferencedByRun reports whether any consolidation package references
// the entity.
func (r *Repository) EntityReferencedByRun(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM consolidation_packages WHERE entity_id = $1)`
	var referenced bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&referenced)
	return referenced, err
}

// DeleteEntity removes an unreferenced entity, version-guarded.
func (r *Repository) DeleteEntity(ctx context.Context, id, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM entities WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, r.pool, "entities", id, pgx.ErrNoRows)
	}
	return nil
}

const participationColumns = `id, perimeter_id, parent_entity_id, subsidiary_entity_id,
	acquisition_date, acquisition_cost, fair_value_at_acquisition, ownership_pct,
	goodwill, accumulated_impairment, version, created_at, updated_at`

func scanParticipation(row pgx.Row) (Participation, error) {
	var p Participation
	var cost, fair, pct, goodwill, impairment string
	err := row.Scan(&p.ID, &p.PerimeterID, &p.ParentEntityID, &p.SubsidiaryEntityID,
		&p.AcquisitionDate, &cost, &fair, &pct, &goodwill, &impairment,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Participation{}, fmt.Errorf("%w: %w", ErrParticipationNotFound, shared.ErrNotFound)
	}
	if err != nil {
		return Participation{}, err
	}
	for dst, src := range map[*decimal.Decimal]string{
		&p.AcquisitionCost:        cost,
		&p.FairValueAtAcquisition: fair,
		&p.OwnershipPct:           pct,
		&p.Goodwill:               goodwill,
		&p.AccumulatedImpairment:  impairment,
	} {
		d, err := decimal.NewFromString(src)
		if err != nil {
			return Participation{}, fmt.Errorf("perimeter: parse amount: %w", err)
		}
		*dst = d
	}
	return p, nil
}

// InsertParticipation creates a participation at version 1.
func (r *Repository) InsertParticipation(ctx context.Context, in CreateParticipationInput) (Participation, error) {
	const query = `
		INSERT INTO participations (perimeter_id, parent_entity_id, subsidiary_entity_id,
			acquisition_date, acquisition_cost, fair_value_at_acquisition, ownership_pct,
			goodwill, accumulated_impairment, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 1)
		RETURNING ` + participationColumns
	return scanParticipation(r.pool.QueryRow(ctx, query,
		in.PerimeterID, in.ParentEntityID, in.SubsidiaryEntityID, in.AcquisitionDate,
		in.AcquisitionCost.String(), in.FairValueAtAcquisition.String(), in.OwnershipPct.String()))
}

// GetParticipation fetches a participation with its ownership-change history.
func (r *Repository) GetParticipation(ctx context.Context, id int64) (Participation, error) {
	const query = `SELECT ` + participationColumns + ` FROM participations WHERE id = $1`
	p, err := scanParticipation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return Participation{}, err
	}
	p.Changes, err = r.listChanges(ctx, id)
	return p, err
}

// ListParticipations returns the participations of a perimeter with history.
func (r *Repository) ListParticipations(ctx context.Context, perimeterID int64) ([]Participation, error) {
	const query = `SELECT ` + participationColumns + ` FROM participations WHERE perimeter_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, perimeterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Changes, err = r.listChanges(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AppendOwnershipChange records a change event and moves the participation's
// current percentage, all in one version-guarded transaction.
func (r *Repository) AppendOwnershipChange(ctx context.Context, participationID, expectedVersion int64, change OwnershipChange) (Participation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Participation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const update = `
		UPDATE participations
		SET ownership_pct = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + participationColumns
	p, err := scanParticipation(tx.QueryRow(ctx, update, participationID, expectedVersion, change.NewPct.String()))
	if err != nil {
		return Participation{}, staleOrMissing(ctx, r.pool, "participations", participationID, err)
	}

	const insert = `
		INSERT INTO ownership_changes (participation_id, effective_date, previous_pct, new_pct, reason)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insert, participationID, change.EffectiveDate,
		change.PreviousPct.String(), change.NewPct.String(), change.Reason); err != nil {
		return Participation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Participation{}, err
	}
	p.Changes, err = r.listChanges(ctx, participationID)
	return p, err
}

func (r *Repository) listChanges(ctx context.Context, participationID int64) ([]OwnershipChange, error) {
	const query = `
		SELECT id, participation_id, effective_date, previous_pct, new_pct, reason, created_at
		FROM ownership_changes WHERE participation_id = $1 ORDER BY effective_date, id`
	rows, err := r.pool.Query(ctx, query, participationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OwnershipChange
	for rows.Next() {
		var c OwnershipChange
		var prev, next string
		if err := rows.Scan(&c.ID, &c.ParticipationID, &c.EffectiveDate, &prev, &next, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.PreviousPct, err = decimal.NewFromString(prev); err != nil {
			return nil, err
		}
		if c.NewPct, err = decimal.NewFromString(next); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// staleOrMissing distinguishes a version conflict from a missing row after a
// guarded UPDATE matched nothing.
func staleOrMissing(ctx context.Context, pool *pgxpool.Pool, table string, id int64, cause error) error {
	if !errors.Is(cause, pgx.ErrNoRows) && !errors.Is(cause, shared.ErrNotFound) {
		return cause
	}
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return cause
	}
	if exists {
		return fmt.Errorf("%w: %s id %d", shared.ErrStaleVersion, table, id)
	}
	return fmt.Errorf("%w: %s id %d", shared.ErrNotFound, table, id)
}
