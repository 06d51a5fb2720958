package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

// PgxPool is the subset of pgxpool.Pool the repository uses, kept narrow so
// tests can substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

const (
	listUnmappedQuery = `
		SELECT id, institution_id, year, statement_type, row_number, account_name,
		       category, current_value, previous_value, is_mapped, created_at
		FROM line_items
		WHERE institution_id = $1 AND year = $2 AND statement_type = $3 AND is_mapped = FALSE
		ORDER BY row_number`

	countUnmappedQuery = `
		SELECT COUNT(*)
		FROM line_items
		WHERE institution_id = $1 AND year = $2 AND statement_type = $3 AND is_mapped = FALSE`

	getMappingQuery = `
		SELECT id, institution_id, original_account_name, standard_account_code,
		       standard_account_name, statement_type, confidence, rationale, source,
		       created_at, updated_at
		FROM account_mappings
		WHERE institution_id = $1 AND original_account_name = $2 AND statement_type = $3`

	listMappingsQuery = `
		SELECT id, institution_id, original_account_name, standard_account_code,
		       standard_account_name, statement_type, confidence, rationale, source,
		       created_at, updated_at
		FROM account_mappings
		WHERE institution_id = $1 AND statement_type = $2
		ORDER BY original_account_name`

	upsertMappingQuery = `
		INSERT INTO account_mappings (institution_id, original_account_name, standard_account_code,
		                              standard_account_name, statement_type, confidence, rationale, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (institution_id, original_account_name, statement_type)
		DO UPDATE SET standard_account_code = EXCLUDED.standard_account_code,
		              standard_account_name = EXCLUDED.standard_account_name,
		              confidence = EXCLUDED.confidence,
		              rationale = EXCLUDED.rationale,
		              source = EXCLUDED.source,
		              updated_at = NOW()`

	markMappedQuery = `UPDATE line_items SET is_mapped = TRUE WHERE id = $1`
)

type PostgresRepository struct {
	pool   PgxPool
	logger *slog.Logger
}

func NewPostgresRepository(pool PgxPool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

func (r *PostgresRepository) ListUnmappedLineItems(ctx context.Context, institutionID string, year int, st chart.StatementType) ([]*LineItem, error) {
	rows, err := r.pool.Query(ctx, listUnmappedQuery, institutionID, year, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmapped line items: %w", err)
	}
	defer rows.Close()
	return scanLineItems(rows)
}

func (r *PostgresRepository) CountUnmappedLineItems(ctx context.Context, institutionID string, year int, st chart.StatementType) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countUnmappedQuery, institutionID, year, st).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unmapped line items: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) GetMapping(ctx context.Context, institutionID, originalName string, st chart.StatementType) (*Mapping, error) {
	m := &Mapping{}
	err := r.pool.QueryRow(ctx, getMappingQuery, institutionID, originalName, st).Scan(
		&m.ID, &m.InstitutionID, &m.OriginalAccountName, &m.StandardAccountCode,
		&m.StandardAccountName, &m.StatementType, &m.Confidence, &m.Rationale, &m.Source,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListMappings(ctx context.Context, institutionID string, st chart.StatementType) ([]*Mapping, error) {
	rows, err := r.pool.Query(ctx, listMappingsQuery, institutionID, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		m := &Mapping{}
		if err := rows.Scan(
			&m.ID, &m.InstitutionID, &m.OriginalAccountName, &m.StandardAccountCode,
			&m.StandardAccountName, &m.StatementType, &m.Confidence, &m.Rationale, &m.Source,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ApplyResolved writes one resolve batch in a single transaction. Any failure
// rolls the whole batch back so a re-run starts from a clean state.
func (r *PostgresRepository) ApplyResolved(ctx context.Context, items []*ResolvedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	applied := 0
	for _, item := range items {
		m := item.Mapping
		if _, err := tx.Exec(ctx, upsertMappingQuery,
			m.InstitutionID, m.OriginalAccountName, m.StandardAccountCode,
			m.StandardAccountName, m.StatementType, m.Confidence, m.Rationale, m.Source,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert mapping for %q: %w", m.OriginalAccountName, err)
		}
		if _, err := tx.Exec(ctx, markMappedQuery, item.LineItemID); err != nil {
			return 0, fmt.Errorf("failed to mark line item %s mapped: %w", item.LineItemID, err)
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit resolve batch: %w", err)
	}
	return applied, nil
}

func (r *PostgresRepository) UpsertMapping(ctx context.Context, m *Mapping) error {
	_, err := r.pool.Exec(ctx, upsertMappingQuery,
		m.InstitutionID, m.OriginalAccountName, m.StandardAccountCode,
		m.StandardAccountName, m.StatementType, m.Confidence, m.Rationale, m.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

func scanLineItems(rows pgx.Rows) ([]*LineItem, error) {
	var items []*LineItem
	for rows.Next() {
		li := &LineItem{}
		if err := rows.Scan(
			&li.ID, &li.InstitutionID, &li.Year, &li.StatementType, &li.RowNumber,
			&li.AccountName, &li.Category, &li.CurrentValue, &li.PreviousValue,
			&li.IsMapped, &li.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}
