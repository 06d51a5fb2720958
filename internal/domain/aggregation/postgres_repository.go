package aggregation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

const (
	sumMappedValuesQuery = `
		SELECT m.standard_account_code,
		       MAX(m.standard_account_name) AS standard_account_name,
		       COALESCE(SUM(li.current_value), 0)  AS current_value,
		       COALESCE(SUM(li.previous_value), 0) AS previous_value
		FROM line_items li
		JOIN account_mappings m
		  ON m.institution_id = li.institution_id
		 AND m.original_account_name = li.account_name
		 AND m.statement_type = li.statement_type
		WHERE li.institution_id = $1 AND li.year = $2 AND li.statement_type = $3
		  AND li.is_mapped = TRUE
		GROUP BY m.standard_account_code
		ORDER BY m.standard_account_code`

	upsertBalanceQuery = `
		INSERT INTO standard_account_balances (institution_id, year, statement_type, statement_subtype,
		                                       standard_account_code, standard_account_name,
		                                       current_value, previous_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (institution_id, year, statement_type, standard_account_code)
		DO UPDATE SET statement_subtype = EXCLUDED.statement_subtype,
		              standard_account_name = EXCLUDED.standard_account_name,
		              current_value = EXCLUDED.current_value,
		              previous_value = EXCLUDED.previous_value,
		              updated_at = NOW()`

	getBalanceQuery = `
		SELECT id, institution_id, year, statement_type, statement_subtype,
		       standard_account_code, standard_account_name, current_value, previous_value,
		       created_at, updated_at
		FROM standard_account_balances
		WHERE institution_id = $1 AND year = $2 AND statement_type = $3 AND standard_account_code = $4`

	listBalancesQuery = `
		SELECT id, institution_id, year, statement_type, statement_subtype,
		       standard_account_code, standard_account_name, current_value, previous_value,
		       created_at, updated_at
		FROM standard_account_balances
		WHERE institution_id = $1 AND year = $2 AND statement_type = $3
		ORDER BY standard_account_code`
)

type PostgresRepository struct {
	pool PgxPool
}

func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SumMappedValues folds every mapped line item into a per-code total. Distinct
// original names mapped to the same standard account sum together here.
func (r *PostgresRepository) SumMappedValues(ctx context.Context, institutionID string, year int, st chart.StatementType) ([]*AccountTotal, error) {
	rows, err := r.pool.Query(ctx, sumMappedValuesQuery, institutionID, year, st)
	if err != nil {
		return nil, fmt.Errorf("failed to sum mapped values: %w", err)
	}
	defer rows.Close()

	var totals []*AccountTotal
	for rows.Next() {
		t := &AccountTotal{}
		if err := rows.Scan(&t.Code, &t.Name, &t.CurrentValue, &t.PreviousValue); err != nil {
			return nil, fmt.Errorf("failed to scan account total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *PostgresRepository) UpsertBalance(ctx context.Context, b *Balance) error {
	_, err := r.pool.Exec(ctx, upsertBalanceQuery,
		b.InstitutionID, b.Year, b.StatementType, b.StatementSubtype,
		b.StandardAccountCode, b.StandardAccountName, b.CurrentValue, b.PreviousValue,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance for %s: %w", b.StandardAccountCode, err)
	}
	return nil
}

func (r *PostgresRepository) GetBalance(ctx context.Context, institutionID string, year int, st chart.StatementType, code string) (*Balance, error) {
	b := &Balance{}
	err := r.pool.QueryRow(ctx, getBalanceQuery, institutionID, year, st, code).Scan(
		&b.ID, &b.InstitutionID, &b.Year, &b.StatementType, &b.StatementSubtype,
		&b.StandardAccountCode, &b.StandardAccountName, &b.CurrentValue, &b.PreviousValue,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) ListBalances(ctx context.Context, institutionID string, year int, st chart.StatementType) ([]*Balance, error) {
	rows, err := r.pool.Query(ctx, listBalancesQuery, institutionID, year, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var balances []*Balance
	for rows.Next() {
		b := &Balance{}
		if err := rows.Scan(
			&b.ID, &b.InstitutionID, &b.Year, &b.StatementType, &b.StatementSubtype,
			&b.StandardAccountCode, &b.StandardAccountName, &b.CurrentValue, &b.PreviousValue,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
