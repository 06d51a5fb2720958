package upload

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

type Repository interface {
	ReplaceLineItems(ctx context.Context, institutionID string, year int, st chart.StatementType, rows []*ParsedRow) (int, error)
}

const deleteLineItemsQuery = `
	DELETE FROM line_items
	WHERE institution_id = $1 AND year = $2 AND statement_type = $3`

var lineItemColumns = []string{
	"id", "institution_id", "year", "statement_type", "row_number",
	"account_name", "category", "current_value", "previous_value",
}

type PostgresRepository struct {
	pool PgxPool
}

func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ReplaceLineItems swaps the stored rows for one statement upload. Delete and
// bulk insert run in one transaction so a failed upload never leaves a
// half-replaced statement, and re-uploading a corrected file is safe.
func (r *PostgresRepository) ReplaceLineItems(ctx context.Context, institutionID string, year int, st chart.StatementType, rows []*ParsedRow) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteLineItemsQuery, institutionID, year, st); err != nil {
		return 0, fmt.Errorf("failed to delete previous line items: %w", err)
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"line_items"},
		lineItemColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			row := rows[i]
			return []any{
				uuid.New(),
				institutionID,
				year,
				st,
				row.RowNumber,
				row.AccountName,
				row.Category,
				row.CurrentValue,
				row.PreviousValue,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert line items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit upload: %w", err)
	}
	return int(copied), nil
}
