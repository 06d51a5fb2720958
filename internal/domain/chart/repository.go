package chart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// Repository provides read access to the reference tables plus the upserts
// the seed loader needs
type Repository interface {
	ListAccounts(ctx context.Context, st StatementType) ([]*StandardAccount, error)
	ListChildren(ctx context.Context, st StatementType, parentCode string) ([]*StandardAccount, error)
	UpsertAccount(ctx context.Context, account *StandardAccount) error
	ListFormulas(ctx context.Context, st StatementType) ([]*AccountFormula, error)
	UpsertFormula(ctx context.Context, formula *AccountFormula) error
}

// PostgresRepository implements Repository against PostgreSQL
type PostgresRepository struct {
	pgpool PgxPool
}

// NewPostgresRepository creates a chart repository
func NewPostgresRepository(pgpool PgxPool) *PostgresRepository {
	return &PostgresRepository{pgpool: pgpool}
}

const listAccountsQuery = `
	SELECT id, code, name, category, statement_type, account_type, display_order, parent_code, description
	FROM standard_accounts
	WHERE statement_type = $1
	ORDER BY display_order, code
`

// ListAccounts returns every standard account for one statement type
func (r *PostgresRepository) ListAccounts(ctx context.Context, st StatementType) ([]*StandardAccount, error) {
	rows, err := r.pgpool.Query(ctx, listAccountsQuery, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list standard accounts: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

const listChildrenQuery = `
	SELECT id, code, name, category, statement_type, account_type, display_order, parent_code, description
	FROM standard_accounts
	WHERE statement_type = $1 AND parent_code = $2
	ORDER BY display_order, code
`

// ListChildren returns the direct children of a parent code
func (r *PostgresRepository) ListChildren(ctx context.Context, st StatementType, parentCode string) ([]*StandardAccount, error) {
	rows, err := r.pgpool.Query(ctx, listChildrenQuery, st, parentCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list child accounts: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func scanAccounts(rows pgx.Rows) ([]*StandardAccount, error) {
	var accounts []*StandardAccount
	for rows.Next() {
		var a StandardAccount
		err := rows.Scan(
			&a.ID, &a.Code, &a.Name, &a.Category, &a.StatementType,
			&a.AccountType, &a.DisplayOrder, &a.ParentCode, &a.Description,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan standard account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

const upsertAccountQuery = `
	INSERT INTO standard_accounts (id, code, name, category, statement_type, account_type, display_order, parent_code, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (code, statement_type) DO UPDATE SET
		name = EXCLUDED.name,
		category = EXCLUDED.category,
		account_type = EXCLUDED.account_type,
		display_order = EXCLUDED.display_order,
		parent_code = EXCLUDED.parent_code,
		description = EXCLUDED.description
`

// UpsertAccount inserts or refreshes one standard account by (code, statement type)
func (r *PostgresRepository) UpsertAccount(ctx context.Context, account *StandardAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	_, err := r.pgpool.Exec(ctx, upsertAccountQuery,
		account.ID, account.Code, account.Name, account.Category, account.StatementType,
		account.AccountType, account.DisplayOrder, account.ParentCode, account.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert standard account %s: %w", account.Code, err)
	}
	return nil
}

const listFormulasQuery = `
	SELECT id, target_code, target_name, statement_type, formula_type, components, description, priority
	FROM account_formulas
	WHERE statement_type = $1
	ORDER BY priority DESC, target_code
`

// ListFormulas returns the formulas for one statement type, highest priority
// first with the target code as a stable tie-break
func (r *PostgresRepository) ListFormulas(ctx context.Context, st StatementType) ([]*AccountFormula, error) {
	rows, err := r.pgpool.Query(ctx, listFormulasQuery, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list account formulas: %w", err)
	}
	defer rows.Close()

	var formulas []*AccountFormula
	for rows.Next() {
		var f AccountFormula
		var components []byte
		err := rows.Scan(
			&f.ID, &f.TargetCode, &f.TargetName, &f.StatementType,
			&f.FormulaType, &components, &f.Description, &f.Priority,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account formula: %w", err)
		}
		if err := json.Unmarshal(components, &f.Components); err != nil {
			return nil, fmt.Errorf("failed to decode components for formula %s: %w", f.TargetCode, err)
		}
		formulas = append(formulas, &f)
	}
	return formulas, rows.Err()
}

const upsertFormulaQuery = `
	INSERT INTO account_formulas (id, target_code, target_name, statement_type, formula_type, components, description, priority)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (target_code, statement_type) DO UPDATE SET
		target_name = EXCLUDED.target_name,
		formula_type = EXCLUDED.formula_type,
		components = EXCLUDED.components,
		description = EXCLUDED.description,
		priority = EXCLUDED.priority
`

// UpsertFormula inserts or refreshes one formula by (target code, statement type)
func (r *PostgresRepository) UpsertFormula(ctx context.Context, formula *AccountFormula) error {
	if formula.ID == uuid.Nil {
		formula.ID = uuid.New()
	}

	components, err := json.Marshal(formula.Components)
	if err != nil {
		return fmt.Errorf("failed to encode components for formula %s: %w", formula.TargetCode, err)
	}

	_, err = r.pgpool.Exec(ctx, upsertFormulaQuery,
		formula.ID, formula.TargetCode, formula.TargetName, formula.StatementType,
		formula.FormulaType, components, formula.Description, formula.Priority,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account formula %s: %w", formula.TargetCode, err)
	}
	return nil
}
