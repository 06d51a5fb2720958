package institution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

type Repository interface {
	List(ctx context.Context) ([]*Institution, error)
	Get(ctx context.Context, code string) (*Institution, error)
	Upsert(ctx context.Context, inst *Institution) error
}

const (
	listInstitutionsQuery = `
		SELECT code, name, prefecture, scale, year, available_data, last_updated
		FROM institutions
		ORDER BY code`

	getInstitutionQuery = `
		SELECT code, name, prefecture, scale, year, available_data, last_updated
		FROM institutions
		WHERE code = $1`

	upsertInstitutionQuery = `
		INSERT INTO institutions (code, name, prefecture, scale, year, available_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code)
		DO UPDATE SET name = EXCLUDED.name,
		              prefecture = EXCLUDED.prefecture,
		              scale = EXCLUDED.scale,
		              year = EXCLUDED.year,
		              available_data = EXCLUDED.available_data,
		              last_updated = NOW()`
)

type PostgresRepository struct {
	pool PgxPool
}

func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Institution, error) {
	rows, err := r.pool.Query(ctx, listInstitutionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []*Institution
	for rows.Next() {
		inst := &Institution{}
		if err := rows.Scan(&inst.Code, &inst.Name, &inst.Prefecture, &inst.Scale,
			&inst.Year, &inst.AvailableData, &inst.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, inst)
	}
	return institutions, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, code string) (*Institution, error) {
	inst := &Institution{}
	err := r.pool.QueryRow(ctx, getInstitutionQuery, code).Scan(
		&inst.Code, &inst.Name, &inst.Prefecture, &inst.Scale,
		&inst.Year, &inst.AvailableData, &inst.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution %s: %w", code, err)
	}
	return inst, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, inst *Institution) error {
	_, err := r.pool.Exec(ctx, upsertInstitutionQuery,
		inst.Code, inst.Name, inst.Prefecture, inst.Scale, inst.Year, inst.AvailableData,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert institution %s: %w", inst.Code, err)
	}
	return nil
}
