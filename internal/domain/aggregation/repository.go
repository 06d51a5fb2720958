// Package aggregation turns mapped line items into standard account balances
// and computes the derived total accounts from formulas.
package aggregation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

// Balance is one standard account's value for an institution, year and
// statement type. One row per (institution, year, statement type, code).
type Balance struct {
	ID                  uuid.UUID           `db:"id"`
	InstitutionID       string              `db:"institution_id"`
	Year                int                 `db:"year"`
	StatementType       chart.StatementType `db:"statement_type"`
	StatementSubtype    string              `db:"statement_subtype"`
	StandardAccountCode string              `db:"standard_account_code"`
	StandardAccountName string              `db:"standard_account_name"`
	CurrentValue        float64             `db:"current_value"`
	PreviousValue       float64             `db:"previous_value"`
	CreatedAt           time.Time           `db:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at"`
}

// AccountTotal is the per-code sum of mapped line item values
type AccountTotal struct {
	Code          string
	Name          string
	CurrentValue  float64
	PreviousValue float64
}

type Repository interface {
	SumMappedValues(ctx context.Context, institutionID string, year int, st chart.StatementType) ([]*AccountTotal, error)
	UpsertBalance(ctx context.Context, b *Balance) error
	GetBalance(ctx context.Context, institutionID string, year int, st chart.StatementType, code string) (*Balance, error)
	ListBalances(ctx context.Context, institutionID string, year int, st chart.StatementType) ([]*Balance, error)
}
