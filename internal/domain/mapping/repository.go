// Package mapping resolves an institution's raw account names onto the
// standard chart of accounts.
package mapping

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

// UnknownCode marks a name no stage could resolve
const UnknownCode = "UNKNOWN"

// Source identifies which stage produced a mapping
type Source string

const (
	SourceExact      Source = "exact"
	SourceAI         Source = "ai"
	SourceSimilarity Source = "similarity"
	SourceReference  Source = "reference"
	SourceManual     Source = "manual"
)

// LineItem is one uploaded statement row awaiting mapping
type LineItem struct {
	ID            uuid.UUID           `db:"id"`
	InstitutionID string              `db:"institution_id"`
	Year          int                 `db:"year"`
	StatementType chart.StatementType `db:"statement_type"`
	RowNumber     int                 `db:"row_number"`
	AccountName   string              `db:"account_name"`
	Category      *string             `db:"category"`
	CurrentValue  *float64            `db:"current_value"`
	PreviousValue *float64            `db:"previous_value"`
	IsMapped      bool                `db:"is_mapped"`
	CreatedAt     time.Time           `db:"created_at"`
}

// Mapping associates one institution's original account name with a standard
// account. At most one row exists per (institution, original name, statement
// type); re-running a stage overwrites via upsert.
type Mapping struct {
	ID                  uuid.UUID           `db:"id"`
	InstitutionID       string              `db:"institution_id"`
	OriginalAccountName string              `db:"original_account_name"`
	StandardAccountCode string              `db:"standard_account_code"`
	StandardAccountName string              `db:"standard_account_name"`
	StatementType       chart.StatementType `db:"statement_type"`
	Confidence          float64             `db:"confidence"`
	Rationale           string              `db:"rationale"`
	Source              Source              `db:"source"`
	CreatedAt           time.Time           `db:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at"`
}

// ResolvedItem pairs a line item with the mapping a stage assigned to it
type ResolvedItem struct {
	LineItemID uuid.UUID
	Mapping    *Mapping
}

// Repository defines the persistence operations the matching pipeline needs.
// ApplyResolved commits one resolve batch atomically: every mapping upsert and
// line-item flag update succeeds together or the whole batch rolls back.
type Repository interface {
	ListUnmappedLineItems(ctx context.Context, institutionID string, year int, st chart.StatementType) ([]*LineItem, error)
	CountUnmappedLineItems(ctx context.Context, institutionID string, year int, st chart.StatementType) (int, error)
	GetMapping(ctx context.Context, institutionID, originalName string, st chart.StatementType) (*Mapping, error)
	ListMappings(ctx context.Context, institutionID string, st chart.StatementType) ([]*Mapping, error)
	ApplyResolved(ctx context.Context, items []*ResolvedItem) (int, error)
	UpsertMapping(ctx context.Context, m *Mapping) error
}
