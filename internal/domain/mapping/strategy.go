package mapping

import (
	"context"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

// Match is one candidate mapping produced by a strategy
type Match struct {
	Code       string
	Name       string
	Confidence float64
	Rationale  string
	Source     Source
}

// Strategy attempts to map a single account name onto the standard chart.
// A nil Match with a nil error means the strategy has no answer and the next
// stage should try; an error is contained to the current item and the chain
// falls through as well.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, accountName string, st chart.StatementType) (*Match, error)
}
