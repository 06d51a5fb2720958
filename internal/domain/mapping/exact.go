package mapping

import (
	"context"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/normalizer"
)

// ExactMatcher resolves names that already equal a standard account name,
// either verbatim or after normalization. Both cases carry full confidence
// since normalization only folds width, punctuation and deposit synonyms.
type ExactMatcher struct {
	catalog *chart.Catalog
}

func NewExactMatcher(catalog *chart.Catalog) *ExactMatcher {
	return &ExactMatcher{catalog: catalog}
}

func (m *ExactMatcher) Name() string { return "exact" }

func (m *ExactMatcher) Attempt(_ context.Context, accountName string, st chart.StatementType) (*Match, error) {
	if acct, ok := m.catalog.ByName(st, normalizer.FoldDepositSynonyms(accountName)); ok {
		return &Match{Code: acct.Code, Name: acct.Name, Confidence: 1.0, Rationale: "完全一致", Source: SourceExact}, nil
	}
	if acct, ok := m.catalog.ByNormalizedName(st, normalizer.MatchNormalize(accountName)); ok {
		return &Match{Code: acct.Code, Name: acct.Name, Confidence: 1.0, Rationale: "完全一致 (正規化)", Source: SourceExact}, nil
	}
	return nil, nil
}
