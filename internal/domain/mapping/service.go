package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/common"
	"github.com/kyodo-analytics/finmap/pkg/observability"
)

const defaultBatchSize = 5

// ResolveResult reports one resolve pass. Unmapped counts items left for a
// later invocation or for manual review.
type ResolveResult struct {
	Total    int `json:"total"`
	Mapped   int `json:"mapped"`
	Unmapped int `json:"unmapped"`
}

// Service drives the matching pipeline: list unmapped line items, run each
// through the strategy chain, and commit the accepted mappings in one batch.
type Service struct {
	repo       Repository
	catalog    *chart.Catalog
	strategies []Strategy
	batchSize  int
	logger     *slog.Logger
}

// NewService wires the pipeline. Strategies run in order; the first is treated
// as the cheap bulk stage and sees every item, while the later stages process
// at most one batch per call to bound model latency and spend.
func NewService(repo Repository, catalog *chart.Catalog, strategies []Strategy, batchSize int, logger *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		repo:       repo,
		catalog:    catalog,
		strategies: strategies,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Resolve maps unmapped line items for one institution, year and statement
// type. An unrecognized statement type is a no-op, not an error, so callers
// can sweep all three types blindly. Failures inside a single item's chain are
// logged and leave that item unmapped; only storage errors abort the pass.
func (s *Service) Resolve(ctx context.Context, institutionID string, year int, statementType string, batchSize int) (ResolveResult, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		s.logger.Warn("resolve skipped: unrecognized statement type",
			slog.String("statement_type", statementType), slog.String("institution_id", institutionID))
		return ResolveResult{}, nil
	}
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	items, err := s.repo.ListUnmappedLineItems(ctx, institutionID, year, st)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("failed to load unmapped line items: %w", err)
	}
	if len(items) == 0 {
		return ResolveResult{}, nil
	}

	var resolved []*ResolvedItem
	deep := 0
	for _, item := range items {
		match := s.attemptChain(ctx, item, st, batchSize, &deep)
		if match == nil || match.Code == UnknownCode {
			continue
		}
		resolved = append(resolved, &ResolvedItem{
			LineItemID: item.ID,
			Mapping: &Mapping{
				InstitutionID:       institutionID,
				OriginalAccountName: item.AccountName,
				StandardAccountCode: match.Code,
				StandardAccountName: match.Name,
				StatementType:       st,
				Confidence:          match.Confidence,
				Rationale:           match.Rationale,
				Source:              match.Source,
			},
		})
	}

	mapped, err := s.repo.ApplyResolved(ctx, resolved)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("failed to apply resolved mappings: %w", err)
	}

	for _, item := range resolved {
		observability.MappingsResolved.WithLabelValues(string(item.Mapping.Source), string(st)).Inc()
	}
	result := ResolveResult{Total: len(items), Mapped: mapped, Unmapped: len(items) - mapped}
	if result.Unmapped > 0 {
		observability.MappingsUnresolved.WithLabelValues(string(st)).Add(float64(result.Unmapped))
	}
	s.logger.Info("resolve pass complete",
		slog.String("institution_id", institutionID),
		slog.Int("year", year),
		slog.String("statement_type", string(st)),
		slog.Int("total", result.Total),
		slog.Int("mapped", result.Mapped),
		slog.Int("unmapped", result.Unmapped))
	return result, nil
}

// attemptChain runs one item through the strategy chain. deep counts items
// that reached the expensive stages; once it hits batchSize, further items are
// left unmapped for the next invocation.
func (s *Service) attemptChain(ctx context.Context, item *LineItem, st chart.StatementType, batchSize int, deep *int) *Match {
	for i, strat := range s.strategies {
		if i == 1 {
			if *deep >= batchSize {
				return nil
			}
			*deep++
		}
		match, err := strat.Attempt(ctx, item.AccountName, st)
		if err != nil {
			s.logger.Warn("matching stage failed, falling through",
				slog.String("stage", strat.Name()),
				slog.String("account_name", item.AccountName),
				slog.Any("error", err))
			continue
		}
		if match != nil {
			return match
		}
	}
	return nil
}

// Mappings lists the stored mappings for one institution and statement type
func (s *Service) Mappings(ctx context.Context, institutionID string, statementType string) ([]*Mapping, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		return nil, nil
	}
	return s.repo.ListMappings(ctx, institutionID, st)
}

// UnmappedCount reports how many line items still await mapping
func (s *Service) UnmappedCount(ctx context.Context, institutionID string, year int, statementType string) (int, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		return 0, nil
	}
	return s.repo.CountUnmappedLineItems(ctx, institutionID, year, st)
}

// Override records a manual mapping decision, replacing whatever the pipeline
// chose for the same name.
func (s *Service) Override(ctx context.Context, institutionID, originalName, statementType, code string) error {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		return fmt.Errorf("unrecognized statement type %q", statementType)
	}
	acct, ok := s.catalog.ByCode(st, code)
	if !ok {
		return fmt.Errorf("standard account %s not found for %s: %w", code, st, common.ErrNotFound)
	}
	return s.repo.UpsertMapping(ctx, &Mapping{
		InstitutionID:       institutionID,
		OriginalAccountName: originalName,
		StandardAccountCode: acct.Code,
		StandardAccountName: acct.Name,
		StatementType:       st,
		Confidence:          1.0,
		Rationale:           "manual override",
		Source:              SourceManual,
	})
}
