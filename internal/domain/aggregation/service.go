package aggregation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/pkg/observability"
)

// BuildResult reports one balance build pass
type BuildResult struct {
	Accounts int `json:"accounts"`
}

// AggregateResult reports one formula evaluation pass
type AggregateResult struct {
	Formulas int `json:"formulas"`
	Computed int `json:"computed"`
	Skipped  int `json:"skipped"`
	RolledUp int `json:"rolled_up"`
}

// Service builds per-account balances from mapped line items and then derives
// the total accounts, either from explicit formulas or by rolling up children.
type Service struct {
	repo      Repository
	chartRepo chart.Repository
	catalog   *chart.Catalog
	logger    *slog.Logger
}

func NewService(repo Repository, chartRepo chart.Repository, catalog *chart.Catalog, logger *slog.Logger) *Service {
	return &Service{repo: repo, chartRepo: chartRepo, catalog: catalog, logger: logger}
}

// BuildBalances sums every mapped line item into its standard account and
// upserts one balance row per account. Safe to repeat: totals are recomputed
// from scratch and written over the previous values.
func (s *Service) BuildBalances(ctx context.Context, institutionID string, year int, statementType string) (BuildResult, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		s.logger.Warn("build skipped: unrecognized statement type", slog.String("statement_type", statementType))
		return BuildResult{}, nil
	}

	totals, err := s.repo.SumMappedValues(ctx, institutionID, year, st)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to sum mapped values: %w", err)
	}

	for _, t := range totals {
		name := t.Name
		if acct, ok := s.catalog.ByCode(st, t.Code); ok {
			name = acct.Name
		}
		b := &Balance{
			InstitutionID:       institutionID,
			Year:                year,
			StatementType:       st,
			StatementSubtype:    chart.StatementSubtype(st, t.Code),
			StandardAccountCode: t.Code,
			StandardAccountName: name,
			CurrentValue:        t.CurrentValue,
			PreviousValue:       t.PreviousValue,
		}
		if err := s.repo.UpsertBalance(ctx, b); err != nil {
			return BuildResult{}, err
		}
		observability.BalancesWritten.WithLabelValues("line_items", string(st)).Inc()
	}

	s.logger.Info("balances built",
		slog.String("institution_id", institutionID),
		slog.Int("year", year),
		slog.String("statement_type", string(st)),
		slog.Int("accounts", len(totals)))
	return BuildResult{Accounts: len(totals)}, nil
}

// Aggregate evaluates the statement's formulas in dependency order and writes
// the derived balances. Parent accounts without a formula get the sum of their
// direct children as a fallback.
func (s *Service) Aggregate(ctx context.Context, institutionID string, year int, statementType string) (AggregateResult, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		s.logger.Warn("aggregate skipped: unrecognized statement type", slog.String("statement_type", statementType))
		return AggregateResult{}, nil
	}

	formulas, err := s.chartRepo.ListFormulas(ctx, st)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("failed to load formulas: %w", err)
	}

	ordered, err := orderFormulas(formulas)
	if err != nil {
		return AggregateResult{}, err
	}

	balances, err := s.loadBalanceIndex(ctx, institutionID, year, st)
	if err != nil {
		return AggregateResult{}, err
	}

	result := AggregateResult{Formulas: len(formulas)}
	for _, f := range ordered {
		current, previous, ok := s.evaluate(f, balances)
		if !ok {
			result.Skipped++
			continue
		}

		b := s.newDerivedBalance(institutionID, year, st, f.TargetCode, f.TargetName, current, previous)
		if err := s.repo.UpsertBalance(ctx, b); err != nil {
			return AggregateResult{}, err
		}
		// later formulas see this result without re-reading storage
		balances[f.TargetCode] = b
		observability.BalancesWritten.WithLabelValues("formula", string(st)).Inc()
		result.Computed++
	}

	rolled, err := s.rollupParents(ctx, institutionID, year, st, formulas, balances)
	if err != nil {
		return AggregateResult{}, err
	}
	result.RolledUp = rolled

	s.logger.Info("aggregation complete",
		slog.String("institution_id", institutionID),
		slog.Int("year", year),
		slog.String("statement_type", string(st)),
		slog.Int("formulas", result.Formulas),
		slog.Int("computed", result.Computed),
		slog.Int("skipped", result.Skipped),
		slog.Int("rolled_up", result.RolledUp))
	return result, nil
}

// Balances returns the stored balances for one institution, year and statement type
func (s *Service) Balances(ctx context.Context, institutionID string, year int, statementType string) ([]*Balance, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		return nil, nil
	}
	return s.repo.ListBalances(ctx, institutionID, year, st)
}

func (s *Service) loadBalanceIndex(ctx context.Context, institutionID string, year int, st chart.StatementType) (map[string]*Balance, error) {
	list, err := s.repo.ListBalances(ctx, institutionID, year, st)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	index := make(map[string]*Balance, len(list))
	for _, b := range list {
		index[b.StandardAccountCode] = b
	}
	return index, nil
}

// evaluate computes one formula over the balance index. Missing components
// count as zero. A diff formula needs a minuend plus at least one subtrahend;
// anything shorter is skipped.
func (s *Service) evaluate(f *chart.AccountFormula, balances map[string]*Balance) (current, previous float64, ok bool) {
	switch f.FormulaType {
	case chart.FormulaSum:
		if len(f.Components) == 0 {
			s.logger.Warn("sum formula has no components", slog.String("target_code", f.TargetCode))
			return 0, 0, false
		}
		for _, code := range f.Components {
			if b := balances[code]; b != nil {
				current += b.CurrentValue
				previous += b.PreviousValue
			}
		}
		return current, previous, true

	case chart.FormulaDiff:
		if len(f.Components) < 2 {
			s.logger.Warn("diff formula needs at least two components", slog.String("target_code", f.TargetCode))
			return 0, 0, false
		}
		if b := balances[f.Components[0]]; b != nil {
			current = b.CurrentValue
			previous = b.PreviousValue
		}
		for _, code := range f.Components[1:] {
			if b := balances[code]; b != nil {
				current -= b.CurrentValue
				previous -= b.PreviousValue
			}
		}
		return current, previous, true
	}

	s.logger.Warn("unsupported formula type",
		slog.String("target_code", f.TargetCode), slog.String("formula_type", string(f.FormulaType)))
	return 0, 0, false
}

// rollupParents fills parent accounts that have neither a formula nor a
// balance by summing their direct children.
func (s *Service) rollupParents(ctx context.Context, institutionID string, year int, st chart.StatementType, formulas []*chart.AccountFormula, balances map[string]*Balance) (int, error) {
	hasFormula := make(map[string]bool, len(formulas))
	for _, f := range formulas {
		hasFormula[f.TargetCode] = true
	}

	rolled := 0
	for _, acct := range s.catalog.AccountsFor(st) {
		if hasFormula[acct.Code] || balances[acct.Code] != nil {
			continue
		}
		children := s.catalog.Children(st, acct.Code)
		if len(children) == 0 {
			continue
		}

		var current, previous float64
		found := false
		for _, child := range children {
			if b := balances[child.Code]; b != nil {
				current += b.CurrentValue
				previous += b.PreviousValue
				found = true
			}
		}
		if !found {
			continue
		}

		b := s.newDerivedBalance(institutionID, year, st, acct.Code, acct.Name, current, previous)
		if err := s.repo.UpsertBalance(ctx, b); err != nil {
			return rolled, err
		}
		balances[acct.Code] = b
		observability.BalancesWritten.WithLabelValues("rollup", string(st)).Inc()
		rolled++
	}
	return rolled, nil
}

func (s *Service) newDerivedBalance(institutionID string, year int, st chart.StatementType, code, fallbackName string, current, previous float64) *Balance {
	name := fallbackName
	if acct, ok := s.catalog.ByCode(st, code); ok {
		name = acct.Name
	}
	return &Balance{
		InstitutionID:       institutionID,
		Year:                year,
		StatementType:       st,
		StatementSubtype:    chart.StatementSubtype(st, code),
		StandardAccountCode: code,
		StandardAccountName: name,
		CurrentValue:        current,
		PreviousValue:       previous,
	}
}
