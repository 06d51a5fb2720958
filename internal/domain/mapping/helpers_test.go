package mapping

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubChartRepo serves a fixed account list to the catalog
type stubChartRepo struct {
	accounts map[chart.StatementType][]*chart.StandardAccount
}

func (s *stubChartRepo) ListAccounts(_ context.Context, st chart.StatementType) ([]*chart.StandardAccount, error) {
	return s.accounts[st], nil
}

func (s *stubChartRepo) ListChildren(_ context.Context, st chart.StatementType, parentCode string) ([]*chart.StandardAccount, error) {
	var children []*chart.StandardAccount
	for _, a := range s.accounts[st] {
		if a.ParentCode != nil && *a.ParentCode == parentCode {
			children = append(children, a)
		}
	}
	return children, nil
}

func (s *stubChartRepo) UpsertAccount(_ context.Context, _ *chart.StandardAccount) error { return nil }

func (s *stubChartRepo) ListFormulas(_ context.Context, _ chart.StatementType) ([]*chart.AccountFormula, error) {
	return nil, nil
}

func (s *stubChartRepo) UpsertFormula(_ context.Context, _ *chart.AccountFormula) error { return nil }

func newTestCatalog(t *testing.T, accounts map[chart.StatementType][]*chart.StandardAccount) *chart.Catalog {
	t.Helper()
	catalog := chart.NewCatalog(&stubChartRepo{accounts: accounts})
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("catalog refresh: %v", err)
	}
	return catalog
}

func bsAccount(code, name string) *chart.StandardAccount {
	return &chart.StandardAccount{Code: code, Name: name, StatementType: chart.StatementBS, AccountType: "asset"}
}
