package aggregation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubChartRepo serves fixed accounts and formulas
type stubChartRepo struct {
	accounts map[chart.StatementType][]*chart.StandardAccount
	formulas map[chart.StatementType][]*chart.AccountFormula
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

func (s *stubChartRepo) ListFormulas(_ context.Context, st chart.StatementType) ([]*chart.AccountFormula, error) {
	return s.formulas[st], nil
}

func (s *stubChartRepo) UpsertFormula(_ context.Context, _ *chart.AccountFormula) error { return nil }

// mockRepository keeps balances in memory keyed by account code
type mockRepository struct {
	totals   []*AccountTotal
	balances map[string]*Balance
	sumErr   error
}

func newMockRepository(totals ...*AccountTotal) *mockRepository {
	return &mockRepository{totals: totals, balances: make(map[string]*Balance)}
}

func (r *mockRepository) SumMappedValues(_ context.Context, _ string, _ int, _ chart.StatementType) ([]*AccountTotal, error) {
	return r.totals, r.sumErr
}

func (r *mockRepository) UpsertBalance(_ context.Context, b *Balance) error {
	r.balances[b.StandardAccountCode] = b
	return nil
}

func (r *mockRepository) GetBalance(_ context.Context, _ string, _ int, _ chart.StatementType, code string) (*Balance, error) {
	return r.balances[code], nil
}

func (r *mockRepository) ListBalances(_ context.Context, _ string, _ int, _ chart.StatementType) ([]*Balance, error) {
	var out []*Balance
	for _, b := range r.balances {
		out = append(out, b)
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func newService(t *testing.T, repo Repository, chartRepo chart.Repository) *Service {
	t.Helper()
	catalog := chart.NewCatalog(chartRepo)
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("catalog refresh: %v", err)
	}
	return NewService(repo, chartRepo, catalog, discardLogger())
}

func bsChart(formulas ...*chart.AccountFormula) *stubChartRepo {
	return &stubChartRepo{
		accounts: map[chart.StatementType][]*chart.StandardAccount{
			chart.StatementBS: {
				{Code: "1000", Name: "流動資産", StatementType: chart.StatementBS},
				{Code: "1010", Name: "現金", StatementType: chart.StatementBS, ParentCode: strPtr("1000")},
				{Code: "1020", Name: "預け金", StatementType: chart.StatementBS, ParentCode: strPtr("1000")},
				{Code: "1030", Name: "未収収益", StatementType: chart.StatementBS},
				{Code: "2900", Name: "資産合計", StatementType: chart.StatementBS},
				{Code: "3010", Name: "貯金", StatementType: chart.StatementBS},
				{Code: "4900", Name: "負債合計", StatementType: chart.StatementBS},
				{Code: "5900", Name: "純資産合計", StatementType: chart.StatementBS},
			},
		},
		formulas: map[chart.StatementType][]*chart.AccountFormula{
			chart.StatementBS: formulas,
		},
	}
}

func seedBalance(repo *mockRepository, code string, current, previous float64) {
	repo.balances[code] = &Balance{
		InstitutionID: "ja-001", Year: 2024, StatementType: chart.StatementBS,
		StandardAccountCode: code, CurrentValue: current, PreviousValue: previous,
	}
}

func TestService_BuildBalances(t *testing.T) {
	repo := newMockRepository(
		&AccountTotal{Code: "1010", Name: "現金", CurrentValue: 1200, PreviousValue: 1100},
		&AccountTotal{Code: "3010", Name: "貯金", CurrentValue: 9800, PreviousValue: 9500},
	)
	svc := newService(t, repo, bsChart())

	result, err := svc.BuildBalances(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("BuildBalances: %v", err)
	}
	if result.Accounts != 2 {
		t.Fatalf("accounts = %d, want 2", result.Accounts)
	}

	cash := repo.balances["1010"]
	if cash == nil || cash.CurrentValue != 1200 || cash.StatementSubtype != "BS資産" {
		t.Fatalf("unexpected cash balance %+v", cash)
	}
	deposits := repo.balances["3010"]
	if deposits == nil || deposits.StatementSubtype != "BS負債" {
		t.Fatalf("unexpected deposits balance %+v", deposits)
	}
}

func TestService_BuildBalances_InvalidStatementType(t *testing.T) {
	repo := newMockRepository()
	svc := newService(t, repo, bsChart())

	result, err := svc.BuildBalances(context.Background(), "ja-001", 2024, "income")
	if err != nil {
		t.Fatalf("BuildBalances: %v", err)
	}
	if result != (BuildResult{}) {
		t.Fatalf("expected zero result, got %+v", result)
	}
}

func TestService_Aggregate_SumFormula(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "1010", 100, 90)
	seedBalance(repo, "1020", 200, 180)
	seedBalance(repo, "1030", -50, -40)
	svc := newService(t, repo, bsChart(
		formula("2900", chart.FormulaSum, 0, "1010", "1020", "1030"),
	))

	result, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Computed != 1 {
		t.Fatalf("computed = %d, want 1", result.Computed)
	}

	total := repo.balances["2900"]
	if total == nil || total.CurrentValue != 250 || total.PreviousValue != 230 {
		t.Fatalf("unexpected total %+v", total)
	}
	if total.StandardAccountName != "資産合計" {
		t.Fatalf("name should come from the chart, got %q", total.StandardAccountName)
	}
}

func TestService_Aggregate_DiffFormula(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "2900", 500, 450)
	seedBalance(repo, "4900", 100, 90)
	seedBalance(repo, "1030", 50, 40)
	svc := newService(t, repo, bsChart(
		formula("5900", chart.FormulaDiff, 0, "2900", "4900", "1030"),
	))

	result, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Computed != 1 {
		t.Fatalf("computed = %d, want 1", result.Computed)
	}

	equity := repo.balances["5900"]
	if equity == nil || equity.CurrentValue != 350 || equity.PreviousValue != 320 {
		t.Fatalf("unexpected equity %+v", equity)
	}
}

func TestService_Aggregate_MissingComponentsCountAsZero(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "1010", 100, 90)
	svc := newService(t, repo, bsChart(
		formula("2900", chart.FormulaSum, 0, "1010", "1020"),
	))

	if _, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs"); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if total := repo.balances["2900"]; total == nil || total.CurrentValue != 100 {
		t.Fatalf("unexpected total %+v", repo.balances["2900"])
	}
}

func TestService_Aggregate_DiffWithOneComponentSkipped(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "2900", 500, 450)
	svc := newService(t, repo, bsChart(
		formula("5900", chart.FormulaDiff, 0, "2900"),
	))

	result, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Skipped != 1 || result.Computed != 0 {
		t.Fatalf("expected one skipped formula, got %+v", result)
	}
	if repo.balances["5900"] != nil {
		t.Fatal("skipped formula must not write a balance")
	}
}

func TestService_Aggregate_ChainedFormulas(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "1010", 100, 0)
	seedBalance(repo, "1020", 200, 0)
	seedBalance(repo, "4900", 120, 0)
	// 5900 consumes 2900's derived value within the same pass
	svc := newService(t, repo, bsChart(
		formula("5900", chart.FormulaDiff, 0, "2900", "4900"),
		formula("2900", chart.FormulaSum, 0, "1010", "1020"),
	))

	result, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Computed != 2 {
		t.Fatalf("computed = %d, want 2", result.Computed)
	}
	if equity := repo.balances["5900"]; equity == nil || equity.CurrentValue != 180 {
		t.Fatalf("unexpected equity %+v", repo.balances["5900"])
	}
}

func TestService_Aggregate_CycleFails(t *testing.T) {
	repo := newMockRepository()
	svc := newService(t, repo, bsChart(
		formula("2900", chart.FormulaSum, 0, "4900"),
		formula("4900", chart.FormulaSum, 0, "2900"),
	))

	if _, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs"); !errors.Is(err, ErrFormulaCycle) {
		t.Fatalf("expected ErrFormulaCycle, got %v", err)
	}
}

func TestService_Aggregate_ParentRollup(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "1010", 30, 25)
	seedBalance(repo, "1020", 70, 60)
	svc := newService(t, repo, bsChart())

	result, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.RolledUp != 1 {
		t.Fatalf("rolled up = %d, want 1", result.RolledUp)
	}
	parent := repo.balances["1000"]
	if parent == nil || parent.CurrentValue != 100 || parent.PreviousValue != 85 {
		t.Fatalf("unexpected parent balance %+v", parent)
	}
}

func TestService_Aggregate_RollupSkipsFormulaTargets(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "1010", 30, 0)
	seedBalance(repo, "1020", 70, 0)
	// 1000 has a formula covering only one child, which must win over rollup
	svc := newService(t, repo, bsChart(
		formula("1000", chart.FormulaSum, 0, "1010"),
	))

	result, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.RolledUp != 0 {
		t.Fatalf("rolled up = %d, want 0", result.RolledUp)
	}
	if parent := repo.balances["1000"]; parent == nil || parent.CurrentValue != 30 {
		t.Fatalf("formula result overwritten by rollup: %+v", repo.balances["1000"])
	}
}

func TestService_Aggregate_Idempotent(t *testing.T) {
	repo := newMockRepository()
	seedBalance(repo, "1010", 100, 90)
	seedBalance(repo, "1020", 200, 180)
	svc := newService(t, repo, bsChart(
		formula("2900", chart.FormulaSum, 0, "1010", "1020"),
	))

	for i := 0; i < 3; i++ {
		if _, err := svc.Aggregate(context.Background(), "ja-001", 2024, "bs"); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if total := repo.balances["2900"]; total == nil || total.CurrentValue != 300 {
			t.Fatalf("pass %d: unexpected total %+v", i, repo.balances["2900"])
		}
	}
}
