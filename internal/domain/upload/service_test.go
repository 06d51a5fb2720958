package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/common"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockRepository struct {
	institutionID string
	year          int
	statementType chart.StatementType
	rows          []*ParsedRow
	err           error
}

func (r *mockRepository) ReplaceLineItems(_ context.Context, institutionID string, year int, st chart.StatementType, rows []*ParsedRow) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.institutionID = institutionID
	r.year = year
	r.statementType = st
	r.rows = rows
	return len(rows), nil
}

func TestService_Ingest_CSV(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, discardLogger())

	data := []byte("勘定科目,前年度,当年度\n現金,900,1000\n普通貯金,8000,9000\n")
	result, err := svc.Ingest(context.Background(), "ja-001", 2024, "bs", "bs_2024.csv", data)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Rows != 2 {
		t.Fatalf("rows = %d, want 2", result.Rows)
	}
	if repo.institutionID != "ja-001" || repo.year != 2024 || repo.statementType != chart.StatementBS {
		t.Fatalf("unexpected repo call %+v", repo)
	}
	// storage normalization keeps the name as written; no synonym folding
	if repo.rows[1].AccountName != "普通貯金" {
		t.Fatalf("account name altered on ingest: %q", repo.rows[1].AccountName)
	}
}

func TestService_Ingest_InvalidStatementType(t *testing.T) {
	svc := NewService(&mockRepository{}, discardLogger())

	_, err := svc.Ingest(context.Background(), "ja-001", 2024, "cashflow", "f.csv", []byte("科目,前年,当年\n現金,1,2\n"))
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestService_Ingest_EmptyFile(t *testing.T) {
	svc := NewService(&mockRepository{}, discardLogger())

	if _, err := svc.Ingest(context.Background(), "ja-001", 2024, "bs", "f.csv", nil); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestService_Ingest_RepositoryError(t *testing.T) {
	repo := &mockRepository{err: errors.New("connection lost")}
	svc := NewService(repo, discardLogger())

	if _, err := svc.Ingest(context.Background(), "ja-001", 2024, "bs", "f.csv", []byte("科目,前年,当年\n現金,1,2\n")); err == nil {
		t.Fatal("expected repository error to surface")
	}
}

func TestPostgresRepository_ReplaceLineItems(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	v1, v2 := 1000.0, 900.0
	rows := []*ParsedRow{
		{RowNumber: 2, AccountName: "現金", CurrentValue: &v1, PreviousValue: &v2},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteLineItemsQuery)).
		WithArgs("ja-001", 2024, chart.StatementBS).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"line_items"}, lineItemColumns).
		WillReturnResult(1)
	mock.ExpectCommit()

	repo := NewPostgresRepository(mock)
	inserted, err := repo.ReplaceLineItems(context.Background(), "ja-001", 2024, chart.StatementBS, rows)
	if err != nil {
		t.Fatalf("ReplaceLineItems: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ReplaceLineItems_RollsBackOnDeleteFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteLineItemsQuery)).
		WithArgs("ja-001", 2024, chart.StatementBS).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	repo := NewPostgresRepository(mock)
	if _, err := repo.ReplaceLineItems(context.Background(), "ja-001", 2024, chart.StatementBS, nil); err == nil {
		t.Fatal("expected delete failure to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
