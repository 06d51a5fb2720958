package mapping

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

func TestPostgresRepository_ListUnmappedLineItems(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	now := time.Now()
	value := 1200.0
	rows := pgxmock.NewRows([]string{
		"id", "institution_id", "year", "statement_type", "row_number", "account_name",
		"category", "current_value", "previous_value", "is_mapped", "created_at",
	}).AddRow(id, "ja-001", 2024, chart.StatementBS, 3, "現金", nil, &value, nil, false, now)

	mock.ExpectQuery(regexp.QuoteMeta(listUnmappedQuery)).
		WithArgs("ja-001", 2024, chart.StatementBS).
		WillReturnRows(rows)

	repo := NewPostgresRepository(mock, discardLogger())
	items, err := repo.ListUnmappedLineItems(context.Background(), "ja-001", 2024, chart.StatementBS)
	if err != nil {
		t.Fatalf("ListUnmappedLineItems: %v", err)
	}
	if len(items) != 1 || items[0].AccountName != "現金" || items[0].ID != id {
		t.Fatalf("unexpected items %+v", items)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_GetMapping_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "institution_id", "original_account_name", "standard_account_code",
		"standard_account_name", "statement_type", "confidence", "rationale", "source",
		"created_at", "updated_at",
	})
	mock.ExpectQuery(regexp.QuoteMeta(getMappingQuery)).
		WithArgs("ja-001", "missing", chart.StatementBS).
		WillReturnRows(rows)

	repo := NewPostgresRepository(mock, discardLogger())
	m, err := repo.GetMapping(context.Background(), "ja-001", "missing", chart.StatementBS)
	if err != nil {
		t.Fatalf("GetMapping: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil for missing mapping, got %+v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ApplyResolved_CommitsBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	items := []*ResolvedItem{
		{
			LineItemID: uuid.New(),
			Mapping: &Mapping{
				InstitutionID: "ja-001", OriginalAccountName: "現金",
				StandardAccountCode: "1010", StandardAccountName: "現金",
				StatementType: chart.StatementBS, Confidence: 1.0,
				Rationale: "完全一致", Source: SourceExact,
			},
		},
		{
			LineItemID: uuid.New(),
			Mapping: &Mapping{
				InstitutionID: "ja-001", OriginalAccountName: "組合員貸付金",
				StandardAccountCode: "1700", StandardAccountName: "貸出金",
				StatementType: chart.StatementBS, Confidence: 0.8,
				Rationale: "文字列類似度に基づくマッピング", Source: SourceSimilarity,
			},
		},
	}

	mock.ExpectBegin()
	for _, item := range items {
		m := item.Mapping
		mock.ExpectExec(regexp.QuoteMeta(upsertMappingQuery)).
			WithArgs(m.InstitutionID, m.OriginalAccountName, m.StandardAccountCode,
				m.StandardAccountName, m.StatementType, m.Confidence, m.Rationale, m.Source).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta(markMappedQuery)).
			WithArgs(item.LineItemID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectCommit()

	repo := NewPostgresRepository(mock, discardLogger())
	applied, err := repo.ApplyResolved(context.Background(), items)
	if err != nil {
		t.Fatalf("ApplyResolved: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want 2", applied)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ApplyResolved_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	item := &ResolvedItem{
		LineItemID: uuid.New(),
		Mapping: &Mapping{
			InstitutionID: "ja-001", OriginalAccountName: "現金",
			StandardAccountCode: "1010", StandardAccountName: "現金",
			StatementType: chart.StatementBS, Confidence: 1.0,
			Rationale: "完全一致", Source: SourceExact,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertMappingQuery)).
		WithArgs(item.Mapping.InstitutionID, item.Mapping.OriginalAccountName,
			item.Mapping.StandardAccountCode, item.Mapping.StandardAccountName,
			item.Mapping.StatementType, item.Mapping.Confidence,
			item.Mapping.Rationale, item.Mapping.Source).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	repo := NewPostgresRepository(mock, discardLogger())
	if _, err := repo.ApplyResolved(context.Background(), []*ResolvedItem{item}); err == nil {
		t.Fatal("expected batch failure to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ApplyResolved_EmptyBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock, discardLogger())
	applied, err := repo.ApplyResolved(context.Background(), nil)
	if err != nil {
		t.Fatalf("ApplyResolved: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0", applied)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
