package institution

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestPostgresRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{"code", "name", "prefecture", "scale", "year", "available_data", "last_updated"}).
		AddRow("ja-001", "JAテスト", "北海道", nil, 2024, "bs,pl", now)

	mock.ExpectQuery(regexp.QuoteMeta(getInstitutionQuery)).
		WithArgs("ja-001").
		WillReturnRows(rows)

	repo := NewPostgresRepository(mock)
	inst, err := repo.Get(context.Background(), "ja-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inst == nil || inst.Name != "JAテスト" || inst.Prefecture != "北海道" {
		t.Fatalf("unexpected institution %+v", inst)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"code", "name", "prefecture", "scale", "year", "available_data", "last_updated"})
	mock.ExpectQuery(regexp.QuoteMeta(getInstitutionQuery)).
		WithArgs("missing").
		WillReturnRows(rows)

	repo := NewPostgresRepository(mock)
	inst, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inst != nil {
		t.Fatalf("expected nil for missing institution, got %+v", inst)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	inst := &Institution{Code: "ja-001", Name: "JAテスト", Prefecture: "北海道", Year: 2024, AvailableData: "bs"}
	mock.ExpectExec(regexp.QuoteMeta(upsertInstitutionQuery)).
		WithArgs(inst.Code, inst.Name, inst.Prefecture, inst.Scale, inst.Year, inst.AvailableData).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPostgresRepository(mock)
	if err := repo.Upsert(context.Background(), inst); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
