package chart

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kyodo-analytics/finmap/internal/domain/normalizer"
)

// Loader seeds the reference tables from CSV files. Account rows are
// code,name,category,statement_type,account_type,display_order,parent_code,description;
// formula rows are target_code,target_name,statement_type,formula_type,components,priority
// with components separated by ';'.
type Loader struct {
	repo   Repository
	logger *slog.Logger
}

// NewLoader creates a reference-data loader
func NewLoader(repo Repository, logger *slog.Logger) *Loader {
	return &Loader{repo: repo, logger: logger}
}

// LoadAccounts upserts standard accounts from CSV data and returns the number
// of rows applied. Bad rows are logged and skipped.
func (l *Loader) LoadAccounts(ctx context.Context, data []byte) (int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	loaded := 0
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			l.logger.Warn("skipping unreadable chart row", "line", line, "error", err)
			continue
		}
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) < 4 {
			l.logger.Warn("skipping short chart row", "line", line, "fields", len(record))
			continue
		}

		st, ok := ParseStatementType(record[3])
		if !ok {
			l.logger.Warn("skipping chart row with unknown statement type", "line", line, "statement_type", record[3])
			continue
		}

		account := &StandardAccount{
			Code:          strings.TrimSpace(record[0]),
			Name:          normalizer.StorageNormalize(record[1]),
			Category:      normalizer.StorageNormalize(field(record, 2)),
			StatementType: st,
			AccountType:   normalizer.StorageNormalize(field(record, 4)),
		}
		if account.Code == "" || account.Name == "" {
			l.logger.Warn("skipping chart row without code or name", "line", line)
			continue
		}
		if v := field(record, 5); v != "" {
			if order, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				account.DisplayOrder = order
			}
		}
		if v := strings.TrimSpace(field(record, 6)); v != "" {
			account.ParentCode = &v
		}
		if v := normalizer.StorageNormalize(field(record, 7)); v != "" {
			account.Description = &v
		}

		if err := l.repo.UpsertAccount(ctx, account); err != nil {
			return loaded, fmt.Errorf("failed to load account at line %d: %w", line, err)
		}
		loaded++
	}

	l.logger.Info("standard accounts loaded", "count", loaded)
	return loaded, nil
}

// LoadFormulas upserts account formulas from CSV data
func (l *Loader) LoadFormulas(ctx context.Context, data []byte) (int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	loaded := 0
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			l.logger.Warn("skipping unreadable formula row", "line", line, "error", err)
			continue
		}
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) < 5 {
			l.logger.Warn("skipping short formula row", "line", line, "fields", len(record))
			continue
		}

		st, ok := ParseStatementType(record[2])
		if !ok {
			l.logger.Warn("skipping formula row with unknown statement type", "line", line, "statement_type", record[2])
			continue
		}

		formulaType := FormulaType(strings.ToLower(strings.TrimSpace(record[3])))
		if formulaType != FormulaSum && formulaType != FormulaDiff {
			l.logger.Warn("skipping formula row with unknown formula type", "line", line, "formula_type", record[3])
			continue
		}

		var components []string
		for _, c := range strings.Split(record[4], ";") {
			if c = strings.TrimSpace(c); c != "" {
				components = append(components, c)
			}
		}
		if len(components) == 0 {
			l.logger.Warn("skipping formula row without components", "line", line, "target_code", record[0])
			continue
		}

		formula := &AccountFormula{
			TargetCode:    strings.TrimSpace(record[0]),
			TargetName:    normalizer.StorageNormalize(record[1]),
			StatementType: st,
			FormulaType:   formulaType,
			Components:    components,
		}
		if v := field(record, 5); v != "" {
			if priority, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				formula.Priority = priority
			}
		}

		if err := l.repo.UpsertFormula(ctx, formula); err != nil {
			return loaded, fmt.Errorf("failed to load formula at line %d: %w", line, err)
		}
		loaded++
	}

	l.logger.Info("account formulas loaded", "count", loaded)
	return loaded, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "code" || first == "target_code" || strings.Contains(first, "コード")
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
