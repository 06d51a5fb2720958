package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/common"
	"github.com/kyodo-analytics/finmap/internal/domain/normalizer"
)

// IngestResult reports one upload
type IngestResult struct {
	Rows int `json:"rows"`
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Ingest parses an uploaded statement file and replaces the institution's
// line items for that year and statement type. Account names are normalized
// for safe storage; matching normalization happens later in the pipeline.
func (s *Service) Ingest(ctx context.Context, institutionID string, year int, statementType, filename string, data []byte) (IngestResult, error) {
	st, ok := chart.ParseStatementType(statementType)
	if !ok {
		return IngestResult{}, fmt.Errorf("unrecognized statement type %q: %w", statementType, common.ErrBadRequest)
	}
	if len(data) == 0 {
		return IngestResult{}, fmt.Errorf("empty upload: %w", common.ErrBadRequest)
	}

	rows, err := s.parse(filename, data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to parse %q: %w", filename, err)
	}

	for _, row := range rows {
		row.AccountName = normalizer.StorageNormalize(row.AccountName)
	}

	inserted, err := s.repo.ReplaceLineItems(ctx, institutionID, year, st, rows)
	if err != nil {
		return IngestResult{}, err
	}

	s.logger.Info("statement ingested",
		slog.String("institution_id", institutionID),
		slog.Int("year", year),
		slog.String("statement_type", string(st)),
		slog.String("filename", filename),
		slog.Int("rows", inserted))
	return IngestResult{Rows: inserted}, nil
}

func (s *Service) parse(filename string, data []byte) ([]*ParsedRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(data)
	default:
		text, err := DecodeText(data)
		if err != nil {
			return nil, err
		}
		cfg, err := DetectConfig(text)
		if err != nil {
			return nil, err
		}
		return ParseCSV(text, cfg)
	}
}
