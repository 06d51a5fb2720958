package upload

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// ParsedRow is one usable statement row
type ParsedRow struct {
	RowNumber     int
	AccountName   string
	Category      *string
	CurrentValue  *float64
	PreviousValue *float64
}

// rows named like totals are sums of other rows and would double-count
var skipNames = map[string]bool{
	"合計": true, "小計": true, "total": true, "subtotal": true,
}

// ParseCSV reads statement rows using a sniffed layout
func ParseCSV(text string, cfg *FileConfig) ([]*ParsedRow, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = cfg.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []*ParsedRow
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line+1, err)
		}
		line++
		if line <= cfg.SkipLines+headerLines(cfg) {
			continue
		}
		if row := buildRow(record, cfg.Columns, line); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ParseXLSX reads statement rows from the first sheet of a workbook
func ParseXLSX(data []byte) ([]*ParsedRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	cols := defaultColumns()
	headerRow := -1
	for i, record := range records {
		if i > 20 {
			break
		}
		joined := strings.ToLower(strings.Join(record, ","))
		for _, kw := range headerKeywords {
			if strings.Contains(joined, kw) {
				cols = SuggestColumns(record)
				headerRow = i
				break
			}
		}
		if headerRow >= 0 {
			break
		}
	}

	var rows []*ParsedRow
	for i, record := range records {
		if i <= headerRow {
			continue
		}
		if row := buildRow(record, cols, i+1); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func headerLines(cfg *FileConfig) int {
	if len(cfg.Headers) > 0 {
		return 1
	}
	return 0
}

func buildRow(record []string, cols Columns, line int) *ParsedRow {
	name := strings.TrimSpace(field(record, cols.Account))
	if name == "" || skipNames[strings.ToLower(name)] {
		return nil
	}

	row := &ParsedRow{
		RowNumber:     line,
		AccountName:   name,
		CurrentValue:  ParseValue(field(record, cols.Current)),
		PreviousValue: ParseValue(field(record, cols.Previous)),
	}

	if category := strings.TrimSpace(field(record, cols.Category)); category != "" {
		row.Category = &category
	} else if derived := deriveCategory(name); derived != "" {
		row.Category = &derived
	}
	return row
}

// deriveCategory infers the statement section from the account name
func deriveCategory(name string) string {
	switch {
	case strings.Contains(name, "純資産") || strings.Contains(name, "資本"):
		return "純資産の部"
	case strings.Contains(name, "負債"):
		return "負債の部"
	case strings.Contains(name, "資産"):
		return "資産の部"
	}
	return ""
}

// ParseValue reads a Japanese-formatted amount. Fullwidth digits are folded,
// thousands separators and currency marks dropped, and △/▲ or parentheses
// mark negatives. Unparseable or empty cells yield nil.
func ParseValue(s string) *float64 {
	s = norm.NFKC.String(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "△") || strings.HasPrefix(s, "▲") {
		negative = true
		s = strings.TrimLeft(s, "△▲")
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer(",", "", "¥", "", "円", "", " ", "").Replace(s)
	if s == "" {
		return nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}
	v, _ := d.Float64()
	return &v
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
