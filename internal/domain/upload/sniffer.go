package upload

import (
	"errors"
	"strings"
)

// headerKeywords mark a statement file's header row
var headerKeywords = []string{
	"科目", "勘定科目", "当年", "前年", "区分", "金額",
	"account", "item", "current", "previous",
}

// Columns holds the detected column indices of a statement file.
// A value of -1 means the column was not found.
type Columns struct {
	Account  int
	Current  int
	Previous int
	Category int
}

// FileConfig describes a sniffed CSV layout
type FileConfig struct {
	Delimiter rune
	SkipLines int
	Headers   []string
	Columns   Columns
}

var ErrEmptyFile = errors.New("file is empty")

// DetectConfig locates the header row and delimiter of a statement CSV.
// Files without a recognizable header are treated as headerless with the
// conventional JA export layout: account name first, previous year value
// second, current year value third.
func DetectConfig(text string) (*FileConfig, error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFile
	}

	delimiters := []rune{',', '\t', ';'}
	for i, line := range lines {
		if i > 20 {
			break
		}
		lineLower := strings.ToLower(line)

		hasKeyword := false
		for _, kw := range headerKeywords {
			if strings.Contains(lineLower, kw) {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			continue
		}

		for _, d := range delimiters {
			if strings.Count(line, string(d)) >= 1 {
				headers := splitAndTrim(line, d)
				return &FileConfig{
					Delimiter: d,
					SkipLines: i,
					Headers:   headers,
					Columns:   SuggestColumns(headers),
				}, nil
			}
		}
	}

	return &FileConfig{
		Delimiter: ',',
		SkipLines: 0,
		Columns:   defaultColumns(),
	}, nil
}

// SuggestColumns matches columns by header name, falling back to the
// positional layout JA exports use.
func SuggestColumns(headers []string) Columns {
	cols := Columns{Account: -1, Current: -1, Previous: -1, Category: -1}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))

		if cols.Account == -1 {
			if strings.Contains(h, "科目") || strings.Contains(h, "account") || strings.Contains(h, "item") {
				cols.Account = i
			}
		}
		if cols.Current == -1 {
			if strings.Contains(h, "当年") || strings.Contains(h, "current") || strings.Contains(h, "this") || strings.Contains(h, "令和5年度") {
				cols.Current = i
			}
		}
		if cols.Previous == -1 {
			if strings.Contains(h, "前年") || strings.Contains(h, "previous") || strings.Contains(h, "last") || strings.Contains(h, "令和4年度") {
				cols.Previous = i
			}
		}
		if cols.Category == -1 {
			if strings.Contains(h, "区分") || strings.Contains(h, "category") {
				cols.Category = i
			}
		}
	}

	if cols.Account == -1 && len(headers) > 0 {
		cols.Account = 0
	}
	if cols.Current == -1 && len(headers) > 2 {
		cols.Current = 2
	}
	if cols.Previous == -1 && len(headers) > 1 {
		cols.Previous = 1
	}
	return cols
}

func defaultColumns() Columns {
	return Columns{Account: 0, Current: 2, Previous: 1, Category: -1}
}

func splitAndTrim(line string, d rune) []string {
	parts := strings.Split(strings.TrimRight(line, "\r"), string(d))
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
