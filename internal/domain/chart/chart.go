// Package chart holds the standard chart of accounts and the account formulas
// shared by every institution. Both are reference data: loaded once, read-only
// for the matching and aggregation engines.
package chart

import (
	"strings"

	"github.com/google/uuid"
)

// StatementType identifies which financial statement an account belongs to
type StatementType string

const (
	StatementBS StatementType = "bs" // balance sheet
	StatementPL StatementType = "pl" // profit and loss
	StatementCF StatementType = "cf" // cash flow
)

// AllStatementTypes lists the supported statement types in chart order
var AllStatementTypes = []StatementType{StatementBS, StatementPL, StatementCF}

// ParseStatementType validates a raw statement type string
func ParseStatementType(s string) (StatementType, bool) {
	switch StatementType(strings.ToLower(strings.TrimSpace(s))) {
	case StatementBS:
		return StatementBS, true
	case StatementPL:
		return StatementPL, true
	case StatementCF:
		return StatementCF, true
	}
	return "", false
}

// StandardAccount is one entry of the standard chart of accounts.
// parent_code references another account of the same statement type, forming
// a forest per statement type.
type StandardAccount struct {
	ID            uuid.UUID     `db:"id"`
	Code          string        `db:"code"`
	Name          string        `db:"name"`
	Category      string        `db:"category"`
	StatementType StatementType `db:"statement_type"`
	AccountType   string        `db:"account_type"`
	DisplayOrder  int           `db:"display_order"`
	ParentCode    *string       `db:"parent_code"`
	Description   *string       `db:"description"`
}

// FormulaType selects how a formula combines its components
type FormulaType string

const (
	FormulaSum  FormulaType = "sum"  // total of all components
	FormulaDiff FormulaType = "diff" // first component minus the rest
)

// AccountFormula computes a target account's balance from other accounts.
// Components are ordered; for diff formulas the first entry is the minuend.
type AccountFormula struct {
	ID            uuid.UUID     `db:"id"`
	TargetCode    string        `db:"target_code"`
	TargetName    string        `db:"target_name"`
	StatementType StatementType `db:"statement_type"`
	FormulaType   FormulaType   `db:"formula_type"`
	Components    []string      `db:"components"`
	Description   *string       `db:"description"`
	Priority      int           `db:"priority"`
}

// StatementSubtype derives the display category for an account code from its
// leading digits. The ranges come from the chart's code plan: BS assets are
// 1xxx/2xxx, liabilities 3xxx/4xxx, equity 5xxx; PL revenue 6xxx, expenses
// 7xxx/8xxx; CF sections live under 9xxx.
func StatementSubtype(st StatementType, code string) string {
	prefix := ""
	if code != "" {
		prefix = code[:1]
	}

	switch st {
	case StatementBS:
		switch prefix {
		case "1", "2":
			return "BS資産"
		case "3", "4":
			return "BS負債"
		case "5":
			return "BS純資産"
		}
		return "BS"
	case StatementPL:
		switch prefix {
		case "6":
			return "PL収益"
		case "7", "8":
			return "PL費用"
		}
		return "PL"
	case StatementCF:
		if prefix == "9" {
			switch {
			case strings.HasPrefix(code, "90"):
				return "CF営業活動"
			case strings.HasPrefix(code, "91"):
				return "CF投資活動"
			case strings.HasPrefix(code, "92"):
				return "CF財務活動"
			case strings.HasPrefix(code, "93"):
				return "CF現金同等物"
			}
		}
		return "CF"
	}
	return strings.ToUpper(string(st))
}
