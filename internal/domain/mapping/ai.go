package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/normalizer"
	"github.com/kyodo-analytics/finmap/internal/llm"
)

const aiSystemPrompt = "You are a financial accounting expert for Japanese Agricultural Cooperatives."

// aiVerdict is the JSON shape the model is asked to return
type aiVerdict struct {
	StandardAccountCode string  `json:"standard_account_code"`
	Confidence          float64 `json:"confidence"`
	Rationale           string  `json:"rationale"`
}

// AIMatcher asks the language model for a mapping verdict. A verdict naming a
// code outside the candidate set is discarded, and any failure after the retry
// budget yields (nil, err) so the caller falls through to the next stage.
type AIMatcher struct {
	provider   llm.Provider
	catalog    *chart.Catalog
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewAIMatcher(provider llm.Provider, catalog *chart.Catalog, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *AIMatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AIMatcher{
		provider:   provider,
		catalog:    catalog,
		logger:     logger,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (m *AIMatcher) Name() string { return "ai" }

func (m *AIMatcher) Attempt(ctx context.Context, accountName string, st chart.StatementType) (*Match, error) {
	accounts := m.catalog.AccountsFor(st)
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no standard accounts registered for %s", st)
	}

	folded := normalizer.FoldDepositSynonyms(accountName)
	prompt := buildMappingPrompt(folded, st, accounts)

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		raw, err := m.provider.GenerateJSON(ctx, aiSystemPrompt, prompt)
		if err == nil {
			verdict, parseErr := parseVerdict(raw)
			if parseErr == nil {
				return m.validateVerdict(verdict, st)
			}
			err = parseErr
		}

		lastErr = err
		m.logger.Warn("ai mapping attempt failed",
			slog.String("account_name", accountName),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", m.maxRetries),
			slog.Any("error", err))

		if attempt < m.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("ai mapping failed after %d attempts: %w", m.maxRetries, lastErr)
}

// validateVerdict rejects hallucinated codes and clamps confidence to [0,1].
// An UNKNOWN verdict is returned as a no-answer so the chain continues.
func (m *AIMatcher) validateVerdict(v *aiVerdict, st chart.StatementType) (*Match, error) {
	code := strings.TrimSpace(v.StandardAccountCode)
	if code == "" || code == UnknownCode {
		return nil, nil
	}

	acct, ok := m.catalog.ByCode(st, code)
	if !ok {
		m.logger.Warn("ai verdict names a code outside the candidate set",
			slog.String("code", code), slog.String("statement_type", string(st)))
		return nil, nil
	}

	confidence := v.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	rationale := v.Rationale
	if rationale == "" {
		rationale = "AI mapping"
	}

	return &Match{
		Code:       acct.Code,
		Name:       acct.Name,
		Confidence: confidence,
		Rationale:  rationale,
		Source:     SourceAI,
	}, nil
}

// parseVerdict tolerates the malformed JSON language models produce, repairing
// markdown fences, single quotes and trailing commas before decoding.
func parseVerdict(raw string) (*aiVerdict, error) {
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to repair model response: %w", err)
	}
	verdict := &aiVerdict{}
	if err := json.Unmarshal([]byte(repaired), verdict); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	return verdict, nil
}

func buildMappingPrompt(accountName string, st chart.StatementType, accounts []*chart.StandardAccount) string {
	var sb strings.Builder
	for _, acct := range accounts {
		fmt.Fprintf(&sb, "- Code: %s, Name: %s, Type: %s\n", acct.Code, acct.Name, acct.AccountType)
	}

	statementDesc := map[chart.StatementType]string{
		chart.StatementBS: "Balance Sheet (貸借対照表)",
		chart.StatementPL: "Profit and Loss Statement (損益計算書)",
		chart.StatementCF: "Cash Flow Statement (キャッシュフロー計算書)",
	}[st]

	return fmt.Sprintf(`I need you to map this original account name to the most appropriate standard account.

Original account name: %s
Financial statement type: %s

Available standard accounts:
%s
Special mapping rules for JA accounting:
1. 「外部出資」(external investment) and similar investment accounts (系統出資, 農林中出資, etc.) should be mapped to "外部出資" with code 1962, NOT to equity accounts (資本金)
2. For accounts related to deposits or savings (預金 or 貯金), always map to deposit account codes (1110-1170)
3. Always follow the principle of conservative accounting, especially for assets and liabilities
4. JA-specific accounts should be mapped to their most similar standard account based on nature and purpose, not just name

Respond in JSON with the following fields:
- standard_account_code: The code of the matching standard account
- confidence: A number between 0 and 1 indicating confidence in the match
- rationale: A brief explanation of why this account was selected

If no appropriate match is found, set standard_account_code to "UNKNOWN" and provide a rationale.`,
		accountName, statementDesc, sb.String())
}
