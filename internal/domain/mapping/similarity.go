package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/normalizer"
)

// importantAccounts backs up the similarity scorer for fixed-asset and
// cooperative-specific names that score poorly on character overlap. Matches
// are accepted at a fixed 0.7 confidence.
var importantAccounts = map[string]string{
	"土地":     "2030",
	"建物":     "2010",
	"建物付属設備": "2015",
	"構築物":    "2020",
	"機械及び装置": "2040",
	"器具備品":   "2050",
	"車両運搬具":  "2060",

	"金銭の信託":  "1650",
	"金銭信託":   "1650",
	"政府保証債":  "1610",
	"外国証券":   "1600",
	"受益証券":   "1600",
	"金融機関貸付": "1990",
	"負債担保証券": "1631",
	"投資信託":   "1640",

	"外部出資": "1962",
	"系統出資": "1962",

	"貯金":     "1020",
	"出資金":    "1962",
	"貸付":     "1700",
	"貸出":     "1700",
	"工場":     "2010",
	"資金":     "1010",
	"預け金":    "1020",
	"未収金":    "1800",
	"未払金":    "3800",
	"農林中出資":  "1962",
	"全共連中出資": "1962",
	"系統預け金":  "1962",
	"系統出資金":  "1962",
	"連合会出資金": "1962",
	"中金出資金":  "1962",
}

// importantKeywords orders the dictionary scan longest key first so a compound
// term like 系統預け金 wins over its substring 預け金.
var importantKeywords = func() []string {
	keys := make([]string, 0, len(importantAccounts))
	for k := range importantAccounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// SimilarityMatcher scores an account name against every standard account for
// the statement type and accepts the best score above the threshold. It always
// yields a verdict, falling back to UNKNOWN, so it terminates the chain.
type SimilarityMatcher struct {
	catalog   *chart.Catalog
	threshold float64
	logger    *slog.Logger
}

func NewSimilarityMatcher(catalog *chart.Catalog, threshold float64, logger *slog.Logger) *SimilarityMatcher {
	return &SimilarityMatcher{catalog: catalog, threshold: threshold, logger: logger}
}

func (m *SimilarityMatcher) Name() string { return "similarity" }

func (m *SimilarityMatcher) Attempt(_ context.Context, accountName string, st chart.StatementType) (*Match, error) {
	accounts := m.catalog.AccountsFor(st)
	if len(accounts) == 0 {
		return &Match{
			Code:       UnknownCode,
			Name:       "Unknown",
			Confidence: 0,
			Rationale:  fmt.Sprintf("no standard accounts registered for %s", st),
			Source:     SourceSimilarity,
		}, nil
	}

	folded := normalizer.FoldDepositSynonyms(accountName)

	// Exact name match first
	for _, acct := range accounts {
		if acct.Name == folded {
			return &Match{Code: acct.Code, Name: acct.Name, Confidence: 1.0, Rationale: "完全一致", Source: SourceSimilarity}, nil
		}
	}

	// Then equality after normalization
	normalized := normalizer.MatchNormalize(accountName)
	for _, acct := range accounts {
		if normalizer.MatchNormalize(acct.Name) == normalized {
			return &Match{Code: acct.Code, Name: acct.Name, Confidence: 0.9, Rationale: "正規化後に一致", Source: SourceSimilarity}, nil
		}
	}

	var best *chart.StandardAccount
	bestScore := 0.0
	nameTokens := tokenSet(normalized)

	for _, acct := range accounts {
		stdNormalized := normalizer.MatchNormalize(acct.Name)
		base := similarity(normalized, stdNormalized)
		bonus := 0.1 * float64(sharedTokens(nameTokens, tokenSet(stdNormalized)))
		score := base + bonus
		if score > 1.0 {
			score = 1.0
		}
		// Ties resolve to the lowest code so reruns are deterministic
		if best == nil || score > bestScore || (score == bestScore && acct.Code < best.Code) {
			best = acct
			bestScore = score
		}
	}

	if best != nil && bestScore >= m.threshold {
		return &Match{
			Code:       best.Code,
			Name:       best.Name,
			Confidence: bestScore,
			Rationale:  fmt.Sprintf("文字列類似度に基づくマッピング (類似度: %.2f)", bestScore),
			Source:     SourceSimilarity,
		}, nil
	}

	// Keyword dictionary backup for names overlap scoring misses
	for _, keyword := range importantKeywords {
		if !strings.Contains(normalized, keyword) {
			continue
		}
		code := importantAccounts[keyword]
		if acct, ok := m.catalog.ByCode(st, code); ok {
			return &Match{
				Code:       acct.Code,
				Name:       acct.Name,
				Confidence: 0.7,
				Rationale:  fmt.Sprintf("重要科目一致 (%s)", keyword),
				Source:     SourceSimilarity,
			}, nil
		}
	}

	m.logger.Debug("no similarity match found", slog.String("account_name", accountName), slog.String("statement_type", string(st)))
	return &Match{
		Code:       UnknownCode,
		Name:       "Unknown",
		Confidence: 0,
		Rationale:  "マッチする標準勘定科目が見つかりませんでした",
		Source:     SourceSimilarity,
	}, nil
}

// similarity scores two normalized names on [0,1]. Equal names score 1.0, a
// substring relation scores 0.8, otherwise the fraction of the shorter name's
// characters present in the longer, over the longer name's length.
func similarity(a, b string) float64 {
	al := strings.ToLower(a)
	bl := strings.ToLower(b)
	if al == bl {
		return 1.0
	}
	if al == "" || bl == "" {
		return 0.0
	}
	if strings.Contains(bl, al) || strings.Contains(al, bl) {
		return 0.8
	}

	aRunes := []rune(al)
	bRunes := []rune(bl)
	common := 0
	for _, r := range aRunes {
		if strings.ContainsRune(bl, r) {
			common++
		}
	}
	maxLen := len(aRunes)
	if len(bRunes) > maxLen {
		maxLen = len(bRunes)
	}
	return float64(common) / float64(maxLen)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func sharedTokens(a, b map[string]struct{}) int {
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}
