// Package normalizer canonicalizes Japanese account names.
// Source statements mix fullwidth and halfwidth forms, stray brackets and
// cooperative-specific vocabulary; every matching stage compares names only
// after passing them through here.
package normalizer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// depositSynonyms folds the generic banking term for deposits onto the
// cooperative term used by the standard chart. A cooperative books customer
// deposits as liabilities under 貯金, so both spellings must collapse to one
// canonical form before any name comparison.
var depositSynonyms = map[string]string{
	"普通預金": "普通貯金",
	"当座預金": "当座貯金",
	"通知預金": "通知貯金",
	"定期預金": "定期貯金",
	"預金":   "貯金",
}

// synonymKeys holds the substitution keys longest-first so compound terms are
// not re-substituted through their substrings.
var synonymKeys = func() []string {
	keys := make([]string, 0, len(depositSynonyms))
	for k := range depositSynonyms {
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

const strippedPunctuation = "()[]{}「」『』【】.,、。・･：:'\"　"

// MatchNormalize canonicalizes an account name for matching. It never fails:
// any input comes back as a best-effort canonical form, empty input as "".
func MatchNormalize(name string) string {
	if name == "" {
		return ""
	}

	// NFKC folds fullwidth forms to halfwidth and composes compatibility
	// characters, so ２０１０ and カ）become comparable with their plain forms.
	s := norm.NFKC.String(name)

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(strippedPunctuation, r) {
			return -1
		}
		return r
	}, s)

	return FoldDepositSynonyms(s)
}

// FoldDepositSynonyms rewrites deposit vocabulary onto the cooperative term,
// longest key first.
func FoldDepositSynonyms(s string) string {
	for _, key := range synonymKeys {
		s = strings.ReplaceAll(s, key, depositSynonyms[key])
	}
	return s
}

// StorageNormalize prepares a string for persistence: NFKC, control characters
// removed, invalid UTF-8 dropped. It deliberately does NOT fold deposit
// synonyms; stored names keep the institution's original vocabulary.
func StorageNormalize(s string) string {
	if s == "" {
		return ""
	}

	out := strings.ToValidUTF8(s, "")
	out = norm.NFKC.String(out)
	out = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, out)
	return out
}
