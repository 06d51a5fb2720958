// Package upload ingests financial statement files, detecting their encoding
// and layout, and stores the rows as line items awaiting mapping.
package upload

import (
	"bytes"
	"errors"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrUndecodable is returned when no supported encoding fits the file
var ErrUndecodable = errors.New("file is not UTF-8, Shift_JIS or EUC-JP")

// DecodeText converts file bytes to UTF-8. Japanese cooperative exports are
// commonly Shift_JIS, sometimes EUC-JP, increasingly UTF-8 with a BOM. The
// legacy decoders substitute U+FFFD instead of failing, so both candidates
// are decoded and the one that reads most like Japanese text wins.
func DecodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	best := ""
	bestScore := 0
	found := false
	for _, enc := range []encoding.Encoding{japanese.ShiftJIS, japanese.EUCJP} {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil || !utf8.Valid(decoded) {
			continue
		}
		if score := scoreJapanese(string(decoded)); !found || score > bestScore {
			best = string(decoded)
			bestScore = score
			found = true
		}
	}
	if !found || bestScore <= 0 {
		return "", ErrUndecodable
	}
	return best, nil
}

// scoreJapanese rates how plausible a decoded string is. Kanji and kana score
// high; replacement runes and halfwidth katakana, the usual shape of a wrong
// decode, pull the score down.
func scoreJapanese(s string) int {
	score := 0
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			score -= 10
		case r >= 0xFF61 && r <= 0xFF9F:
			score--
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana):
			score += 2
		case r < 0x80:
			score++
		default:
			score -= 2
		}
	}
	return score
}
