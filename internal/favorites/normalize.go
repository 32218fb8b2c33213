package favorites

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NFD does not decompose stroked letters, so they are mapped up front.
var strokedLetters = strings.NewReplacer(
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ø", "o", "Ø", "O",
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases a string and strips diacritics, producing the match key
// used both for favorite flavors and for catalog name comparisons.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strokedLetters.Replace(s)
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}
