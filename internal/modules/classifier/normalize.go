package classifier

import (
	"strings"
	"unicode"

	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// NormalizeLabel canonicalizes a raw line item label before matching:
// lowercase, punctuation stripped, whitespace collapsed, known
// abbreviations expanded through the taxonomy table.
//
// Extracted labels carry the same noise as the documents they came from
// (non-breaking spaces, footnote markers, stray punctuation), so this runs
// before any similarity scoring.
func NormalizeLabel(tax *taxonomy.Taxonomy, label string) string {
	lower := strings.ToLower(label)

	// Keep "/" and "&" through the first pass so abbreviations like
	// "a/r" and names like "cash & equivalents" survive to expansion.
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '/' || r == '&':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		expanded := tax.ExpandAbbreviation(token)
		if expanded == "&" {
			expanded = "and"
		}
		expanded = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
				return r
			}
			return ' '
		}, expanded)
		out = append(out, strings.Fields(expanded)...)
	}

	return strings.Join(out, " ")
}
