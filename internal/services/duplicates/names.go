package duplicates

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// NormalizeName lowercases name, drops stop words and strips everything
// that is not a letter or digit.
func NormalizeName(name string, stopWords []string) string {
	stop := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stop[w] = struct{}{}
	}
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		if _, ok := stop[w]; ok {
			continue
		}
		b.WriteString(w)
	}
	return b.String()
}

// NameSimilarity is 1 - distance/maxLen over runes. Two empty names score 0.
func NameSimilarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
