// Package matching resolves free-form oracle answers against a known set of
// categories or product names.
package matching

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"productmatch/internal/domain"
	"productmatch/internal/textnorm"
)

// DefaultThreshold is the similarity a fuzzy candidate has to exceed.
const DefaultThreshold = 80.0

func lower(s string) string {
	return strings.ToLower(textnorm.Fold(s))
}

// FindCategory returns the first category, in the order given, whose label
// appears in output regardless of case.
func FindCategory(output string, cats []domain.Category) (domain.Category, bool) {
	out := lower(output)
	for _, c := range cats {
		if strings.Contains(out, lower(c.String())) {
			return c, true
		}
	}
	return domain.CategoryUnknown, false
}

// FindProduct resolves output to one of candidates. A case-insensitive
// substring hit wins first, in candidate order. Otherwise every whitespace
// token of output, and every run of tokens as long as the candidate, is
// scored against each candidate and the best score above threshold wins.
func FindProduct(output string, candidates []string, threshold float64) (string, bool) {
	out := lower(output)
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = lower(strings.TrimSpace(c))
	}

	for i, key := range keys {
		if key != "" && strings.Contains(out, key) {
			return candidates[i], true
		}
	}

	tokens := strings.Fields(out)
	best := -1
	bestScore := 0.0
	for t := range tokens {
		for i, key := range keys {
			if key == "" {
				continue
			}
			score := Similarity(tokens[t], key)
			if width := len(strings.Fields(key)); width > 1 && t+width <= len(tokens) {
				if s := Similarity(strings.Join(tokens[t:t+width], " "), key); s > score {
					score = s
				}
			}
			if score > bestScore && score > threshold {
				best, bestScore = i, score
			}
		}
	}
	if best < 0 {
		return "", false
	}
	return candidates[best], true
}

// Similarity scores a and b from 0 to 100 as twice their longest common
// subsequence over their combined rune length, rounded to a whole number.
// One inserted or deleted rune costs 1 and a substitution costs 2.
func Similarity(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	common := edlib.LCS(a, b)
	return math.RoundToEven(100 * float64(2*common) / float64(total))
}
