// Package textnorm cleans raw product titles and oracle answers before they
// are compared or written out.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var tagPattern = regexp.MustCompile(`<[^<]+?>`)

// Segments the description oracle uses for missing fields.
var fillerTokens = map[string]bool{
	"null": true,
	"mo":   true,
	"moi":  true,
}

// Romanian text shows up with both the legacy cedilla letters and the
// comma-below letters; the taxonomy uses comma-below.
var cedillaReplacer = strings.NewReplacer(
	"ş", "ș",
	"Ş", "Ș",
	"ţ", "ț",
	"Ţ", "Ț",
)

// StripTags removes HTML-like markup.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// CleanTitle strips markup and surrounding whitespace from a raw title.
func CleanTitle(s string) string {
	return strings.TrimSpace(StripTags(s))
}

// RemoveFiller drops comma-separated segments that are filler tokens or a
// single character long and joins what is left with ", ".
func RemoveFiller(s string) string {
	parts := strings.Split(s, ",")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len([]rune(part)) <= 1 {
			continue
		}
		if fillerTokens[strings.ToLower(part)] {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ", ")
}

// Fold composes s to NFC and maps cedilla letters to their comma-below forms.
func Fold(s string) string {
	return cedillaReplacer.Replace(norm.NFC.String(s))
}

// Key lower-cases, folds and collapses whitespace so two spellings of the
// same product compare equal.
func Key(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(Fold(s))), " ")
}
