package categorize

import (
	"fmt"
	"log"
	"strings"

	"productmatch/internal/domain"
)

// LineError describes an oracle response line that was skipped.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// ParseAssignments reads "product: category" lines. Lines without a colon,
// with an empty field, or with a category outside the taxonomy are skipped
// and returned as LineErrors. A product listed twice keeps its last category.
func ParseAssignments(text string) (map[string]domain.Category, []LineError) {
	out := make(map[string]domain.Category)
	var rejected []LineError
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		product, label, found := strings.Cut(line, ":")
		if !found {
			rejected = append(rejected, LineError{Line: lineNo, Text: line, Reason: "no ':' found"})
			continue
		}
		product = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(product), "-"))
		label = strings.TrimSpace(label)
		if product == "" || label == "" {
			rejected = append(rejected, LineError{Line: lineNo, Text: line, Reason: "incomplete data"})
			continue
		}
		category, ok := domain.ParseCategory(label)
		if !ok {
			rejected = append(rejected, LineError{Line: lineNo, Text: line, Reason: fmt.Sprintf("invalid category %q", label)})
			continue
		}
		out[product] = category
	}
	for _, r := range rejected {
		log.Printf("categorize skipped %v", r)
	}
	return out, rejected
}

// Batches splits products into consecutive slices of at most size items.
func Batches(products []string, size int) [][]string {
	if size < 1 {
		size = DefaultBatchSize
	}
	var batches [][]string
	for start := 0; start < len(products); start += size {
		end := start + size
		if end > len(products) {
			end = len(products)
		}
		batches = append(batches, products[start:end])
	}
	return batches
}
