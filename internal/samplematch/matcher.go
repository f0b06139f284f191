// Package samplematch turns sample titles into generated titles and links
// each one to the closest known product of its category.
package samplematch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"productmatch/internal/domain"
	"productmatch/internal/integrations/llm"
	"productmatch/internal/matching"
	"productmatch/internal/textnorm"
)

type Options struct {
	// Threshold is the fuzzy similarity a product must exceed. nil means
	// matching.DefaultThreshold; an explicit 0 accepts any overlap.
	Threshold *float64
	// CandidateLimit caps the products sent per prompt; 0 sends all.
	CandidateLimit int
	// Progress receives human-readable status lines. May be nil.
	Progress func(string)
}

type Stats struct {
	Rows          int
	Matched       int
	NoCategory    int
	NoProduct     int
	OracleErrors  int
	DescribeFails int
	Usage         llm.Usage
}

// Matcher uses two oracle slots: describer writes generated titles and
// matcher answers the category and product questions.
type Matcher struct {
	describer llm.Client
	matcher   llm.Client
	opts      Options
	threshold float64

	indexedTable *domain.CategorizedTable
	indexes      map[domain.Category]*tfidfIndex
}

func NewMatcher(describer, matcher llm.Client, opts Options) *Matcher {
	threshold := matching.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	return &Matcher{
		describer: describer,
		matcher:   matcher,
		opts:      opts,
		threshold: threshold,
		indexes:   make(map[domain.Category]*tfidfIndex),
	}
}

// MatchAll returns one record per title, in input order. Oracle failures
// degrade to sentinel values; only context cancellation is returned.
func (m *Matcher) MatchAll(ctx context.Context, table *domain.CategorizedTable, titles []string) ([]domain.ResultRecord, Stats, error) {
	records := make([]domain.ResultRecord, 0, len(titles))
	var stats Stats
	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		m.progress("Matching sample %d/%d", i+1, len(titles))
		rec, outcome := m.match(ctx, table, title)
		records = append(records, rec)

		stats.Rows++
		stats.Usage.Add(outcome.usage)
		if outcome.describeFailed {
			stats.DescribeFails++
		}
		switch outcome.kind {
		case outcomeMatched:
			stats.Matched++
		case outcomeNoCategory:
			stats.NoCategory++
		case outcomeNoProduct:
			stats.NoProduct++
		case outcomeOracleError:
			stats.OracleErrors++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	log.Printf("samplematch finished rows=%d matched=%d no_category=%d no_product=%d errors=%d", stats.Rows, stats.Matched, stats.NoCategory, stats.NoProduct, stats.OracleErrors)
	return records, stats, nil
}

// Match processes a single sample title.
func (m *Matcher) Match(ctx context.Context, table *domain.CategorizedTable, title string) domain.ResultRecord {
	rec, _ := m.match(ctx, table, title)
	return rec
}

type outcomeKind int

const (
	outcomeMatched outcomeKind = iota
	outcomeNoCategory
	outcomeNoProduct
	outcomeOracleError
)

type rowOutcome struct {
	kind           outcomeKind
	describeFailed bool
	usage          llm.Usage
}

func (m *Matcher) match(ctx context.Context, table *domain.CategorizedTable, title string) (domain.ResultRecord, rowOutcome) {
	var outcome rowOutcome
	rec := domain.ResultRecord{SourceTitle: title}
	if strings.TrimSpace(title) == "" {
		rec.MatchedProduct = domain.NoMatchFound
		outcome.kind = outcomeNoCategory
		return rec, outcome
	}

	resp, err := m.describer.Complete(ctx, llm.DescribePrompt(textnorm.CleanTitle(title)))
	outcome.usage.Add(resp.Usage)
	if err != nil {
		outcome.describeFailed = true
		rec.GeneratedTitle = fmt.Sprintf("Error occurred: %v", err)
	} else {
		rec.GeneratedTitle = textnorm.RemoveFiller(resp.Text)
	}

	cats := table.Categories()
	answer := domain.CategoryUnknown.String()
	if len(cats) > 0 {
		resp, err = m.matcher.Complete(ctx, llm.CategoryPrompt(title, cats))
		outcome.usage.Add(resp.Usage)
		if err != nil {
			log.Printf("samplematch category oracle error title=%q: %v", title, err)
		} else {
			answer = resp.Text
		}
	}

	category, ok := matching.FindCategory(answer, cats)
	if !ok {
		log.Printf("samplematch no category title=%q answer=%q", title, answer)
		rec.MatchedProduct = domain.NoMatchFound
		outcome.kind = outcomeNoCategory
		return rec, outcome
	}
	rec.Category = category

	candidates := m.candidates(table, category, title)
	resp, err = m.matcher.Complete(ctx, llm.ProductPrompt(title, candidates))
	outcome.usage.Add(resp.Usage)
	if err != nil {
		log.Printf("samplematch product oracle error title=%q category=%q: %v", title, category, err)
		rec.MatchedProduct = domain.ErrorInProcessing
		outcome.kind = outcomeOracleError
		return rec, outcome
	}

	product, ok := matching.FindProduct(resp.Text, candidates, m.threshold)
	if !ok {
		log.Printf("samplematch no product title=%q category=%q answer=%q", title, category, resp.Text)
		rec.MatchedProduct = domain.NoMatchFound
		outcome.kind = outcomeNoProduct
		return rec, outcome
	}
	log.Printf("samplematch matched title=%q category=%q product=%q", title, category, product)
	rec.MatchedProduct = product
	outcome.kind = outcomeMatched
	return rec, outcome
}

func (m *Matcher) candidates(table *domain.CategorizedTable, category domain.Category, title string) []string {
	products := table.Products(category)
	if m.opts.CandidateLimit <= 0 || len(products) <= m.opts.CandidateLimit {
		return products
	}
	if m.indexedTable != table {
		m.indexedTable = table
		m.indexes = make(map[domain.Category]*tfidfIndex)
	}
	idx, ok := m.indexes[category]
	if !ok {
		idx = buildTFIDFIndex(products)
		m.indexes[category] = idx
	}
	return idx.shortlist(textnorm.CleanTitle(title), m.opts.CandidateLimit)
}

func (m *Matcher) progress(format string, args ...any) {
	if m.opts.Progress != nil {
		m.opts.Progress(fmt.Sprintf(format, args...))
	}
}
