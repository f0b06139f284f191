// Package categorize assigns raw product names to taxonomy categories by
// repeatedly asking a classification oracle about whatever is still
// uncategorized.
package categorize

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"productmatch/internal/domain"
	"productmatch/internal/integrations/llm"
	"productmatch/internal/textnorm"
)

const (
	DefaultBatchSize     = 50
	DefaultMaxIterations = 4
	DefaultBackoff       = 2 * time.Second
)

type Options struct {
	BatchSize     int
	MaxIterations int
	Backoff       time.Duration
	Glossary      *Glossary
	// Progress receives human-readable status lines. May be nil.
	Progress func(string)
}

type Stats struct {
	Requested      int
	Categorized    int
	FromGlossary   int
	Iterations     int
	OracleCalls    int
	OracleFailures int
	RejectedLines  int
	Uncategorized  []string
	Usage          llm.Usage
}

type Assigner struct {
	oracle llm.Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewAssigner(oracle llm.Client, opts Options) *Assigner {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Assigner{oracle: oracle, opts: opts, sleep: sleepContext}
}

// Assign categorizes products. Blank and repeated names are dropped first.
// Products the oracle never classifies are left out of the table and listed
// in Stats.Uncategorized. Only context cancellation is returned as an error.
func (a *Assigner) Assign(ctx context.Context, products []string) (*domain.CategorizedTable, Stats, error) {
	table := domain.NewCategorizedTable()
	remaining := distinct(products)
	stats := Stats{Requested: len(remaining)}

	if a.opts.Glossary != nil {
		var rest []string
		for _, p := range remaining {
			if c, ok := a.opts.Glossary.Lookup(p); ok {
				table.Set(p, c)
				stats.FromGlossary++
				continue
			}
			rest = append(rest, p)
		}
		if stats.FromGlossary > 0 {
			log.Printf("categorize glossary assigned=%d remaining=%d", stats.FromGlossary, len(rest))
		}
		remaining = rest
	}

	for len(remaining) > 0 && stats.Iterations < a.opts.MaxIterations {
		stats.Iterations++
		batches := Batches(remaining, a.opts.BatchSize)
		var next []string
		answered := false

		for i, batch := range batches {
			a.progress("Categorizing batch %d/%d (pass %d, %d products left)", i+1, len(batches), stats.Iterations, len(remaining))
			stats.OracleCalls++
			resp, err := a.oracle.Complete(ctx, llm.CategorizePrompt(batch))
			stats.Usage.Add(resp.Usage)
			if err == nil && strings.TrimSpace(resp.Text) == "" {
				err = fmt.Errorf("empty response")
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, stats, ctxErr
				}
				stats.OracleFailures++
				log.Printf("categorize batch=%d iteration=%d items=%d failed: %v", i+1, stats.Iterations, len(batch), err)
				next = append(next, batch...)
				if err := a.sleep(ctx, a.opts.Backoff); err != nil {
					return nil, stats, err
				}
				continue
			}
			answered = true

			parsed, rejected := ParseAssignments(resp.Text)
			stats.RejectedLines += len(rejected)
			byKey := make(map[string]domain.Category, len(parsed))
			for product, c := range parsed {
				byKey[textnorm.Key(product)] = c
			}
			classified := 0
			for _, product := range batch {
				c, ok := parsed[product]
				if !ok {
					c, ok = byKey[textnorm.Key(product)]
				}
				if ok && table.Set(product, c) {
					classified++
					continue
				}
				next = append(next, product)
			}
			log.Printf("categorize batch=%d iteration=%d items=%d classified=%d rejected_lines=%d", i+1, stats.Iterations, len(batch), classified, len(rejected))
		}

		if answered && slices.Equal(next, remaining) {
			log.Printf("categorize iteration=%d made no progress, stopping with %d uncategorized", stats.Iterations, len(next))
			break
		}
		remaining = next
		if len(remaining) > 0 && stats.Iterations < a.opts.MaxIterations {
			if err := a.sleep(ctx, a.opts.Backoff); err != nil {
				return nil, stats, err
			}
		}
	}

	stats.Categorized = table.Len()
	stats.Uncategorized = remaining
	if len(remaining) > 0 {
		log.Printf("categorize finished iterations=%d categorized=%d uncategorized=%d", stats.Iterations, stats.Categorized, len(remaining))
		for _, p := range remaining {
			log.Printf("categorize uncategorized product=%q", p)
		}
	} else {
		log.Printf("categorize finished iterations=%d categorized=%d", stats.Iterations, stats.Categorized)
	}
	return table, stats, nil
}

func (a *Assigner) progress(format string, args ...any) {
	if a.opts.Progress != nil {
		a.opts.Progress(fmt.Sprintf(format, args...))
	}
}

func distinct(products []string) []string {
	seen := make(map[string]bool, len(products))
	var out []string
	for _, p := range products {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
