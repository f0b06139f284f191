// Package pipeline runs the two phases end to end: read the input tables,
// categorize the products (or reuse a previous table), match every sample
// and write the output artifacts.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"productmatch/internal/categorize"
	"productmatch/internal/domain"
	"productmatch/internal/integrations/llm"
	"productmatch/internal/samplematch"
	"productmatch/internal/sheet"
	"productmatch/internal/storage/sqlite"
)

var (
	ErrNoCategorizedTable = errors.New("no previously categorized product table found")
	ErrNoProducts         = errors.New("product table contains no products")
	ErrNoSamples          = errors.New("sample table contains no rows")
)

// Where the categorized table of a run came from.
const (
	SourceOracle       = "oracle"
	SourcePreviousFile = "previous-file"
	SourcePreviousDB   = "previous-db"
)

type Job struct {
	ProductFile     string
	SampleFile      string
	CategorizedFile string
	OutputFile      string
	UsePrevious     bool
	// CategorizeOnly stops after phase 1 and writes only the categorized table.
	CategorizeOnly bool
}

type Summary struct {
	RunID             string
	CategorizedSource string
	Products          int
	Categorized       int
	Uncategorized     int
	Iterations        int
	Samples           int
	Matched           int
	OutputFile        string
	CategorizedFile   string
	Usage             llm.Usage
	Duration          time.Duration
}

func (s Summary) String() string {
	var b strings.Builder
	switch s.CategorizedSource {
	case SourceOracle:
		fmt.Fprintf(&b, "Categorized %d/%d products in %d pass(es)", s.Categorized, s.Products, s.Iterations)
	default:
		fmt.Fprintf(&b, "Reused %d categorized products (%s)", s.Categorized, s.CategorizedSource)
	}
	if s.OutputFile != "" {
		fmt.Fprintf(&b, "; matched %d/%d samples; output saved to %s", s.Matched, s.Samples, s.OutputFile)
	}
	fmt.Fprintf(&b, "; tokens in=%d out=%d", s.Usage.InputTokens, s.Usage.OutputTokens)
	return b.String()
}

type Options struct {
	Categorize categorize.Options
	Match      samplematch.Options
}

// Runner holds the two oracle slots: primary answers batch categorization
// and description requests, match answers the per-row category and product
// questions. DB is optional.
type Runner struct {
	primary llm.Client
	match   llm.Client
	db      *sql.DB
	opts    Options
	now     func() time.Time
}

func NewRunner(primary, match llm.Client, db *sql.DB, opts Options) *Runner {
	if match == nil {
		match = primary
	}
	return &Runner{primary: primary, match: match, db: db, opts: opts, now: time.Now}
}

type inputs struct {
	products []string
	samples  []string
	table    *domain.CategorizedTable
	source   string
}

// Run executes job. Inputs are validated before any oracle call and nothing
// is written unless every phase succeeds. progress may be nil.
func (r *Runner) Run(ctx context.Context, job Job, progress func(string)) (Summary, error) {
	if progress == nil {
		progress = func(string) {}
	}
	started := r.now()
	summary := Summary{RunID: uuid.NewString()}
	log.Printf("pipeline run=%s start use_previous=%t categorize_only=%t", summary.RunID, job.UsePrevious, job.CategorizeOnly)

	in, err := r.loadInputs(job, progress)
	if err != nil {
		log.Printf("pipeline run=%s input error: %v", summary.RunID, err)
		return summary, err
	}
	summary.Products = len(in.products)
	summary.Samples = len(in.samples)

	run := domain.RunRecord{
		ID:           summary.RunID,
		StartedAt:    started.UTC(),
		Status:       domain.RunStatusRunning,
		UsedPrevious: in.table != nil,
		Products:     len(in.products),
		Samples:      len(in.samples),
	}
	r.auditStart(run)

	summary, err = r.execute(ctx, job, in, summary, progress)
	summary.Duration = r.now().Sub(started)

	run.FinishedAt = r.now().UTC()
	run.CategorizedSource = summary.CategorizedSource
	run.Categorized = summary.Categorized
	run.Iterations = summary.Iterations
	run.Matched = summary.Matched
	run.InputTokens = summary.Usage.InputTokens
	run.OutputTokens = summary.Usage.OutputTokens
	run.OutputPath = summary.OutputFile
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		log.Printf("pipeline run=%s failed after %s: %v", summary.RunID, summary.Duration.Round(time.Millisecond), err)
	} else {
		run.Status = domain.RunStatusSucceeded
		log.Printf("pipeline run=%s done in %s: %s", summary.RunID, summary.Duration.Round(time.Millisecond), summary)
	}
	r.auditFinish(run)
	return summary, err
}

func (r *Runner) execute(ctx context.Context, job Job, in inputs, summary Summary, progress func(string)) (Summary, error) {
	table := in.table
	summary.CategorizedSource = in.source
	if table == nil {
		progress(fmt.Sprintf("Categorizing %d products", len(in.products)))
		opts := r.opts.Categorize
		opts.Progress = progress
		var stats categorize.Stats
		var err error
		table, stats, err = categorize.NewAssigner(r.primary, opts).Assign(ctx, in.products)
		summary.Usage.Add(stats.Usage)
		summary.Iterations = stats.Iterations
		summary.Uncategorized = len(stats.Uncategorized)
		if err != nil {
			return summary, fmt.Errorf("categorize products: %w", err)
		}
		summary.CategorizedSource = SourceOracle
	}
	summary.Categorized = table.Len()

	var records []domain.ResultRecord
	if !job.CategorizeOnly {
		progress(fmt.Sprintf("Matching %d samples against %d categorized products", len(in.samples), table.Len()))
		opts := r.opts.Match
		opts.Progress = progress
		var stats samplematch.Stats
		var err error
		records, stats, err = samplematch.NewMatcher(r.primary, r.match, opts).MatchAll(ctx, table, in.samples)
		summary.Usage.Add(stats.Usage)
		summary.Matched = stats.Matched
		if err != nil {
			return summary, fmt.Errorf("match samples: %w", err)
		}
	}

	// Both artifacts are staged before either replaces its destination.
	var staged []*sheet.Staged
	defer func() {
		for _, st := range staged {
			st.Discard()
		}
	}()
	if summary.CategorizedSource == SourceOracle {
		st, err := sheet.StageCategorized(job.CategorizedFile, table)
		if err != nil {
			return summary, fmt.Errorf("save categorized table: %w", err)
		}
		staged = append(staged, st)
	}
	if !job.CategorizeOnly {
		st, err := sheet.StageResults(job.OutputFile, records)
		if err != nil {
			return summary, fmt.Errorf("save results: %w", err)
		}
		staged = append(staged, st)
	}
	for _, st := range staged {
		if err := st.Commit(); err != nil {
			return summary, fmt.Errorf("save %s: %w", st.Path(), err)
		}
		switch st.Path() {
		case job.CategorizedFile:
			summary.CategorizedFile = st.Path()
		case job.OutputFile:
			summary.OutputFile = st.Path()
		}
	}

	if summary.CategorizedSource == SourceOracle && r.db != nil {
		if err := sqlite.SaveCategorizedTable(r.db, table); err != nil {
			log.Printf("pipeline run=%s store categorized table error: %v", summary.RunID, err)
		}
	}
	return summary, nil
}

// loadInputs reads and validates every input the job needs.
func (r *Runner) loadInputs(job Job, progress func(string)) (inputs, error) {
	var in inputs

	if !job.CategorizeOnly {
		if strings.TrimSpace(job.SampleFile) == "" {
			return in, fmt.Errorf("sample file is required")
		}
		if strings.TrimSpace(job.OutputFile) == "" {
			return in, fmt.Errorf("output file is required")
		}
		progress("Loading sample table")
		samples, err := sheet.ReadColumn(job.SampleFile)
		if err != nil {
			return in, fmt.Errorf("read samples: %w", err)
		}
		if len(samples) == 0 {
			return in, fmt.Errorf("%s: %w", job.SampleFile, ErrNoSamples)
		}
		in.samples = samples
	}

	if job.UsePrevious {
		progress("Loading previously categorized products")
		table, source, err := r.loadPrevious(job.CategorizedFile)
		if err != nil {
			return in, err
		}
		in.table = table
		in.source = source
		return in, nil
	}

	if strings.TrimSpace(job.CategorizedFile) == "" {
		return in, fmt.Errorf("categorized file is required")
	}
	if strings.TrimSpace(job.ProductFile) == "" {
		return in, fmt.Errorf("product file is required")
	}
	progress("Loading product table")
	rows, err := sheet.ReadColumn(job.ProductFile)
	if err != nil {
		return in, fmt.Errorf("read products: %w", err)
	}
	for _, p := range rows {
		if p != "" {
			in.products = append(in.products, p)
		}
	}
	if len(in.products) == 0 {
		return in, fmt.Errorf("%s: %w", job.ProductFile, ErrNoProducts)
	}
	return in, nil
}

// loadPrevious prefers the categorized file and falls back to the store.
func (r *Runner) loadPrevious(path string) (*domain.CategorizedTable, string, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			table, err := sheet.ReadCategorized(path)
			if err != nil {
				return nil, "", fmt.Errorf("read categorized table: %w", err)
			}
			if table.Len() > 0 {
				return table, SourcePreviousFile, nil
			}
			log.Printf("pipeline categorized file %s has no valid rows", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("stat categorized table: %w", err)
		}
	}
	if r.db != nil {
		table, err := sqlite.LoadCategorizedTable(r.db)
		if err != nil {
			return nil, "", fmt.Errorf("load stored categorized table: %w", err)
		}
		if table.Len() > 0 {
			return table, SourcePreviousDB, nil
		}
	}
	return nil, "", ErrNoCategorizedTable
}

func (r *Runner) auditStart(run domain.RunRecord) {
	if r.db == nil {
		return
	}
	if err := sqlite.InsertRun(r.db, run); err != nil {
		log.Printf("pipeline run=%s audit insert error: %v", run.ID, err)
	}
}

func (r *Runner) auditFinish(run domain.RunRecord) {
	if r.db == nil {
		return
	}
	if err := sqlite.FinishRun(r.db, run); err != nil {
		log.Printf("pipeline run=%s audit finish error: %v", run.ID, err)
	}
}
