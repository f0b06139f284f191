package categorize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"productmatch/internal/domain"
	"productmatch/internal/integrations/llm"
)

func TestParseAssignmentsWellFormed(t *testing.T) {
	response := strings.Join([]string{
		"- Disc frana: Sistem de frânare",
		"Amortizor: Suspensie și direcție",
		"",
		"  Bujie :  Componente motor  ",
		"Disc frana: Sistem de frânare",
	}, "\n")

	got, rejected := ParseAssignments(response)
	if len(rejected) != 0 {
		t.Fatalf("expected no rejected lines, got %v", rejected)
	}
	want := map[string]domain.Category{
		"Disc frana": domain.CategoryBraking,
		"Amortizor":  domain.CategorySuspensionSteering,
		"Bujie":      domain.CategoryEngine,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(got), got)
	}
	for product, c := range want {
		if got[product] != c {
			t.Fatalf("got[%q] = %v, want %v", product, got[product], c)
		}
		if !got[product].Valid() {
			t.Fatalf("parsed category for %q is not in taxonomy", product)
		}
	}
}

func TestParseAssignmentsRejectsBadLines(t *testing.T) {
	response := strings.Join([]string{
		"Disc frana: Sistem de frânare",
		"Filtru aer: Filtre",
		"just some prose without separator",
		": Diverse",
		"Curea distributie:",
		"Toba: Sistem de evacuare",
	}, "\n")

	got, rejected := ParseAssignments(response)
	if len(got) != 2 {
		t.Fatalf("expected 2 retained entries, got %v", got)
	}
	if got["Disc frana"] != domain.CategoryBraking || got["Toba"] != domain.CategoryExhaust {
		t.Fatalf("well-formed lines changed: %v", got)
	}
	if _, ok := got["Filtru aer"]; ok {
		t.Fatal("line with invalid category must be excluded")
	}
	if len(rejected) != 4 {
		t.Fatalf("expected 4 rejected lines, got %d: %v", len(rejected), rejected)
	}
	if rejected[0].Line != 2 || !strings.Contains(rejected[0].Reason, "invalid category") {
		t.Fatalf("unexpected first rejection: %+v", rejected[0])
	}
	if rejected[1].Reason != "no ':' found" {
		t.Fatalf("unexpected second rejection: %+v", rejected[1])
	}
}

func TestParseAssignmentsSplitsOnFirstColon(t *testing.T) {
	got, _ := ParseAssignments("Senzor ABS: fata: Sistem electric și senzori")
	if len(got) != 0 {
		t.Fatalf("category after first colon is not a taxonomy label, expected rejection, got %v", got)
	}
}

func TestBatches(t *testing.T) {
	products := make([]string, 120)
	for i := range products {
		products[i] = fmt.Sprintf("p%d", i)
	}
	batches := Batches(products, 50)
	if len(batches) != 3 || len(batches[0]) != 50 || len(batches[2]) != 20 {
		t.Fatalf("unexpected batch sizes: %d", len(batches))
	}
	if batches[2][0] != "p100" {
		t.Fatalf("batches must keep order, got %q", batches[2][0])
	}
	if got := Batches(nil, 50); len(got) != 0 {
		t.Fatalf("expected no batches, got %v", got)
	}
}

// scriptedOracle classifies products according to answer, which returns the
// category label for a product or "" to leave it out.
type scriptedOracle struct {
	calls  int
	answer func(call int, product string) string
	fail   func(call int) error
}

func (o *scriptedOracle) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	o.calls++
	if o.fail != nil {
		if err := o.fail(o.calls); err != nil {
			return llm.Response{}, err
		}
	}
	var lines []string
	for _, line := range strings.Split(req.Prompt, "\n") {
		product, ok := strings.CutPrefix(line, "- ")
		if !ok {
			continue
		}
		if label := o.answer(o.calls, product); label != "" {
			lines = append(lines, product+": "+label)
		}
	}
	return llm.Response{Text: strings.Join(lines, "\n"), Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func newTestAssigner(oracle llm.Client, opts Options) (*Assigner, *[]time.Duration) {
	a := NewAssigner(oracle, opts)
	var slept []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return a, &slept
}

func products(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Produs %03d", i)
	}
	return out
}

func TestAssignFullClassificationInOneIteration(t *testing.T) {
	oracle := &scriptedOracle{answer: func(int, string) string { return "Diverse" }}
	a, _ := newTestAssigner(oracle, Options{})

	input := products(120)
	table, stats, err := a.Assign(context.Background(), input)
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if stats.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", stats.Iterations)
	}
	if oracle.calls != 3 {
		t.Fatalf("expected 3 batch calls, got %d", oracle.calls)
	}
	if table.Len() != len(input) {
		t.Fatalf("expected %d categorized, got %d", len(input), table.Len())
	}
	for i, e := range table.Entries() {
		if e.Product != input[i] {
			t.Fatalf("table order differs at %d: %q vs %q", i, e.Product, input[i])
		}
	}
	if stats.Usage.InputTokens != 30 {
		t.Fatalf("expected usage to be summed, got %+v", stats.Usage)
	}
}

func TestAssignEmptyResponsesRunMaxIterations(t *testing.T) {
	oracle := &scriptedOracle{answer: func(int, string) string { return "" }}
	a, slept := newTestAssigner(oracle, Options{MaxIterations: 4, Backoff: 2 * time.Second})

	table, stats, err := a.Assign(context.Background(), products(10))
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if oracle.calls != 4 || stats.Iterations != 4 {
		t.Fatalf("expected exactly 4 attempts, got calls=%d iterations=%d", oracle.calls, stats.Iterations)
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d entries", table.Len())
	}
	if len(stats.Uncategorized) != 10 {
		t.Fatalf("expected 10 uncategorized, got %d", len(stats.Uncategorized))
	}
	if stats.OracleFailures != 4 {
		t.Fatalf("expected 4 oracle failures, got %d", stats.OracleFailures)
	}
	for _, d := range *slept {
		if d != 2*time.Second {
			t.Fatalf("unexpected backoff %s", d)
		}
	}
}

func TestAssignOracleErrorsRetryBatch(t *testing.T) {
	oracle := &scriptedOracle{
		answer: func(int, string) string { return "Componente motor" },
		fail: func(call int) error {
			if call == 1 {
				return errors.New("429 rate limited")
			}
			return nil
		},
	}
	a, _ := newTestAssigner(oracle, Options{})

	table, stats, err := a.Assign(context.Background(), products(5))
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if stats.Iterations != 2 || table.Len() != 5 {
		t.Fatalf("expected recovery on second pass, iterations=%d categorized=%d", stats.Iterations, table.Len())
	}
}

func TestAssignPartialProgressCarriesRemainder(t *testing.T) {
	oracle := &scriptedOracle{answer: func(call int, product string) string {
		if call == 1 && strings.HasSuffix(product, "1") {
			return "Sistem de frânare"
		}
		if call == 1 {
			return "Not a category"
		}
		return "Diverse"
	}}
	a, _ := newTestAssigner(oracle, Options{})

	input := []string{"Produs 1", "Produs 2", "Produs 3"}
	table, stats, err := a.Assign(context.Background(), input)
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if stats.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", stats.Iterations)
	}
	if c, _ := table.Get("Produs 1"); c != domain.CategoryBraking {
		t.Fatalf("first pass result lost: %v", c)
	}
	if c, _ := table.Get("Produs 3"); c != domain.CategoryMisc {
		t.Fatalf("second pass result missing: %v", c)
	}
	if stats.RejectedLines != 2 {
		t.Fatalf("expected 2 rejected lines, got %d", stats.RejectedLines)
	}
}

func TestAssignStopsWithoutProgress(t *testing.T) {
	oracle := &scriptedOracle{answer: func(call int, product string) string {
		if product == "Stubborn" {
			return "Hard to say"
		}
		return "Diverse"
	}}
	a, _ := newTestAssigner(oracle, Options{MaxIterations: 4})

	table, stats, err := a.Assign(context.Background(), []string{"Easy", "Stubborn"})
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if stats.Iterations != 2 {
		t.Fatalf("expected stop after the pass with no progress, got %d iterations", stats.Iterations)
	}
	if table.Len() != 1 || len(stats.Uncategorized) != 1 || stats.Uncategorized[0] != "Stubborn" {
		t.Fatalf("unexpected outcome table=%d uncategorized=%v", table.Len(), stats.Uncategorized)
	}
}

func TestAssignFiltersBlankAndDuplicateProducts(t *testing.T) {
	oracle := &scriptedOracle{answer: func(int, string) string { return "Diverse" }}
	a, _ := newTestAssigner(oracle, Options{})

	table, stats, err := a.Assign(context.Background(), []string{"", "A", "  ", "A", "B"})
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if stats.Requested != 2 || table.Len() != 2 {
		t.Fatalf("expected 2 distinct products, requested=%d table=%d", stats.Requested, table.Len())
	}
}

func TestAssignMatchesProductsRegardlessOfCase(t *testing.T) {
	oracle := llmFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Text: "- filtru  ulei: Diverse"}, nil
	})
	a, _ := newTestAssigner(oracle, Options{})

	table, _, err := a.Assign(context.Background(), []string{"FILTRU Ulei"})
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if c, ok := table.Get("FILTRU Ulei"); !ok || c != domain.CategoryMisc {
		t.Fatalf("expected product echoed with different spelling to be matched, got %v %v", c, ok)
	}
}

func TestAssignContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	oracle := llmFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		cancel()
		return llm.Response{}, ctx.Err()
	})
	a, _ := newTestAssigner(oracle, Options{})
	if _, _, err := a.Assign(ctx, []string{"A"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAssignUsesGlossary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	content := `
terms:
  - phrase: "placute"
    category: "Sistem de frânare"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write glossary: %v", err)
	}
	glossary, err := LoadGlossary(path)
	if err != nil {
		t.Fatalf("LoadGlossary error: %v", err)
	}

	oracle := &scriptedOracle{answer: func(int, string) string { return "Diverse" }}
	a, _ := newTestAssigner(oracle, Options{Glossary: glossary})
	table, stats, err := a.Assign(context.Background(), []string{"Placute frana fata", "Odorizant"})
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if stats.FromGlossary != 1 {
		t.Fatalf("expected 1 glossary hit, got %d", stats.FromGlossary)
	}
	if c, _ := table.Get("Placute frana fata"); c != domain.CategoryBraking {
		t.Fatalf("glossary category not applied: %v", c)
	}
	if c, _ := table.Get("Odorizant"); c != domain.CategoryMisc {
		t.Fatalf("oracle category not applied: %v", c)
	}
}

func TestLoadGlossaryRejectsUnknownCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	if err := os.WriteFile(path, []byte("terms:\n  - phrase: x\n    category: Filtre\n"), 0o644); err != nil {
		t.Fatalf("write glossary: %v", err)
	}
	if _, err := LoadGlossary(path); err == nil {
		t.Fatal("expected error for unknown glossary category")
	}
}

type llmFunc func(ctx context.Context, req llm.Request) (llm.Response, error)

func (f llmFunc) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return f(ctx, req)
}
