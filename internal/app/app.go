package app

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"productmatch/internal/categorize"
	"productmatch/internal/config"
	"productmatch/internal/httpx"
	"productmatch/internal/integrations/llm"
	"productmatch/internal/notify"
	"productmatch/internal/pipeline"
	"productmatch/internal/samplematch"
	"productmatch/internal/schedule"
	"productmatch/internal/storage/sqlite"
)

const usage = `usage: productmatch [command] [flags]

commands:
  run         categorize products (or reuse a previous table) and match samples (default)
  categorize  categorize products only and save the categorized table
  schedule    repeat "run" on run_schedule
  runs        list recent runs
`

func Main() {
	os.Exit(Run(os.Args[1:], os.Stdout))
}

// Run executes one command and returns the process exit code.
func Run(args []string, out io.Writer) int {
	command := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run", "categorize", "schedule", "runs":
	case "help":
		fmt.Fprint(out, usage)
		return 0
	default:
		fmt.Fprintf(out, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	var cfg config.Config
	if command == "runs" {
		cfg = config.LoadStoreConfig()
	} else {
		cfg = config.LoadConfig()
	}
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.ProductFile, "products", cfg.ProductFile, "product table (.xlsx or .csv, one product per row)")
	fs.StringVar(&cfg.SampleFile, "samples", cfg.SampleFile, "sample table (.xlsx or .csv, one title per row)")
	fs.StringVar(&cfg.CategorizedFile, "categorized", cfg.CategorizedFile, "categorized product table to write or reuse")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "output table")
	fs.BoolVar(&cfg.UsePrevious, "use-previous", cfg.UsePrevious, "reuse the previously categorized table instead of categorizing")
	limit := fs.Int("limit", 20, "number of runs to list (runs command)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. %s ExternalHTTPTimeout=%s Timezone=%s", cfg, appliedHTTPTimeout, cfg.Location)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Printf("Failed to init database: %v", err)
		return 1
	}
	defer db.Close()
	log.Printf("Database initialized at %s", cfg.DBPath)

	if command == "runs" {
		return listRuns(db, *limit, out)
	}

	runner, err := newRunner(cfg, db)
	if err != nil {
		log.Printf("Failed to set up oracles: %v", err)
		return 1
	}
	notifier := notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannelID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := pipeline.Job{
		ProductFile:     cfg.ProductFile,
		SampleFile:      cfg.SampleFile,
		CategorizedFile: cfg.CategorizedFile,
		OutputFile:      cfg.OutputFile,
		UsePrevious:     cfg.UsePrevious,
		CategorizeOnly:  command == "categorize",
	}

	if command == "schedule" {
		if cfg.RunSchedule == "" {
			log.Printf("run_schedule is not set; nothing to schedule")
			return 2
		}
		err := schedule.Start(ctx, cfg.RunSchedule, cfg.Location, func(ctx context.Context) {
			runOnce(ctx, runner, job, notifier, out)
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("Scheduler error: %v", err)
			return 1
		}
		return 0
	}

	if !runOnce(ctx, runner, job, notifier, out) {
		return 1
	}
	return 0
}

func newRunner(cfg config.Config, db *sql.DB) (*pipeline.Runner, error) {
	primarySettings := cfg.Primary()
	primarySettings.HTTPClient = httpx.ExternalHTTPClient()
	primary, err := llm.NewClient(primarySettings)
	if err != nil {
		return nil, fmt.Errorf("primary oracle: %w", err)
	}
	matchSettings := cfg.Match()
	matchSettings.HTTPClient = httpx.ExternalHTTPClient()
	match, err := llm.NewClient(matchSettings)
	if err != nil {
		return nil, fmt.Errorf("match oracle: %w", err)
	}

	var glossary *categorize.Glossary
	if cfg.LLMGlossaryPath != "" {
		glossary, err = categorize.LoadGlossary(cfg.LLMGlossaryPath)
		if err != nil {
			return nil, err
		}
		log.Printf("Glossary loaded from %s terms=%d", cfg.LLMGlossaryPath, len(glossary.Terms))
	}

	return pipeline.NewRunner(primary, match, db, pipeline.Options{
		Categorize: categorize.Options{
			BatchSize:     cfg.LLMBatchSize,
			MaxIterations: cfg.LLMMaxIterations,
			Backoff:       cfg.RetryBackoff(),
			Glossary:      glossary,
		},
		Match: samplematch.Options{
			Threshold:      cfg.LLMMatchThreshold,
			CandidateLimit: cfg.LLMCandidateLimit,
		},
	}), nil
}

// runOnce drives one run to its terminal event and reports whether it
// succeeded.
func runOnce(ctx context.Context, runner *pipeline.Runner, job pipeline.Job, notifier *notify.SlackNotifier, out io.Writer) bool {
	ok := false
	for ev := range pipeline.Start(ctx, runner, job) {
		switch ev.Kind {
		case pipeline.EventProgress:
			fmt.Fprintln(out, ev.Message)
			continue
		case pipeline.EventFinished:
			ok = true
			fmt.Fprintf(out, "Done: %s\n", ev.Message)
		case pipeline.EventFailed:
			fmt.Fprintf(out, "Error: %s\n", ev.Message)
		}
		if err := notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
			log.Printf("Run notification error: %v", err)
		}
	}
	return ok
}

func listRuns(db *sql.DB, limit int, out io.Writer) int {
	runs, err := sqlite.RecentRuns(db, limit)
	if err != nil {
		log.Printf("Failed to list runs: %v", err)
		return 1
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tSOURCE\tCATEGORIZED\tMATCHED\tTOKENS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d/%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status, r.CategorizedSource,
			r.Categorized, r.Products, r.Matched, r.Samples, r.InputTokens+r.OutputTokens, r.Error)
	}
	if err := tw.Flush(); err != nil {
		log.Printf("Failed to write runs: %v", err)
		return 1
	}
	return 0
}
