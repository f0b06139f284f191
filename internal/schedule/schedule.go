// Package schedule repeats a job on a standard 5-field cron expression.
package schedule

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Parse accepts "minute hour day-of-month month day-of-week", for example
// "0 9 * * 1-5" for weekdays at 9am.
func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Start calls fn at every activation of spec in loc until ctx is done.
// Runs never overlap: the next activation is computed after fn returns.
func Start(ctx context.Context, spec string, loc *time.Location, fn func(context.Context)) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	log.Printf("schedule started (cron: %s, tz: %s)", strings.TrimSpace(spec), loc)

	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("schedule next run at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("schedule stopped: %v", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
		fn(ctx)
	}
}
