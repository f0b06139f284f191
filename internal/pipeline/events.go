package pipeline

import "context"

type EventKind int

const (
	EventProgress EventKind = iota
	EventFinished
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

type Event struct {
	Kind    EventKind
	Message string
	Summary Summary
	Err     error
}

// Terminal reports whether e ends the run.
func (e Event) Terminal() bool {
	return e.Kind == EventFinished || e.Kind == EventFailed
}

// Start runs job on a background goroutine. The returned channel carries
// progress events followed by exactly one EventFinished or EventFailed, and
// is closed afterwards. Callers must drain it.
func Start(ctx context.Context, r *Runner, job Job) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		summary, err := r.Run(ctx, job, func(msg string) {
			events <- Event{Kind: EventProgress, Message: msg}
		})
		if err != nil {
			events <- Event{Kind: EventFailed, Message: err.Error(), Summary: summary, Err: err}
			return
		}
		events <- Event{Kind: EventFinished, Message: summary.String(), Summary: summary}
	}()
	return events
}
