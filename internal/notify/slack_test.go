package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"productmatch/internal/pipeline"
)

func newMockSlackAPI(t *testing.T) (string, *int, *string) {
	t.Helper()

	postCalls := 0
	lastText := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		switch path {
		case "chat.postMessage":
			_ = r.ParseForm()
			postCalls++
			lastText = r.Form.Get("text")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C_RUNS", "ts": "1.23"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "unknown_method"})
		}
	}))
	t.Cleanup(server.Close)
	return server.URL + "/api/", &postCalls, &lastText
}

func TestNewSlackNotifierDisabledWithoutCredentials(t *testing.T) {
	if n := NewSlackNotifier("", "C1"); n != nil {
		t.Fatalf("expected nil notifier without token")
	}
	if n := NewSlackNotifier("xoxb-test", " "); n != nil {
		t.Fatalf("expected nil notifier without channel")
	}
	var n *SlackNotifier
	if err := n.Notify(context.Background(), pipeline.Event{Kind: pipeline.EventFailed}); err != nil {
		t.Fatalf("nil notifier should ignore events, got %v", err)
	}
}

func TestNotifyPostsTerminalEventsOnly(t *testing.T) {
	apiURL, calls, lastText := newMockSlackAPI(t)
	n := NewSlackNotifier("xoxb-test", "C_RUNS", slack.OptionAPIURL(apiURL))

	if err := n.Notify(context.Background(), pipeline.Event{Kind: pipeline.EventProgress, Message: "Categorizing"}); err != nil {
		t.Fatalf("progress notify: %v", err)
	}
	if *calls != 0 {
		t.Fatalf("progress events must not be posted")
	}

	ev := pipeline.Event{
		Kind: pipeline.EventFinished,
		Summary: pipeline.Summary{
			CategorizedSource: pipeline.SourceOracle,
			Products:          10,
			Categorized:       9,
			Uncategorized:     1,
			Iterations:        2,
			Samples:           4,
			Matched:           3,
			OutputFile:        "out.xlsx",
		},
	}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 post, got %d", *calls)
	}
	if !strings.Contains(*lastText, "matched 3/4 samples") || !strings.Contains(*lastText, "1 products could not be categorized") {
		t.Fatalf("unexpected message %q", *lastText)
	}
}

func TestFormatEventFailure(t *testing.T) {
	err := errors.New("no previously categorized product table found")
	got := FormatEvent(pipeline.Event{Kind: pipeline.EventFailed, Message: err.Error(), Err: err})
	if !strings.Contains(got, "failed: no previously categorized product table found") {
		t.Fatalf("unexpected failure text %q", got)
	}
}
