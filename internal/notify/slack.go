// Package notify posts the terminal outcome of a pipeline run to Slack.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"productmatch/internal/pipeline"
)

type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier returns nil when token or channel is empty; a nil
// notifier ignores every event.
func NewSlackNotifier(token, channel string, opts ...slack.Option) *SlackNotifier {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(channel) == "" {
		return nil
	}
	return &SlackNotifier{api: slack.New(token, opts...), channel: channel}
}

// Notify posts terminal events. Progress events are skipped.
func (n *SlackNotifier) Notify(ctx context.Context, ev pipeline.Event) error {
	if n == nil || !ev.Terminal() {
		return nil
	}
	text := FormatEvent(ev)
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("notify slack post error channel=%s: %v", n.channel, err)
		return fmt.Errorf("post slack message: %w", err)
	}
	log.Printf("notify slack posted channel=%s kind=%s", n.channel, ev.Kind)
	return nil
}

func FormatEvent(ev pipeline.Event) string {
	if ev.Kind == pipeline.EventFailed {
		return fmt.Sprintf(":x: Product matching run failed: %s", ev.Message)
	}
	s := ev.Summary
	msg := fmt.Sprintf(":white_check_mark: Product matching run complete: %s", s)
	if s.Uncategorized > 0 {
		msg += fmt.Sprintf("\n%d products could not be categorized.", s.Uncategorized)
	}
	return msg
}
