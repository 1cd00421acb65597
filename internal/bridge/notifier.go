package bridge

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackNotifier reports bridge outcomes to a Slack channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier posting to channel.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{api: slack.New(token), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, message string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(message, false))
	return err
}
