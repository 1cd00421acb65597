package slackbot

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
	"github.com/Idan-Levin/slack-shopping-agent/internal/session"
)

const fallbackUserName = "Unknown User"

// SlackAPI is the slice of the Slack Web API the bot uses. *slack.Client
// satisfies it.
type SlackAPI interface {
	AuthTest() (*slack.AuthTestResponse, error)
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	GetUserInfo(user string) (*slack.User, error)
}

// MessageHandler produces the reply for one conversational message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID, userID, userName, text string) (string, error)
}

// OrderTrigger runs the downstream purchase automation for the given items.
// It is invoked inside the order transaction; returning an error keeps the
// list active.
type OrderTrigger func(items []domain.ShoppingItem) error

// Bot wires Slack events to the conversational agent and the shopping list.
type Bot struct {
	api           SlackAPI
	agent         MessageHandler
	sessions      domain.SessionStore
	store         domain.ItemStore
	orderTrigger  OrderTrigger
	targetChannel string
	logger        *zap.Logger

	botUserMu sync.Mutex
	botUserID string
}

// New creates the bot. targetChannel is where order notifications go; when
// empty, the channel the slash command came from is used.
func New(api SlackAPI, agent MessageHandler, sessions domain.SessionStore, store domain.ItemStore, trigger OrderTrigger, targetChannel string, logger *zap.Logger) *Bot {
	return &Bot{
		api:           api,
		agent:         agent,
		sessions:      sessions,
		store:         store,
		orderTrigger:  trigger,
		targetChannel: targetChannel,
		logger:        logger,
	}
}

// ParseEvent decodes an Events API payload. URL-verification challenges are
// answered by the HTTP layer; everything else goes to ProcessEvent.
func (b *Bot) ParseEvent(body []byte) (slackevents.EventsAPIEvent, error) {
	return slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
}

// ProcessEvent handles one callback event. It is synchronous; the HTTP layer
// runs it off the request goroutine to meet Slack's ack deadline.
func (b *Bot) ProcessEvent(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.onAppMention(ctx, ev)
	case *slackevents.MessageEvent:
		b.onMessage(ctx, ev)
	default:
		b.logger.Debug("ignoring event", zap.String("type", event.InnerEvent.Type))
	}
}

func (b *Bot) onAppMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	if ev.User == "" || ev.Channel == "" || threadTS == "" {
		b.logger.Warn("app_mention event missing required fields")
		return
	}

	// Replies in this thread no longer need a mention.
	if err := b.sessions.MarkBotThread(ctx, threadTS); err != nil {
		b.logger.Warn("could not mark bot thread", zap.String("thread", threadTS), zap.Error(err))
	}

	text := b.stripMention(ev.Text)
	if text == "" {
		b.say(ev.Channel, threadTS, "Hi there! How can I help you with the shopping list?")
		return
	}

	b.converse(ctx, ev.Channel, threadTS, ev.User, text)
}

func (b *Bot) onMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Joins, edits and other subtypes are not conversation.
	if ev.SubType != "" || ev.BotID != "" {
		return
	}
	if ev.User == "" || ev.User == b.userID() {
		return
	}
	// Only threads the bot participates in; channel chatter stays private.
	if ev.ThreadTimeStamp == "" {
		return
	}
	isBotThread, err := b.sessions.IsBotThread(ctx, ev.ThreadTimeStamp)
	if err != nil {
		b.logger.Warn("could not check thread ownership", zap.String("thread", ev.ThreadTimeStamp), zap.Error(err))
		return
	}
	if !isBotThread {
		return
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	b.converse(ctx, ev.Channel, ev.ThreadTimeStamp, ev.User, text)
}

// converse runs one agent turn and posts the reply to the thread.
func (b *Bot) converse(ctx context.Context, channelID, threadTS, userID, text string) {
	userName := b.userName(ctx, userID)
	sessionID := session.SessionID(channelID, threadTS)

	reply, err := b.agent.HandleMessage(ctx, sessionID, userID, userName, text)
	if err != nil {
		b.logger.Error("agent turn failed", zap.String("session", sessionID), zap.Error(err))
	}
	b.say(channelID, threadTS, reply)
}

func (b *Bot) say(channelID, threadTS, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := b.api.PostMessage(channelID, opts...)
	if err != nil {
		b.logger.Error("failed to post message",
			zap.String("channel", channelID),
			zap.String("thread", threadTS),
			zap.Error(err))
	}
}

// userName resolves a display name through the session cache, falling back to
// the Slack API.
func (b *Bot) userName(ctx context.Context, userID string) string {
	if name, err := b.sessions.UserName(ctx, userID); err == nil {
		return name
	}

	user, err := b.api.GetUserInfo(userID)
	if err != nil {
		b.logger.Warn("could not fetch user info", zap.String("user_id", userID), zap.Error(err))
		return fallbackUserName
	}

	name := user.Profile.DisplayName
	if name == "" {
		name = user.Profile.RealName
	}
	if name == "" {
		name = user.Name
	}
	if name == "" {
		return fallbackUserName
	}

	if err := b.sessions.CacheUserName(ctx, userID, name); err != nil {
		b.logger.Warn("could not cache user name", zap.String("user_id", userID), zap.Error(err))
	}
	return name
}

// stripMention removes the leading bot mention from message text.
func (b *Bot) stripMention(text string) string {
	if id := b.userID(); id != "" {
		pattern := regexp.MustCompile(`^<@` + regexp.QuoteMeta(id) + `>\s*`)
		text = pattern.ReplaceAllString(text, "")
	} else {
		// Without our own ID, drop any leading mention.
		text = regexp.MustCompile(`^<@[A-Z0-9]+>\s*`).ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// userID returns the bot's own Slack user ID, resolved via auth.test on
// first use. A failed lookup is retried on the next call rather than cached
// for the process lifetime.
func (b *Bot) userID() string {
	b.botUserMu.Lock()
	defer b.botUserMu.Unlock()
	if b.botUserID != "" {
		return b.botUserID
	}

	resp, err := b.api.AuthTest()
	if err != nil {
		b.logger.Error("auth.test failed, bot user ID unknown", zap.Error(err))
		return ""
	}
	b.botUserID = resp.UserID
	b.logger.Info("resolved bot user", zap.String("user_id", b.botUserID))
	return b.botUserID
}

// HandleOrderPlaced executes the /order-placed command: marks all active
// items ordered (running the purchase automation inside the transaction) and
// notifies the channel. Returns the immediate ack text for the command
// response.
func (b *Bot) HandleOrderPlaced(ctx context.Context, commandChannelID string) string {
	items, err := b.store.GetActiveItems(ctx)
	if err != nil {
		b.logger.Error("could not load active items", zap.Error(err))
		return "Sorry, an error occurred while processing the order placement."
	}
	if len(items) == 0 {
		return "There were no active items on the list to mark as ordered."
	}

	count, err := b.store.MarkAllOrdered(ctx, b.orderTrigger)
	if err != nil {
		b.logger.Error("order placement failed", zap.Error(err))
		return "Sorry, an error occurred while processing the order placement. The list was not cleared."
	}

	channel := b.targetChannel
	if channel == "" {
		channel = commandChannelID
	}
	if channel == "" {
		return fmt.Sprintf("Marked %d items as ordered, but couldn't determine which channel to notify.", count)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("- %d x %s (requested by %s)", item.Quantity, item.ProductTitle, item.UserName))
	}
	b.say(channel, "", fmt.Sprintf("✅ Order has been placed for the following items:\n%s\n\nThe list has been cleared for next week.", strings.Join(lines, "\n")))

	b.logger.Info("order placed", zap.Int("items", count), zap.String("channel", channel))
	return "Processing order placement..."
}

// PostReminder sends the weekly deadline reminder to the target channel.
func (b *Bot) PostReminder(text string) {
	if b.targetChannel == "" {
		b.logger.Warn("no target channel configured, skipping reminder")
		return
	}
	b.say(b.targetChannel, "", text)
}
