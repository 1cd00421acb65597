package slackbot

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
	"github.com/Idan-Levin/slack-shopping-agent/internal/session"
)

type postedMessage struct {
	channel string
	text    string
	thread  string
}

// fakeSlackAPI records posted messages and serves canned user info.
type fakeSlackAPI struct {
	posts         []postedMessage
	userInfoCalls int
	postErr       error
	authErr       error
	authCalls     int
}

func (f *fakeSlackAPI) AuthTest() (*slack.AuthTestResponse, error) {
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &slack.AuthTestResponse{UserID: "UBOT"}, nil
}

func (f *fakeSlackAPI) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	// Apply the options against a dummy endpoint to recover text/thread.
	_, values, err := slack.UnsafeApplyMsgOptions("token", channelID, "https://slack.example/api/", options...)
	if err != nil {
		return "", "", err
	}
	f.posts = append(f.posts, postedMessage{
		channel: channelID,
		text:    values.Get("text"),
		thread:  values.Get("thread_ts"),
	})
	return channelID, "1.0", nil
}

func (f *fakeSlackAPI) GetUserInfo(user string) (*slack.User, error) {
	f.userInfoCalls++
	return &slack.User{
		Name:    "alice.smith",
		Profile: slack.UserProfile{DisplayName: "alice"},
	}, nil
}

// fakeAgent echoes scripted replies and records the identities it was given.
type fakeAgent struct {
	reply      string
	err        error
	gotSession string
	gotUserID  string
	gotName    string
	gotText    string
	calls      int
}

func (f *fakeAgent) HandleMessage(ctx context.Context, sessionID, userID, userName, text string) (string, error) {
	f.calls++
	f.gotSession = sessionID
	f.gotUserID = userID
	f.gotName = userName
	f.gotText = text
	if f.reply == "" {
		return "ok", f.err
	}
	return f.reply, f.err
}

// listStore is a minimal in-memory ItemStore for command tests.
type listStore struct {
	items      []domain.ShoppingItem
	triggerErr error
}

func (s *listStore) AddItem(ctx context.Context, userID, userName, title string, quantity int, price *float64, url, imageURL string) (int64, error) {
	return 0, nil
}

func (s *listStore) GetActiveItems(ctx context.Context) ([]domain.ShoppingItem, error) {
	var out []domain.ShoppingItem
	for _, item := range s.items {
		if item.Status == domain.StatusActive {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *listStore) GetItem(ctx context.Context, id int64) (*domain.ShoppingItem, error) {
	return nil, domain.ErrItemNotFound
}

func (s *listStore) FindItemsByDescription(ctx context.Context, userID, text string) ([]domain.ShoppingItem, error) {
	return nil, nil
}

func (s *listStore) DeleteItem(ctx context.Context, id int64, requestingUserID string) error {
	return domain.ErrItemNotFound
}

func (s *listStore) UpdateItemQuantity(ctx context.Context, id int64, quantity int, requestingUserID string) error {
	return domain.ErrItemNotFound
}

func (s *listStore) MarkAllOrdered(ctx context.Context, trigger func([]domain.ShoppingItem) error) (int, error) {
	active, _ := s.GetActiveItems(ctx)
	if len(active) == 0 {
		return 0, nil
	}
	if trigger != nil {
		if err := trigger(active); err != nil {
			return 0, err
		}
	}
	for i := range s.items {
		s.items[i].Status = domain.StatusOrdered
	}
	return len(active), nil
}

func newTestBot(api *fakeSlackAPI, ag MessageHandler, store domain.ItemStore, trigger OrderTrigger, targetChannel string) *Bot {
	return New(api, ag, session.NewMemoryStore(), store, trigger, targetChannel, zap.NewNop())
}

func mention(user, channel, ts, thread, text string) slackevents.EventsAPIEvent {
	return slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Type: "app_mention",
			Data: &slackevents.AppMentionEvent{
				User:            user,
				Channel:         channel,
				TimeStamp:       ts,
				ThreadTimeStamp: thread,
				Text:            text,
			},
		},
	}
}

func threadMessage(user, channel, ts, thread, text string) slackevents.EventsAPIEvent {
	return slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Type: "message",
			Data: &slackevents.MessageEvent{
				User:            user,
				Channel:         channel,
				TimeStamp:       ts,
				ThreadTimeStamp: thread,
				Text:            text,
			},
		},
	}
}

func TestAppMentionRunsAgentAndReplies(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{reply: "Added to the list."}
	bot := newTestBot(api, ag, &listStore{}, nil, "")

	bot.ProcessEvent(context.Background(), mention("U1", "C1", "100.1", "", "<@UBOT> add milk"))

	assert.Equal(t, "add milk", ag.gotText, "the bot mention is stripped")
	assert.Equal(t, "slack_C1_100.1", ag.gotSession)
	assert.Equal(t, "U1", ag.gotUserID)
	assert.Equal(t, "alice", ag.gotName)

	require.Len(t, api.posts, 1)
	assert.Equal(t, "C1", api.posts[0].channel)
	assert.Equal(t, "100.1", api.posts[0].thread, "replies stay in the thread")
	assert.Equal(t, "Added to the list.", api.posts[0].text)
}

func TestAppMentionInExistingThreadKeepsSession(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")

	bot.ProcessEvent(context.Background(), mention("U1", "C1", "200.2", "100.1", "<@UBOT> two please"))
	assert.Equal(t, "slack_C1_100.1", ag.gotSession, "thread root identifies the conversation")
}

func TestAppMentionEmptyTextGreets(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")

	bot.ProcessEvent(context.Background(), mention("U1", "C1", "100.1", "", "<@UBOT>"))

	assert.Zero(t, ag.calls, "no agent turn for an empty mention")
	require.Len(t, api.posts, 1)
	assert.Contains(t, api.posts[0].text, "How can I help")
}

func TestThreadMessageInBotThreadIsProcessed(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")
	ctx := context.Background()

	// The mention marks the thread; the follow-up needs no mention.
	bot.ProcessEvent(ctx, mention("U1", "C1", "100.1", "", "<@UBOT> add milk"))
	bot.ProcessEvent(ctx, threadMessage("U1", "C1", "101.1", "100.1", "two please"))

	assert.Equal(t, 2, ag.calls)
	assert.Equal(t, "two please", ag.gotText)
	assert.Equal(t, "slack_C1_100.1", ag.gotSession)
}

func TestThreadMessageOutsideBotThreadIgnored(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")

	bot.ProcessEvent(context.Background(), threadMessage("U1", "C1", "101.1", "999.9", "hello?"))
	assert.Zero(t, ag.calls)
	assert.Empty(t, api.posts)
}

func TestMessageEventFiltering(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")
	ctx := context.Background()

	bot.ProcessEvent(ctx, mention("U1", "C1", "100.1", "", "<@UBOT> hi"))
	api.posts = nil
	ag.calls = 0

	// Subtype events, bot echoes and top-level messages are all ignored.
	withSubtype := threadMessage("U1", "C1", "102.1", "100.1", "left the channel")
	withSubtype.InnerEvent.Data.(*slackevents.MessageEvent).SubType = "channel_leave"
	bot.ProcessEvent(ctx, withSubtype)

	fromBot := threadMessage("UBOT", "C1", "103.1", "100.1", "echo")
	bot.ProcessEvent(ctx, fromBot)

	botID := threadMessage("U1", "C1", "104.1", "100.1", "automated")
	botID.InnerEvent.Data.(*slackevents.MessageEvent).BotID = "B123"
	bot.ProcessEvent(ctx, botID)

	topLevel := threadMessage("U1", "C1", "105.1", "", "not in a thread")
	bot.ProcessEvent(ctx, topLevel)

	assert.Zero(t, ag.calls)
	assert.Empty(t, api.posts)
}

func TestBotUserIDRetriesAfterAuthFailure(t *testing.T) {
	api := &fakeSlackAPI{authErr: errors.New("slack unavailable")}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")
	ctx := context.Background()

	// While auth.test is failing the mention is still handled; the generic
	// pattern strips the leading mention.
	bot.ProcessEvent(ctx, mention("U1", "C1", "100.1", "", "<@UBOT> add milk"))
	assert.Equal(t, "add milk", ag.gotText)

	// Once Slack recovers, the ID resolves and own-message filtering works
	// again. A permanently cached failure would let the echo through.
	api.authErr = nil
	bot.ProcessEvent(ctx, threadMessage("UBOT", "C1", "103.1", "100.1", "echo"))
	assert.Equal(t, 1, ag.calls, "the bot's own echo is not a conversation turn")
	assert.Equal(t, "UBOT", bot.userID())
	assert.GreaterOrEqual(t, api.authCalls, 2, "the failed lookup is retried")
}

func TestUserNameIsCached(t *testing.T) {
	api := &fakeSlackAPI{}
	ag := &fakeAgent{}
	bot := newTestBot(api, ag, &listStore{}, nil, "")
	ctx := context.Background()

	bot.ProcessEvent(ctx, mention("U1", "C1", "100.1", "", "<@UBOT> hi"))
	bot.ProcessEvent(ctx, mention("U1", "C1", "200.1", "", "<@UBOT> hi again"))

	assert.Equal(t, 1, api.userInfoCalls, "second lookup comes from the cache")
}

func TestParseEventURLVerification(t *testing.T) {
	bot := newTestBot(&fakeSlackAPI{}, &fakeAgent{}, &listStore{}, nil, "")

	event, err := bot.ParseEvent([]byte(`{"type": "url_verification", "challenge": "abc123"}`))
	require.NoError(t, err)
	assert.Equal(t, slackevents.URLVerification, event.Type)
}

func TestHandleOrderPlaced(t *testing.T) {
	store := &listStore{items: []domain.ShoppingItem{
		{ID: 1, UserName: "alice", ProductTitle: "Milk", Quantity: 2, Status: domain.StatusActive},
		{ID: 2, UserName: "bob", ProductTitle: "Eggs", Quantity: 1, Status: domain.StatusActive},
	}}
	api := &fakeSlackAPI{}
	var triggered []domain.ShoppingItem
	bot := newTestBot(api, &fakeAgent{}, store, func(items []domain.ShoppingItem) error {
		triggered = items
		return nil
	}, "CTEAM")

	ack := bot.HandleOrderPlaced(context.Background(), "CCMD")
	assert.Equal(t, "Processing order placement...", ack)
	assert.Len(t, triggered, 2)

	require.Len(t, api.posts, 1)
	assert.Equal(t, "CTEAM", api.posts[0].channel, "notification goes to the configured channel")
	assert.Contains(t, api.posts[0].text, "Order has been placed")
	assert.Contains(t, api.posts[0].text, "2 x Milk (requested by alice)")
	assert.Contains(t, api.posts[0].text, "1 x Eggs (requested by bob)")

	active, err := store.GetActiveItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestHandleOrderPlacedFallsBackToCommandChannel(t *testing.T) {
	store := &listStore{items: []domain.ShoppingItem{
		{ID: 1, UserName: "alice", ProductTitle: "Milk", Quantity: 1, Status: domain.StatusActive},
	}}
	api := &fakeSlackAPI{}
	bot := newTestBot(api, &fakeAgent{}, store, nil, "")

	bot.HandleOrderPlaced(context.Background(), "CCMD")
	require.Len(t, api.posts, 1)
	assert.Equal(t, "CCMD", api.posts[0].channel)
}

func TestHandleOrderPlacedEmptyList(t *testing.T) {
	api := &fakeSlackAPI{}
	bot := newTestBot(api, &fakeAgent{}, &listStore{}, nil, "CTEAM")

	ack := bot.HandleOrderPlaced(context.Background(), "CCMD")
	assert.Contains(t, ack, "no active items")
	assert.Empty(t, api.posts)
}

func TestHandleOrderPlacedTriggerFailureKeepsList(t *testing.T) {
	store := &listStore{items: []domain.ShoppingItem{
		{ID: 1, UserName: "alice", ProductTitle: "Milk", Quantity: 1, Status: domain.StatusActive},
	}}
	api := &fakeSlackAPI{}
	bot := newTestBot(api, &fakeAgent{}, store, func([]domain.ShoppingItem) error {
		return errors.New("automation unreachable")
	}, "CTEAM")

	ack := bot.HandleOrderPlaced(context.Background(), "CCMD")
	assert.Contains(t, ack, "The list was not cleared")

	active, err := store.GetActiveItems(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Empty(t, api.posts, "no success notification on failure")
}
