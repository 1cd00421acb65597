package session

import (
	"fmt"
	"time"
)

// Conversation state is keyed per Slack channel and thread so parallel
// threads never share history.
const (
	// defaultHistoryWindow is the number of user/assistant exchanges kept
	// per conversation.
	defaultHistoryWindow = 10

	historyTTL = 24 * time.Hour
	nameTTL    = 12 * time.Hour
	// Bot threads outlive their conversations; users reply to old threads.
	threadTTL = 7 * 24 * time.Hour
)

// SessionID builds the conversation key for a Slack channel and thread.
func SessionID(channelID, threadTS string) string {
	return fmt.Sprintf("slack_%s_%s", channelID, threadTS)
}

func historyKey(sessionID string) string { return "history:" + sessionID }
func nameKey(userID string) string       { return "username:" + userID }
func threadKey(threadTS string) string   { return "botthread:" + threadTS }
