package domain

import (
	"context"
	"time"
)

// Scraper extracts a product candidate from a single product-page URL.
// A nil candidate with a nil error means "page exists but is not a product"
// or "extraction failed"; the caller decides whether to fall back to search.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*ProductCandidate, error)
}

// Searcher resolves a free-text query into validated product candidates.
// Implementations never return an error for total failure; they return an
// empty slice instead so a bad model response cannot abort a chat turn.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []ProductCandidate
}

// URLValidator checks whether a candidate product URL is plausibly real.
type URLValidator interface {
	Validate(ctx context.Context, rawURL string, skipNetworkCheck bool) bool
}

// ItemStore is the relational shopping list store.
type ItemStore interface {
	AddItem(ctx context.Context, userID, userName, title string, quantity int, price *float64, url, imageURL string) (int64, error)
	GetActiveItems(ctx context.Context) ([]ShoppingItem, error)
	GetItem(ctx context.Context, id int64) (*ShoppingItem, error)
	FindItemsByDescription(ctx context.Context, userID, text string) ([]ShoppingItem, error)
	DeleteItem(ctx context.Context, id int64, requestingUserID string) error
	UpdateItemQuantity(ctx context.Context, id int64, quantity int, requestingUserID string) error
	// MarkAllOrdered transitions all active items to ordered. The trigger is
	// invoked with the items inside the transaction; the transition commits
	// only if the trigger succeeds.
	MarkAllOrdered(ctx context.Context, trigger func([]ShoppingItem) error) (int, error)
}

// SessionStore holds per-conversation state that would otherwise live in
// process-global maps: chat history windows, the display-name cache and the
// set of bot-initiated threads. All entries expire.
type SessionStore interface {
	AppendHistory(ctx context.Context, sessionID string, userMsg, assistantMsg string) error
	History(ctx context.Context, sessionID string) ([]HistoryEntry, error)
	CacheUserName(ctx context.Context, userID, name string) error
	UserName(ctx context.Context, userID string) (string, error)
	MarkBotThread(ctx context.Context, threadTS string) error
	IsBotThread(ctx context.Context, threadTS string) (bool, error)
}

// HistoryEntry is one user/assistant exchange in a conversation window.
type HistoryEntry struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}
