package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// maxToolIterations bounds one conversation turn; a model stuck in a tool
// loop gets cut off rather than burning the API budget.
const maxToolIterations = 6

const systemPrompt = `You are "ShopAgent", a helpful Slack assistant for managing a weekly company shopping list, primarily focused on Target.com.

Your capabilities:
1.  **Add Items via URL:** If a user provides a target.com product URL, use get_product_details_from_url to get its details. THEN present the details (Title, Price) and explicitly ASK the user how many they want BEFORE using add_item.
2.  **Search for Items:** If a user asks you to find an item (e.g., "find toothpaste", "look for cheap snacks"), use search_products. Present the findings (Name, Price, Link). If they choose one, ASK for quantity BEFORE using add_item.
3.  **Add Items After Confirmation:** Use add_item ONLY AFTER you have the product details AND the user has confirmed the quantity in a recent message.
4.  **View List:** If the user asks to see the list ("what's on the list?", "show list"), use view_list.
5.  **Delete and Change Items:** Use delete_item or update_quantity with a description or item ID. If the tool reports multiple matches or no matches, relay that clearly; do not guess. Users can only change items they added themselves.
6.  **Quantity Handling:** When you need a quantity, your response MUST clearly ask "How many do you need?" or similar. Extract the number from the user's next message, retrieve the stored product details from the conversation, and call add_item.
7.  **Conversation Context:** Pay close attention to the chat history, especially when confirming quantity, remembering product details, or clarifying which item to change.
8.  **Clarity & Errors:** Be clear and concise. If a tool returns a message starting with "Error:", explain the problem simply without exposing internal details. Do not apologize excessively.
9.  **Focus:** Only help with shopping list tasks related to Target. For unrelated questions, politely state you can only help with the shopping list. Do not invent products or URLs.`

// errorReply is what the user sees when the turn cannot complete.
const errorReply = "Sorry, I ran into a problem processing that. Please try again."

// Agent runs one conversational turn: windowed history in, tool loop, final
// text out, exchange persisted back to the session store.
type Agent struct {
	llm      LLM
	toolbox  *Toolbox
	sessions domain.SessionStore
	logger   *zap.Logger
}

// New assembles the agent.
func New(llm LLM, toolbox *Toolbox, sessions domain.SessionStore, logger *zap.Logger) *Agent {
	return &Agent{llm: llm, toolbox: toolbox, sessions: sessions, logger: logger}
}

// HandleMessage processes one user message in a conversation and returns the
// reply text. The reply is always presentable; internal failures come back as
// a generic apology alongside the error.
func (a *Agent) HandleMessage(ctx context.Context, sessionID, userID, userName, text string) (string, error) {
	a.logger.Info("agent turn",
		zap.String("session", sessionID),
		zap.String("user_id", userID),
		zap.String("user_name", userName))

	history, err := a.sessions.History(ctx, sessionID)
	if err != nil {
		// A session store outage degrades to a memoryless turn.
		a.logger.Warn("could not load conversation history", zap.String("session", sessionID), zap.Error(err))
		history = nil
	}

	input := fmt.Sprintf("User Info: user_id='%s', user_name='%s'. Message: %s", userID, userName, text)
	exchange := a.llm.NewExchange(systemPrompt, history, input, a.toolbox.Defs())

	for i := 0; i < maxToolIterations; i++ {
		turn, err := exchange.Next(ctx)
		if err != nil {
			a.logger.Error("model call failed", zap.String("session", sessionID), zap.Error(err))
			return errorReply, err
		}

		if len(turn.ToolCalls) == 0 {
			reply := turn.Content
			if reply == "" {
				reply = errorReply
			}
			if err := a.sessions.AppendHistory(ctx, sessionID, text, reply); err != nil {
				a.logger.Warn("could not persist exchange", zap.String("session", sessionID), zap.Error(err))
			}
			return reply, nil
		}

		for _, call := range turn.ToolCalls {
			result := a.toolbox.Dispatch(ctx, call, userID, userName)
			exchange.ToolResult(call.ID, result)
		}
	}

	a.logger.Error("tool iteration limit reached", zap.String("session", sessionID))
	return errorReply, fmt.Errorf("conversation turn exceeded %d tool iterations", maxToolIterations)
}
