package agent

import (
	"context"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// Turn is the model's reply to one completion round: final text, or tool
// calls whose results feed the next round.
type Turn struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolDef declares one callable tool to the model. Parameters is a JSON
// schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// LLM opens tool-calling exchanges with a chat model.
type LLM interface {
	NewExchange(system string, history []domain.HistoryEntry, userMsg string, tools []ToolDef) Exchange
}

// Exchange is one conversation turn in progress. Next sends the accumulated
// transcript to the model; ToolResult appends the outcome of a requested tool
// call before the following Next.
type Exchange interface {
	Next(ctx context.Context) (*Turn, error)
	ToolResult(callID, content string)
}
