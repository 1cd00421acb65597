package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

const defaultAgentModel = "gpt-4-turbo"

// OpenAILLM runs tool exchanges against the OpenAI chat completions API.
type OpenAILLM struct {
	client openai.Client
	model  string
}

// NewOpenAILLM creates the chat client. Model defaults to a tool-capable
// model when empty; baseURL overrides the API endpoint for compatible
// providers.
func NewOpenAILLM(apiKey, baseURL, model string) *OpenAILLM {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultAgentModel
	}
	return &OpenAILLM{client: openai.NewClient(opts...), model: model}
}

// NewExchange builds the initial transcript: system prompt, prior exchanges
// from the session window, then the new user message.
func (l *OpenAILLM) NewExchange(system string, history []domain.HistoryEntry, userMsg string, tools []ToolDef) Exchange {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(history))
	messages = append(messages, openai.SystemMessage(system))
	for _, h := range history {
		messages = append(messages, openai.UserMessage(h.User))
		messages = append(messages, openai.AssistantMessage(h.Assistant))
	}
	messages = append(messages, openai.UserMessage(userMsg))

	toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		toolParams = append(toolParams, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	return &openAIExchange{
		client: l.client,
		params: openai.ChatCompletionNewParams{
			Model:    l.model,
			Messages: messages,
			Tools:    toolParams,
		},
	}
}

type openAIExchange struct {
	client openai.Client
	params openai.ChatCompletionNewParams
}

func (e *openAIExchange) Next(ctx context.Context) (*Turn, error) {
	completion, err := e.client.Chat.Completions.New(ctx, e.params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := completion.Choices[0].Message
	e.params.Messages = append(e.params.Messages, msg.ToParam())

	turn := &Turn{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return turn, nil
}

func (e *openAIExchange) ToolResult(callID, content string) {
	e.params.Messages = append(e.params.Messages, openai.ToolMessage(content, callID))
}
