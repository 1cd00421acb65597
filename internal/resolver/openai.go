package resolver

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// ChatCompleter is the narrow LLM surface the search client depends on: one
// augmented-generation call returning the model's text answer plus any URL
// citations the underlying web search attached to it.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, []*domain.SearchCitation, error)
}

// OpenAIChat implements ChatCompleter against the OpenAI API using a
// web-search model, so responses carry url_citation annotations.
type OpenAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat creates a chat client. Model defaults to the search-preview
// model when empty.
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	if model == "" {
		model = "gpt-4o-search-preview"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIChat{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete issues one completion with web search enabled and extracts the
// citation side-channel from the message annotations.
func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, []*domain.SearchCitation, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		WebSearchOptions: openai.ChatCompletionNewParamsWebSearchOptions{},
	})
	if err != nil {
		return "", nil, err
	}
	if len(completion.Choices) == 0 {
		return "", nil, nil
	}

	msg := completion.Choices[0].Message
	var citations []*domain.SearchCitation
	for _, ann := range msg.Annotations {
		if ann.Type != "url_citation" || ann.URLCitation.URL == "" {
			continue
		}
		citations = append(citations, &domain.SearchCitation{
			URL:   ann.URLCitation.URL,
			Title: ann.URLCitation.Title,
		})
	}
	return msg.Content, citations, nil
}
