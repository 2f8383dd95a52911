package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"invoicechat/internal/logger"
)

// Request is one fragment to rewrite.
type Request struct {
	SelectedText string      `json:"selectedText"`
	ElementType  ContentType `json:"elementType"`
	Prompt       string      `json:"prompt"`
	Context      string      `json:"context"`
}

// Rewriter turns a fragment and an instruction into replacement text.
type Rewriter interface {
	Rewrite(ctx context.Context, req Request) (string, error)
}

const systemPrompt = `You edit single text fragments of an Italian invoice.

RULES:
- Apply the user's instruction to the selected text only
- Keep the kind of content given in elementType (an amount stays an amount, a date stays a date)
- Amounts use European formatting: € 1.234,56
- Dates use the Italian format DD/MM/YYYY
- Keep the language of the original text unless told otherwise
- Return only the new value: no quotes, no explanations, no markdown`

// OpenAIRewriter implements Rewriter with a chat completion call.
type OpenAIRewriter struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIRewriter creates a rewriter. An empty baseURL uses the public
// OpenAI endpoint.
func NewOpenAIRewriter(apiKey, model, baseURL string) *OpenAIRewriter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRewriter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logger.WithComponent("rewrite"),
	}
}

// Rewrite sends one fragment and returns the trimmed answer.
func (r *OpenAIRewriter) Rewrite(ctx context.Context, req Request) (string, error) {
	const op = "Rewrite"

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	r.log.Debug().
		Str("element_type", string(req.ElementType)).
		Int("text_length", len(req.SelectedText)).
		Msg("Sending rewrite request")

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: string(payload),
			},
		},
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("%s: completion request failed: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrNoCompletion)
	}

	content := cleanAnswer(resp.Choices[0].Message.Content)
	r.log.Debug().Str("response", content).Msg("Received rewrite")
	return content, nil
}

// cleanAnswer strips whitespace, a markdown fence and one level of quotes.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
