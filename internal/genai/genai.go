// Package genai provides LLM-backed helpers for the intake conversation.
//
// Its single job is normalizing freeform item names ("they're jordan 1 lows
// actually") into canonical listing titles, using recent conversation turns
// as context. Everything deterministic stays out of this package.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/snaplist/snaplist/internal/models"
)

// chatService abstracts the chat completions API for testing.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the resolver client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the resolver client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client resolves freeform item names with a chat model.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient creates a resolver client. The API key is taken from options or
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY)")
	}
	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: model}, nil
}

const resolveSystemPrompt = `You normalize secondhand-marketplace item names.
Given what a seller calls their item, reply with JSON: {"name": "<canonical listing title>"}.
Keep brand and model names, fix obvious typos, drop filler words.
If the input does not describe a sellable item, reply {"name": ""}.`

// ResolveFreeform normalizes a freeform item name. The proposed identity
// (when identification suggested one) and recent conversation turns are
// passed as context. Returns "" when the model cannot produce a name; the
// caller falls back to the raw input.
func (c *Client) ResolveFreeform(ctx context.Context, userInput, proposed string, conversation []models.Message) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(resolveSystemPrompt),
	}
	for _, m := range conversation {
		if strings.TrimSpace(m.Body) == "" {
			continue
		}
		if m.Direction == models.DirectionOut {
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Body),
					},
				},
			})
		} else {
			messages = append(messages, openai.UserMessage(m.Body))
		}
	}
	prompt := fmt.Sprintf("Seller's description: %q", userInput)
	if proposed != "" {
		prompt += fmt.Sprintf("\nIdentification suggested: %q", proposed)
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	var parsed struct {
		Name string `json:"name"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		slog.Debug("Client.ResolveFreeform non-JSON model output", "content", content)
		return "", fmt.Errorf("failed to parse model output: %w", err)
	}
	return strings.TrimSpace(parsed.Name), nil
}
