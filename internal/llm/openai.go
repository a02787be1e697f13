package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider with the Chat Completions API. It also
// serves OpenAI-compatible servers (Ollama, LM Studio, others) through a
// custom base URL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
	compat bool // server only understands max_tokens
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
		model:  model,
		name:   "OpenAI",
	}
}

// NewOpenAICompatProvider talks to an OpenAI-compatible server at baseURL.
func NewOpenAICompatProvider(baseURL, apiKey, model, name string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		// The SDK insists on a key; local servers ignore it.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
		model:  model,
		name:   name,
		compat: true,
	}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	model := chooseModel(req.Model, p.model)
	if model == "" {
		return nil, fmt.Errorf("%s: no model configured", p.name)
	}
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: buildOpenAIMessages(req.Messages),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}
		if req.MaxOutputTokens > 0 {
			if p.compat {
				params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
			} else {
				params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
			}
		}
		if req.Temperature > 0 {
			params.Temperature = openai.Float(float64(req.Temperature))
		}

		if req.Debug {
			system, _ := splitSystem(req.Messages)
			fmt.Fprintln(os.Stderr, "=== DEBUG: OpenAI Stream Request ===")
			fmt.Fprintf(os.Stderr, "Provider: %s\n", p.Name())
			fmt.Fprintf(os.Stderr, "System: %s\n", truncate(system, 200))
			fmt.Fprintf(os.Stderr, "Messages: %d\n", len(params.Messages))
			fmt.Fprintln(os.Stderr, "===================================")
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		var lastUsage *Usage
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 {
				if text := chunk.Choices[0].Delta.Content; text != "" {
					events <- Event{Type: EventTextDelta, Text: text}
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				lastUsage = &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("%s streaming error: %w", p.name, err)
		}
		if lastUsage != nil {
			events <- Event{Type: EventUsage, Use: lastUsage}
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		text := collectTextParts(msg.Parts)
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case RoleUser:
			out = append(out, openai.UserMessage(text))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		}
	}
	return out
}
