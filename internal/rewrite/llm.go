package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/samsaffron/tonenotes/internal/llm"
	"github.com/samsaffron/tonenotes/internal/prompt"
)

// LLMClient rewrites text by prompting a language model.
type LLMClient struct {
	Provider    llm.Provider
	Model       string // empty uses the provider default
	MaxTokens   int
	Temperature float32
	Debug       bool
}

// NewLLMClient returns a client that streams through p.
func NewLLMClient(p llm.Provider) *LLMClient {
	return &LLMClient{Provider: p}
}

func (c *LLMClient) Rewrite(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	stream, err := c.Provider.Stream(ctx, llm.Request{
		Model: c.Model,
		Messages: []llm.Message{
			llm.SystemText(prompt.ToneSystemPrompt(req.Coordinate, req.Descriptors)),
			llm.UserText(prompt.ToneUserPrompt(req.Text)),
		},
		MaxOutputTokens: c.MaxTokens,
		Temperature:     c.Temperature,
		Debug:           c.Debug,
	})
	if err != nil {
		return "", &ServiceError{Op: "llm", Status: statusOf(err), Err: err}
	}
	text, _, err := llm.CollectText(stream)
	if err != nil {
		return "", &ServiceError{Op: "llm", Status: statusOf(err), Err: err}
	}

	text = cleanResult(text, req.Text)
	if text == "" {
		return "", &ServiceError{Op: "llm", Err: errors.New("model returned no text")}
	}
	return text, nil
}

// cleanResult trims whitespace and the quotes models tend to echo back from
// the quoted prompt, unless the input itself was quoted.
func cleanResult(out, in string) string {
	out = strings.TrimSpace(out)
	in = strings.TrimSpace(in)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}} {
		if len([]rune(out)) >= 2 && strings.HasPrefix(out, q[0]) && strings.HasSuffix(out, q[1]) &&
			!strings.HasPrefix(in, q[0]) {
			out = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(out, q[0]), q[1]))
		}
	}
	return out
}

// statusOf extracts the HTTP status from SDK errors.
func statusOf(err error) int {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	return 0
}

// String describes the client for logs.
func (c *LLMClient) String() string {
	return fmt.Sprintf("llm:%s", c.Provider.Name())
}
