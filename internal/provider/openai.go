package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/martinscooper/lighteval/internal/batch"
)

const defaultMaxTokens = 512

// OpenAI runs batches against any OpenAI-compatible serving endpoint
// (including vLLM/TGI style local servers via BaseURL).
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = "gpt-4o-mini"
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  m,
	}
}

func (p *OpenAI) Name() string {
	return "openai"
}

// Run completes every request of the batch in order. One output per request;
// a request failure fails the whole call so the coordinator never records a
// partially filled batch.
func (p *OpenAI) Run(ctx context.Context, b batch.Batch) ([]string, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("provider: openai: nil client")
	}
	if ctx == nil {
		return nil, errors.New("provider: openai: nil context")
	}

	outputs := make([]string, 0, len(b.Requests))
	for _, r := range b.Requests {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: r.Context},
			},
			MaxTokens:   defaultMaxTokens,
			Temperature: 0,
		})
		if err != nil {
			return nil, fmt.Errorf("provider: openai: %s request %d: %w", r.Desc.ID(), r.Index, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("provider: openai: %s request %d: empty choices", r.Desc.ID(), r.Index)
		}
		outputs = append(outputs, resp.Choices[0].Message.Content)
	}
	return outputs, nil
}
