package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/martinscooper/lighteval/internal/batch"
)

// Anthropic runs batches against the Anthropic messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

func NewAnthropic(apiKey, baseURL, model string) *Anthropic {
	opts := make([]option.RequestOption, 0, 2)
	if v := strings.TrimSpace(apiKey); v != "" {
		opts = append(opts, option.WithAPIKey(v))
	}
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(v, "/")))
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = "claude-3-5-haiku-latest"
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, model: m}
}

func (p *Anthropic) Name() string {
	return "anthropic"
}

func (p *Anthropic) Run(ctx context.Context, b batch.Batch) ([]string, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("provider: anthropic: nil client")
	}
	if ctx == nil {
		return nil, errors.New("provider: anthropic: nil context")
	}

	outputs := make([]string, 0, len(b.Requests))
	for _, r := range b.Requests {
		msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: defaultMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(r.Context)),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("provider: anthropic: %s request %d: %w", r.Desc.ID(), r.Index, err)
		}

		var sb strings.Builder
		for _, blk := range msg.Content {
			if blk.Type == "text" {
				sb.WriteString(blk.Text)
			}
		}
		outputs = append(outputs, sb.String())
	}
	return outputs, nil
}
