package router

import (
	"context"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"taskmesh/internal/config"
	"taskmesh/internal/observability"
)

// arbiterHTTPTimeout bounds a single escalation-synthesis call; the
// arbiter has no dedicated timeout config field since it is one fixed
// model outside the fast/heavy family matrix.
const arbiterHTTPTimeout = 2 * time.Minute

// anthropicProvider is the board's escalation-synthesis model (spec.md
// §4.2's human-escalation path), dispatched outside the fast/heavy
// failover matrix since there is exactly one arbiter model, not a family
// with alternates. Grounded on the teacher's internal/llm/anthropic
// client, stripped of its tool-calling and streaming-accumulation
// machinery since the arbiter only ever needs single-shot text synthesis.
type anthropicProvider struct {
	sdk   anthropic.Client
	model string
}

func NewAnthropicProvider(cfg config.ArbiterConfig) Provider {
	httpClient := observability.NewHTTPClient(&http.Client{Timeout: arbiterHTTPTimeout})
	return &anthropicProvider{
		sdk:   anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)),
		model: cfg.Model,
	}
}

func (p *anthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{p.model}, nil
}

func (p *anthropicProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	if model == "" {
		model = p.model
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	resp, err := p.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicErr(err)
	}
	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	return text, nil
}

// Stream is unused for the arbiter (escalation synthesis is always a
// single blocking call), but implemented to satisfy Provider.
func (p *anthropicProvider) Stream(ctx context.Context, model, prompt string, maxTokens int, heartbeat func()) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		text, err := p.Generate(ctx, model, prompt, maxTokens)
		out <- StreamChunk{Text: text, Err: err, Done: true}
	}()
	return out, nil
}

func classifyAnthropicErr(err error) error {
	if ae, ok := err.(*anthropic.Error); ok {
		switch ae.StatusCode {
		case 429:
			return &Error{Kind: KindRateLimited, Err: err}
		case 408:
			return &Error{Kind: KindTimeout, Err: err}
		default:
			if ae.StatusCode >= 500 {
				return &Error{Kind: KindTransport, Err: err}
			}
		}
	}
	return &Error{Kind: KindUnavailable, Err: err}
}
