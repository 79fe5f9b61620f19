package router

import (
	"context"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"taskmesh/internal/config"
	"taskmesh/internal/observability"
)

// altCatalogHTTPTimeout bounds a single alt-catalog call; like the
// arbiter, this optional third provider has no dedicated timeout config
// field of its own.
const altCatalogHTTPTimeout = 2 * time.Minute

// openaiProvider is the optional alternate-catalog entry (spec.md §9's
// open question on whether a third hosted provider should be allowed
// alongside the fast/heavy families) — useful when neither local family
// has a model capable of a requested category. Grounded on the teacher's
// internal/llm/openai client construction, stripped to plain chat
// completions since Router only needs single-shot generate, not the
// teacher's tool-calling/image/Gemini-compatibility branches.
type openaiProvider struct {
	sdk   sdk.Client
	model string
}

func NewOpenAIProvider(cfg config.AltCatalogConfig) Provider {
	httpClient := observability.NewHTTPClient(&http.Client{Timeout: altCatalogHTTPTimeout})
	return &openaiProvider{
		sdk:   sdk.NewClient(option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)),
		model: cfg.Model,
	}
}

func (p *openaiProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{p.model}, nil
}

func (p *openaiProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	if model == "" {
		model = p.model
	}
	params := sdk.ChatCompletionNewParams{
		Model: model,
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
	}
	resp, err := p.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindTransport, Err: errNoModels}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) Stream(ctx context.Context, model, prompt string, maxTokens int, heartbeat func()) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		text, err := p.Generate(ctx, model, prompt, maxTokens)
		out <- StreamChunk{Text: text, Err: err, Done: true}
	}()
	return out, nil
}

func classifyOpenAIErr(err error) error {
	if apiErr, ok := err.(*sdk.Error); ok {
		switch apiErr.StatusCode {
		case 429:
			return &Error{Kind: KindRateLimited, Err: err}
		case 408:
			return &Error{Kind: KindTimeout, Err: err}
		default:
			if apiErr.StatusCode >= 500 {
				return &Error{Kind: KindTransport, Err: err}
			}
		}
	}
	return &Error{Kind: KindUnavailable, Err: err}
}
