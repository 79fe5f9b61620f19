package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"taskmesh/internal/model"
	"taskmesh/internal/observability"
)

// geminiEmbedHTTPTimeout bounds a single embedding call; embeddings are
// small single-shot requests, same budget as the alt-catalog/arbiter calls.
const geminiEmbedHTTPTimeout = 2 * time.Minute

// geminiEmbedder is EmbeddingsConfig.Provider == "gemini": Router.Embed
// dispatched through Google's genai SDK instead of the generic
// OpenAI-compatible /v1/embeddings surface httpEmbedder speaks. Grounded on
// the teacher's internal/llm/google.Client, which builds a *genai.Client the
// same way (APIKey + an injected *http.Client for shared otelhttp tracing);
// this trims that file down to the one call Router needs, EmbedContent,
// instead of Chat/tool-calling.
type geminiEmbedder struct {
	client   *genai.Client
	model    string
	embedCfg *genai.EmbedContentConfig
}

// NewGeminiEmbedder builds a Router embedder backed by the Gemini API.
// dims, when positive, is passed through as the requested output
// dimensionality (EmbeddingsConfig.Dimensions) so the stored vectors
// match whatever width the knowledge-base index was built with;
// zero leaves it at the model's default.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dims int) (Embedder, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     strings.TrimSpace(apiKey),
		HTTPClient: observability.NewHTTPClient(&http.Client{Timeout: geminiEmbedHTTPTimeout}),
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	var embedCfg *genai.EmbedContentConfig
	if dims > 0 {
		d := int32(dims)
		embedCfg = &genai.EmbedContentConfig{OutputDimensionality: &d}
	}
	return &geminiEmbedder{client: client, model: model, embedCfg: embedCfg}, nil
}

func (e *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, e.embedCfg)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("empty gemini embedding response")}
	}
	vec := resp.Embeddings[0].Values
	if err := model.ValidateEmbedding(vec); err != nil {
		return nil, err
	}
	return vec, nil
}
