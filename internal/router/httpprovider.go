package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"taskmesh/internal/observability"
)

// httpProvider speaks an OpenAI-chat-completions-shaped HTTP contract,
// grounded on the teacher's callMLXWithHTTP (internal/llm/openai_client.go):
// raw net/http instead of an SDK client, because both the fast (Ollama-like)
// and heavy (MLX-like) families in spec.md §6 are only specified as opaque
// "generate"/"list models" HTTP endpoints, not a named SDK.
type httpProvider struct {
	family         string
	baseURL        string
	apiKey         string
	defaultTimeout time.Duration
	modelTimeouts  map[string]time.Duration
	httpClient     *http.Client
}

// NewHTTPProvider builds a family's HTTP client with a default per-request
// timeout, optionally overridden per model by modelTimeouts (the YAML
// overlay's per-model timing table, §A.2) — e.g. a known-slow heavy model
// needs a longer budget than the family default without raising it for
// every other model in the same family.
func NewHTTPProvider(family, baseURL, apiKey string, timeout time.Duration, modelTimeouts map[string]time.Duration) Provider {
	return &httpProvider{
		family:         family,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		defaultTimeout: timeout,
		modelTimeouts:  modelTimeouts,
		// No client-level Timeout: per-call context deadlines below (which
		// vary by model) are the only cap, so a model override can both
		// loosen and tighten the family default.
		httpClient: observability.NewHTTPClient(&http.Client{}),
	}
}

// timeoutFor returns the per-model override if one is configured, else the
// family default.
func (p *httpProvider) timeoutFor(model string) time.Duration {
	if d, ok := p.modelTimeouts[model]; ok && d > 0 {
		return d
	}
	return p.defaultTimeout
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model,omitempty"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index   int         `json:"index"`
	Message chatMessage `json:"message"`
	Delta   chatMessage `json:"delta"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *httpProvider) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.defaultTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	p.setAuth(req)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatus(resp.StatusCode)
	}
	var mr modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	out := make([]string, 0, len(mr.Data))
	for _, m := range mr.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func (p *httpProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeoutFor(model))
	defer cancel()
	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.setAuth(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
		return "", &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", p.classifyStatus(resp.StatusCode)
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", &Error{Kind: KindTransport, Err: fmt.Errorf("no choices returned")}
	}
	return cr.Choices[0].Message.Content, nil
}

// Stream polls the non-streaming endpoint in one call but relays a
// heartbeat on a ticker while it waits, matching the obligation in
// spec.md §4.3 that a stream emit a chunk at least every
// HEARTBEAT_STREAM seconds even when the backend itself doesn't support
// SSE token-by-token streaming (neither family's wire contract in spec.md
// §6 guarantees a server-sent stream).
func (p *httpProvider) Stream(ctx context.Context, model, prompt string, maxTokens int, heartbeat func()) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		result := make(chan string, 1)
		errc := make(chan error, 1)
		go func() {
			text, err := p.Generate(ctx, model, prompt, maxTokens)
			if err != nil {
				errc <- err
				return
			}
			result <- text
		}()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if heartbeat != nil {
					heartbeat()
				}
				out <- StreamChunk{Text: ""}
			case err := <-errc:
				out <- StreamChunk{Err: err, Done: true}
				return
			case text := <-result:
				out <- StreamChunk{Text: text, Done: true}
				return
			case <-ctx.Done():
				out <- StreamChunk{Err: &Error{Kind: KindTimeout, Err: ctx.Err()}, Done: true}
				return
			}
		}
	}()
	return out, nil
}

func (p *httpProvider) setAuth(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func (p *httpProvider) classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Err: fmt.Errorf("status %d", code)}
	case code >= 500:
		return &Error{Kind: KindTransport, Err: fmt.Errorf("status %d", code)}
	default:
		return &Error{Kind: KindUnavailable, Err: fmt.Errorf("status %d", code)}
	}
}
