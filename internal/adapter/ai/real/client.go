// Package real implements HTTP clients for the live AI providers.
//
// Clients issue exactly one request per Call; retry and circuit-breaking
// decisions belong to the caller. Failures come back as *domain.ProviderError
// tagged with the retry class derived from the HTTP status.
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

const (
	defaultTimeout   = 60 * time.Second
	anthropicVersion = "2023-06-01"
	maxBodySnippet   = 512
)

// newHTTPClient builds the outbound client shared by all providers. The
// otelhttp transport links provider request spans to the task trace.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "AI " + r.Method + " " + r.URL.Host
			})),
	}
}

// OpenAICompat calls a chat-completions endpoint in the OpenAI wire format.
// OpenAI, Perplexity and Ollama all speak this protocol.
type OpenAICompat struct {
	provider domain.Provider
	baseURL  string
	apiKey   string
	model    string
	hc       *http.Client
	// requireKey marks hosted providers that reject anonymous requests; the
	// check runs at call time so construction never fails.
	requireKey bool
}

// NewOpenAI returns a client for the OpenAI chat completions API.
func NewOpenAI(cfg config.Config) *OpenAICompat {
	return &OpenAICompat{
		provider:   domain.ProviderOpenAI,
		baseURL:    cfg.OpenAIBaseURL,
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		hc:         newHTTPClient(),
		requireKey: true,
	}
}

// NewPerplexity returns a client for the Perplexity sonar API.
func NewPerplexity(cfg config.Config) *OpenAICompat {
	return &OpenAICompat{
		provider:   domain.ProviderPerplexity,
		baseURL:    cfg.PerplexityBaseURL,
		apiKey:     cfg.PerplexityAPIKey,
		model:      cfg.PerplexityModel,
		hc:         newHTTPClient(),
		requireKey: true,
	}
}

// NewOllama returns a client for a local Ollama instance exposing the
// OpenAI-compatible endpoint. No API key is needed.
func NewOllama(cfg config.Config) *OpenAICompat {
	return &OpenAICompat{
		provider: domain.ProviderOllama,
		baseURL:  cfg.OllamaBaseURL,
		model:    cfg.OllamaModel,
		hc:       newHTTPClient(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Call sends one chat completion request and returns the first choice's
// content.
func (c *OpenAICompat) Call(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	if c.requireKey && c.apiKey == "" {
		return "", fmt.Errorf("provider %s: missing API key: %w", c.provider, domain.ErrInvalidInput)
	}

	msgs := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: prompt.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt.User})
	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: msgs, MaxTokens: prompt.MaxTokens})
	if err != nil {
		return "", fmt.Errorf("op=ai.Call provider=%s: marshal request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("op=ai.Call provider=%s: build request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.RecordProviderCall(string(c.provider), "error", time.Since(start))
		return "", domain.NewProviderError(c.provider, 0, domain.KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.RecordProviderCall(string(c.provider), "error", time.Since(start))
		return "", domain.NewProviderError(c.provider, 0, domain.KindTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		observability.RecordProviderCall(string(c.provider), "error", time.Since(start))
		logProviderFailure(ctx, c.provider, resp.StatusCode, body)
		return "", domain.NewProviderError(c.provider, resp.StatusCode, domain.KindFromStatus(resp.StatusCode),
			fmt.Errorf("chat completion failed: %s", bodySnippet(body)))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		observability.RecordProviderCall(string(c.provider), "error", time.Since(start))
		return "", domain.NewProviderError(c.provider, resp.StatusCode, domain.KindNonRetryable,
			fmt.Errorf("decode response: %w", err))
	}
	if out.Error != nil {
		observability.RecordProviderCall(string(c.provider), "error", time.Since(start))
		return "", domain.NewProviderError(c.provider, resp.StatusCode, domain.KindNonRetryable,
			fmt.Errorf("provider error: %s", out.Error.Message))
	}
	if len(out.Choices) == 0 {
		observability.RecordProviderCall(string(c.provider), "error", time.Since(start))
		return "", domain.NewProviderError(c.provider, resp.StatusCode, domain.KindTransient,
			fmt.Errorf("empty choices in response"))
	}
	observability.RecordProviderCall(string(c.provider), "success", time.Since(start))
	return out.Choices[0].Message.Content, nil
}

// Anthropic calls the Anthropic messages API, which differs from the
// OpenAI protocol in auth headers and payload shape.
type Anthropic struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

// NewAnthropic returns a client for the Anthropic messages API.
func NewAnthropic(cfg config.Config) *Anthropic {
	return &Anthropic{
		baseURL: cfg.AnthropicBaseURL,
		apiKey:  cfg.AnthropicAPIKey,
		model:   cfg.AnthropicModel,
		hc:      newHTTPClient(),
	}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Call sends one messages request and returns the first text block.
func (c *Anthropic) Call(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("provider %s: missing API key: %w", domain.ProviderAnthropic, domain.ErrInvalidInput)
	}

	maxTokens := prompt.MaxTokens
	if maxTokens <= 0 {
		// Anthropic rejects requests without max_tokens.
		maxTokens = 4096
	}
	payload, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    prompt.System,
		Messages:  []chatMessage{{Role: "user", Content: prompt.User}},
	})
	if err != nil {
		return "", fmt.Errorf("op=ai.Call provider=%s: marshal request: %w", domain.ProviderAnthropic, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("op=ai.Call provider=%s: build request: %w", domain.ProviderAnthropic, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.RecordProviderCall(string(domain.ProviderAnthropic), "error", time.Since(start))
		return "", domain.NewProviderError(domain.ProviderAnthropic, 0, domain.KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.RecordProviderCall(string(domain.ProviderAnthropic), "error", time.Since(start))
		return "", domain.NewProviderError(domain.ProviderAnthropic, 0, domain.KindTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		observability.RecordProviderCall(string(domain.ProviderAnthropic), "error", time.Since(start))
		logProviderFailure(ctx, domain.ProviderAnthropic, resp.StatusCode, body)
		return "", domain.NewProviderError(domain.ProviderAnthropic, resp.StatusCode, domain.KindFromStatus(resp.StatusCode),
			fmt.Errorf("messages request failed: %s", bodySnippet(body)))
	}

	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		observability.RecordProviderCall(string(domain.ProviderAnthropic), "error", time.Since(start))
		return "", domain.NewProviderError(domain.ProviderAnthropic, resp.StatusCode, domain.KindNonRetryable,
			fmt.Errorf("decode response: %w", err))
	}
	if out.Error != nil {
		observability.RecordProviderCall(string(domain.ProviderAnthropic), "error", time.Since(start))
		return "", domain.NewProviderError(domain.ProviderAnthropic, resp.StatusCode, domain.KindNonRetryable,
			fmt.Errorf("provider error: %s", out.Error.Message))
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			observability.RecordProviderCall(string(domain.ProviderAnthropic), "success", time.Since(start))
			return block.Text, nil
		}
	}
	observability.RecordProviderCall(string(domain.ProviderAnthropic), "error", time.Since(start))
	return "", domain.NewProviderError(domain.ProviderAnthropic, resp.StatusCode, domain.KindTransient,
		fmt.Errorf("no text block in response"))
}

func logProviderFailure(ctx context.Context, provider domain.Provider, status int, body []byte) {
	observability.LoggerFromContext(ctx).Warn("ai provider request failed",
		slog.String("provider", string(provider)),
		slog.Int("status", status),
		slog.String("body", bodySnippet(body)),
	)
}

func bodySnippet(body []byte) string {
	if len(body) > maxBodySnippet {
		return string(body[:maxBodySnippet]) + "..."
	}
	return string(body)
}
