package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/retry"
)

// Core bundles what every provider-backed agent shares: the retry executor
// running calls under the provider gate, the provider clients, and the token
// counter for usage accounting.
type Core struct {
	exec    *retry.Executor
	clients map[domain.Provider]domain.ProviderClient
	counter *tokencount.Counter
	models  map[domain.Provider]string
}

// NewCore builds a Core. counter may be nil to skip token accounting; models
// labels token usage per provider and may be nil.
func NewCore(exec *retry.Executor, clients map[domain.Provider]domain.ProviderClient, counter *tokencount.Counter, models map[domain.Provider]string) *Core {
	return &Core{exec: exec, clients: clients, counter: counter, models: models}
}

// Do runs op against provider under permits and classified retries, folding
// the attempt accounting into the current invocation's metrics.
func (c *Core) Do(ctx domain.Context, provider domain.Provider, op func(domain.Context) error) error {
	res, err := c.exec.Do(ctx, provider, op)
	if s := callStatsFrom(ctx); s != nil {
		s.add(provider, res)
	}
	return err
}

// CallProvider sends one prompt to provider and returns the raw response.
func (c *Core) CallProvider(ctx domain.Context, provider domain.Provider, prompt domain.ChatPrompt) (string, error) {
	client, ok := c.clients[provider]
	if !ok {
		return "", domain.NewProviderError(provider, 0, domain.KindProviderDown,
			fmt.Errorf("no client configured: %w", domain.ErrProviderUnavailable))
	}
	var out string
	err := c.Do(ctx, provider, func(ctx domain.Context) error {
		var callErr error
		out, callErr = client.Call(ctx, prompt)
		return callErr
	})
	if err != nil {
		return "", err
	}
	if c.counter != nil {
		usage := c.counter.CalculateUsage(prompt.System, prompt.User, out, c.models[provider], string(provider))
		observability.LoggerFromContext(ctx).Debug("provider call settled",
			slog.String("provider", string(provider)),
			slog.Int("prompt_tokens", usage.PromptTokens),
			slog.Int("completion_tokens", usage.CompletionTokens))
	}
	return out, nil
}

// CallProviderJSON sends a prompt, strips provider framing from the response
// and decodes the remaining JSON into v.
func (c *Core) CallProviderJSON(ctx domain.Context, provider domain.Provider, prompt domain.ChatPrompt, v any) error {
	raw, err := c.CallProvider(ctx, provider, prompt)
	if err != nil {
		return err
	}
	cleaned, err := ai.CleanJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode %s response: %v: %w", provider, err, domain.ErrParse)
	}
	return nil
}
