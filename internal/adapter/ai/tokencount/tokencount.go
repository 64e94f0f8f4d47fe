// Package tokencount estimates token usage for LLM calls using tiktoken-go.
// Counts feed usage logging; for non-OpenAI tokenizers (Claude, Llama, sonar)
// the cl100k/o200k encodings are close approximations, not exact figures.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Usage holds token counts for one chat completion.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// Counter is a thread-safe token counter with per-model encoding cache.
type Counter struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModel(model)

	c.mu.RLock()
	enc, ok := c.encodings[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[name]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodings[name] = enc
	return enc, nil
}

// normalizeModel maps provider model IDs onto names tiktoken recognizes.
func normalizeModel(model string) string {
	model = strings.ToLower(model)
	// Ollama tags sizes after a colon: "llama3.1:8b".
	if i := strings.Index(model, ":"); i > 0 {
		model = model[:i]
	}
	switch {
	case strings.Contains(model, "gpt-4o"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.Contains(model, "claude"),
		strings.Contains(model, "sonar"),
		strings.Contains(model, "llama"),
		strings.Contains(model, "mistral"):
		// Non-OpenAI tokenizers; gpt-4 (cl100k_base) is the closest stand-in.
		return "gpt-4"
	default:
		return "gpt-4"
	}
}

// CountTokens counts tokens in text for the given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts prompt tokens for a system+user chat request,
// including the per-message framing overhead OpenAI-compatible APIs add.
func (c *Counter) CountChatTokens(system, user, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	// 3 tokens per message plus 1 for the role name, and 3 priming tokens for
	// the assistant reply.
	const perMessage, perRole, priming = 3, 1, 3

	n := priming
	for _, m := range []struct{ role, content string }{
		{"system", system},
		{"user", user},
	} {
		if m.role == "system" && m.content == "" {
			continue
		}
		n += perMessage + perRole
		n += len(enc.Encode(m.role, nil, nil))
		n += len(enc.Encode(m.content, nil, nil))
	}
	return n, nil
}

// CalculateUsage computes full usage for a completed call. Encoding failures
// degrade to the rough 4-chars-per-token estimate instead of erroring.
func (c *Counter) CalculateUsage(system, user, completion, model, provider string) Usage {
	prompt, err := c.CountChatTokens(system, user, model)
	if err != nil {
		slog.Warn("token count failed, using estimate",
			slog.String("model", model), slog.Any("error", err))
		prompt = (len(system) + len(user)) / 4
	}
	done, err := c.CountTokens(completion, model)
	if err != nil {
		slog.Warn("token count failed, using estimate",
			slog.String("model", model), slog.Any("error", err))
		done = len(completion) / 4
	}
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: done,
		TotalTokens:      prompt + done,
		Model:            model,
		Provider:         provider,
	}
}
