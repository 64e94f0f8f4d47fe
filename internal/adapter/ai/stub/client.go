// Package stub provides a deterministic provider client for development and
// tests. It routes on prompt keywords and returns canned JSON shaped like the
// live providers' answers, with a small delay to keep timing paths honest.
package stub

import (
	"context"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Client satisfies domain.ProviderClient without network access.
type Client struct {
	// Delay approximates provider latency; defaults to 10ms.
	Delay time.Duration
}

// New returns a stub client with the default delay.
func New() *Client { return &Client{Delay: 10 * time.Millisecond} }

type route struct {
	keywords []string
	body     string
}

// routes are checked in order; the first prompt keyword match wins.
var routes = []route{
	{
		keywords: []string{"extract the structure", "sections and citations"},
		body: `{
  "title": "Attention Is All You Need",
  "abstract": "We propose the Transformer, a model architecture relying entirely on attention mechanisms.",
  "sections": [
    {"index": 0, "title": "Introduction", "content": "Recurrent models preclude parallelization within training examples."},
    {"index": 1, "title": "Model Architecture", "content": "The Transformer follows an encoder-decoder structure using stacked self-attention."}
  ],
  "citations": [
    {"index": 0, "raw_text": "Bahdanau et al. Neural machine translation by jointly learning to align and translate. ICLR 2015."}
  ],
  "key_findings": [
    "Self-attention replaces recurrence entirely",
    "Training cost drops by an order of magnitude"
  ]
}`,
	},
	{
		keywords: []string{"summarize", "summary of the paper"},
		body: `{
  "summary": "The paper introduces the Transformer architecture, removing recurrence in favor of attention and achieving state-of-the-art translation quality at lower training cost.",
  "highlights": ["Novel attention-only architecture", "State-of-the-art BLEU scores"]
}`,
	},
	{
		keywords: []string{"explain the following concepts", "explain each concept"},
		body: `{
  "explanations": [
    {"concept": "self-attention", "explanation": "A mechanism relating positions of a sequence to compute a representation of that sequence.", "analogy": "Like readers glancing back at earlier words to understand the current one."}
  ]
}`,
	},
	{
		keywords: []string{"structure the following citations"},
		body: `{
  "citations": [
    {"index": 0, "authors": ["Bahdanau, D.", "Cho, K.", "Bengio, Y."], "title": "Neural machine translation by jointly learning to align and translate", "venue": "ICLR", "year": 2015, "type": "conference", "confidence": 0.9}
  ]
}`,
	},
	{
		keywords: []string{"format the following citations", "citation style"},
		body: `{
  "formatted": [
    {"index": 0, "formatted_text": "Bahdanau, D., Cho, K., & Bengio, Y. (2015). Neural machine translation by jointly learning to align and translate. ICLR."}
  ]
}`,
	},
	{
		keywords: []string{"assess the quality", "hallucination"},
		body: `{
  "score": 0.88,
  "issues": [],
  "summary": "No significant problems found."
}`,
	},
	{
		keywords: []string{"synthesize the following research findings"},
		body: `{
  "synthesis": "Current work converges on attention-based architectures, with the open threads concentrated on efficiency and transfer to new domains."
}`,
	},
	{
		keywords: []string{"closely related to the paper titled"},
		body: `[
  {"title": "BERT: Pre-training of Deep Bidirectional Transformers for Language Understanding", "authors": ["Devlin, J.", "Chang, M.", "Lee, K.", "Toutanova, K."], "year": 2019, "venue": "NAACL", "url": "https://example.org/bert"},
  {"title": "Longformer: The Long-Document Transformer", "authors": ["Beltagy, I.", "Peters, M.", "Cohan, A."], "year": 2020, "venue": "arXiv", "url": "https://example.org/longformer"}
]`,
	},
	{
		keywords: []string{"recent developments", "current research"},
		body: `{
  "findings": "Recent work extends attention mechanisms to linear complexity and applies them across vision and biology.",
  "sources": ["https://example.org/survey-efficient-transformers"]
}`,
	},
	{
		keywords: []string{"metadata", "suggest tags"},
		body: `{
  "tags": [
    {"tag": "machine-learning", "confidence": 0.95},
    {"tag": "natural-language-processing", "confidence": 0.9}
  ]
}`,
	},
	{
		keywords: []string{"relationship", "relevance to the seed paper"},
		body: `{
  "synthesis": "The discovered papers build directly on the attention mechanism, extending it to new domains.",
  "relationships": [{"title": "BERT", "relationship": "builds_on"}]
}`,
	},
}

// Call returns canned JSON for the first route whose keyword appears in the
// prompt, or a minimal acknowledgment when nothing matches.
func (c *Client) Call(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	delay := c.Delay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(delay):
	}

	text := strings.ToLower(prompt.System + "\n" + prompt.User)
	for _, r := range routes {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.body, nil
			}
		}
	}
	return `{"ok": true}`, nil
}
