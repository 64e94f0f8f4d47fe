// Package ai provides AI client adapters and response-handling utilities.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

var (
	thinkBlockRe    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// refusalMarkers are phrases models emit instead of the requested JSON.
var refusalMarkers = []string{
	"i cannot", "i can't", "i'm sorry", "i am sorry", "i am unable",
	"i apologize", "as an ai", "i won't",
}

// CleanJSON strips markdown fences and chain-of-thought blocks from an LLM
// response and extracts the first balanced JSON value. Returns ErrParse when
// no valid JSON can be recovered.
func CleanJSON(response string) (string, error) {
	s := thinkBlockRe.ReplaceAllString(response, "")
	s = stripFences(s)
	s = extractBalanced(s)
	s = strings.TrimSpace(s)

	if json.Valid([]byte(s)) {
		return s, nil
	}
	// Trailing commas are the most common recoverable defect.
	fixed := trailingCommaRe.ReplaceAllString(s, "$1")
	if json.Valid([]byte(fixed)) {
		return fixed, nil
	}
	if IsRefusal(response) {
		return "", fmt.Errorf("model refused the request: %w", domain.ErrParse)
	}
	return "", fmt.Errorf("no JSON value in response: %w", domain.ErrParse)
}

// IsRefusal reports whether the response opens with a refusal phrase rather
// than content.
func IsRefusal(response string) bool {
	head := strings.ToLower(strings.TrimSpace(response))
	if len(head) > 200 {
		head = head[:200]
	}
	for _, m := range refusalMarkers {
		if strings.HasPrefix(head, m) {
			return true
		}
	}
	return false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

// extractBalanced returns the first balanced {...} or [...] in s, tracking
// strings so braces inside quoted values do not miscount.
func extractBalanced(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
