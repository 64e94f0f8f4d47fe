// Package config provider quota definitions and YAML override loading.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderQuota describes the admission and retry budget for one provider.
// RatePerSec <= 0 means unlimited (local providers such as ollama).
type ProviderQuota struct {
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
	// Retry overrides; zero values fall back to the global retry defaults.
	RetryInitialDelay     time.Duration `yaml:"retry_initial_delay"`
	RetryRateLimitedDelay time.Duration `yaml:"retry_rate_limited_delay"`
	RetryMaxDelay         time.Duration `yaml:"retry_max_delay"`
	RetryMaxAttempts      int           `yaml:"retry_max_attempts"`
	RetryRateLimitedMax   int           `yaml:"retry_rate_limited_max_attempts"`
}

// providersFile is the YAML shape of the optional providers config file.
type providersFile struct {
	Providers map[string]ProviderQuota `yaml:"providers"`
}

// DefaultProviderQuotas returns the documented per-provider budgets.
// Crossref politely allows ~45 req/s; Semantic Scholar's unauthenticated
// budget is ~100 requests per 5 minutes; Perplexity free tier is ~10/min.
func DefaultProviderQuotas() map[string]ProviderQuota {
	return map[string]ProviderQuota{
		"openai":           {RatePerSec: 3, Burst: 6},
		"anthropic":        {RatePerSec: 3, Burst: 6},
		"perplexity":       {RatePerSec: 0.17, Burst: 1},
		"ollama":           {RatePerSec: 0, Burst: 0},
		"crossref":         {RatePerSec: 45, Burst: 45},
		"semantic_scholar": {RatePerSec: 0.3, Burst: 1},
	}
}

// LoadProviderQuotas merges the optional YAML file at path over the compiled
// defaults. Unknown provider names in the file are rejected so typos do not
// silently leave a provider on defaults.
func LoadProviderQuotas(path string) (map[string]ProviderQuota, error) {
	quotas := DefaultProviderQuotas()
	if path == "" {
		return quotas, nil
	}
	content, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadProviderQuotas: %w", err)
	}
	var file providersFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("op=config.LoadProviderQuotas: %w", err)
	}
	for name, q := range file.Providers {
		base, ok := quotas[name]
		if !ok {
			return nil, fmt.Errorf("op=config.LoadProviderQuotas: unknown provider %q", name)
		}
		quotas[name] = mergeQuota(base, q)
	}
	return quotas, nil
}

// mergeQuota overlays non-zero fields of override onto base. A negative
// rate_per_sec explicitly requests "unlimited" and wins over the default.
func mergeQuota(base, override ProviderQuota) ProviderQuota {
	out := base
	if override.RatePerSec != 0 {
		out.RatePerSec = override.RatePerSec
		if out.RatePerSec < 0 {
			out.RatePerSec = 0
		}
	}
	if override.Burst != 0 {
		out.Burst = override.Burst
	}
	if override.RetryInitialDelay != 0 {
		out.RetryInitialDelay = override.RetryInitialDelay
	}
	if override.RetryRateLimitedDelay != 0 {
		out.RetryRateLimitedDelay = override.RetryRateLimitedDelay
	}
	if override.RetryMaxDelay != 0 {
		out.RetryMaxDelay = override.RetryMaxDelay
	}
	if override.RetryMaxAttempts != 0 {
		out.RetryMaxAttempts = override.RetryMaxAttempts
	}
	if override.RetryRateLimitedMax != 0 {
		out.RetryRateLimitedMax = override.RetryRateLimitedMax
	}
	return out
}
