package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Load_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"localhost:19092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Equal(t, time.Minute, cfg.BreakerCooldown)
	assert.Equal(t, 3, cfg.BreakerHalfOpenProbes)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInitialDelay)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 5, cfg.RetryRateLimitedMaxAttempts)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
	assert.False(t, cfg.AdminEnabled())
	assert.Len(t, cfg.DiscoveryEnabledSources, 5)
}

func Test_Load_AdminEnabled(t *testing.T) {
	t.Setenv("ADMIN_API_TOKEN_HASH", "argon2id$3$65536$2$c2FsdA$aGFzaA")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AdminEnabled())

	require.NoError(t, os.Unsetenv("ADMIN_API_TOKEN_HASH"))
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.AdminEnabled())
}

func Test_GetRetryDefaults_TestEnv(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	initial, rateLimited, maxDelay, multiplier, jitter := cfg.GetRetryDefaults()
	assert.Less(t, initial, 100*time.Millisecond)
	assert.Less(t, rateLimited, 100*time.Millisecond)
	assert.Less(t, maxDelay, time.Second)
	assert.Equal(t, 2.0, multiplier)
	assert.Equal(t, 0.25, jitter)
}

func Test_DefaultProviderQuotas(t *testing.T) {
	quotas := DefaultProviderQuotas()
	require.Len(t, quotas, 6)
	assert.InDelta(t, 45.0, quotas["crossref"].RatePerSec, 0.001)
	assert.InDelta(t, 0.3, quotas["semantic_scholar"].RatePerSec, 0.001)
	assert.InDelta(t, 0.17, quotas["perplexity"].RatePerSec, 0.001)
	// Local provider is unlimited.
	assert.Zero(t, quotas["ollama"].RatePerSec)
}

func Test_LoadProviderQuotas_File(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/providers.yaml"
	content := []byte(`providers:
  perplexity:
    rate_per_sec: 0.5
    burst: 2
    retry_rate_limited_delay: 10s
  ollama:
    rate_per_sec: -1
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	quotas, err := LoadProviderQuotas(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, quotas["perplexity"].RatePerSec, 0.001)
	assert.Equal(t, 2, quotas["perplexity"].Burst)
	assert.Equal(t, 10*time.Second, quotas["perplexity"].RetryRateLimitedDelay)
	// Defaults untouched for providers the file does not mention.
	assert.InDelta(t, 45.0, quotas["crossref"].RatePerSec, 0.001)
	// Negative rate is an explicit "unlimited".
	assert.Zero(t, quotas["ollama"].RatePerSec)
}

func Test_LoadProviderQuotas_UnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/providers.yaml"
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  nosuch:\n    rate_per_sec: 1\n"), 0o600))

	_, err := LoadProviderQuotas(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func Test_LoadProviderQuotas_MissingFile(t *testing.T) {
	_, err := LoadProviderQuotas("/nonexistent/providers.yaml")
	require.Error(t, err)
}

func Test_LoadProviderQuotas_EmptyPath(t *testing.T) {
	quotas, err := LoadProviderQuotas("")
	require.NoError(t, err)
	assert.Len(t, quotas, 6)
}
