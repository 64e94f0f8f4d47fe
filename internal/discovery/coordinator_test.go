package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// fakeSource returns a fixed answer after an optional delay. When ignoreCtx
// is set it sleeps through cancellation, modeling an adapter that swallows
// the deadline.
type fakeSource struct {
	name      domain.DiscoverySource
	papers    []domain.SourcePaper
	err       error
	delay     time.Duration
	ignoreCtx bool

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() domain.DiscoverySource { return f.name }

func (f *fakeSource) Find(ctx domain.Context, _ domain.SeedPaper, _ int) ([]domain.SourcePaper, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.delay):
			}
		}
	}
	return f.papers, f.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testSeed = domain.SeedPaper{
	PaperID: "paper-1",
	Title:   "Attention Is All You Need",
	DOI:     "10.5555/3295222",
	Authors: []string{"Ashish Vaswani"},
}

func testConfig(sources ...domain.DiscoverySource) domain.DiscoveryConfig {
	return domain.DiscoveryConfig{
		EnabledSources: sources,
		MaxPerSource:   10,
		MaxTotal:       20,
		MinRelevance:   0.3,
		Timeout:        2 * time.Second,
		Parallel:       true,
	}
}

func candidates(prefix string, n int) []domain.SourcePaper {
	out := make([]domain.SourcePaper, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.SourcePaper{
			Title: prefix + " " + string(rune('A'+i)),
			DOI:   "10.1000/" + prefix + string(rune('a'+i)),
		})
	}
	return out
}

func TestDiscoverMergesAndRanks(t *testing.T) {
	shared := domain.SourcePaper{Title: "BERT", DOI: "10.18653/v1/N19-1423", CitationCount: 900}
	sharedUpper := domain.SourcePaper{Title: "BERT", DOI: "10.18653/V1/N19-1423"}
	plain := domain.SourcePaper{Title: "Unrelated Survey"}

	c := New([]Source{
		&fakeSource{name: domain.SourceCitationNetwork, papers: []domain.SourcePaper{shared, plain}},
		&fakeSource{name: domain.SourceSemanticSimilarity, papers: []domain.SourcePaper{sharedUpper}},
	}, nil)

	res, err := c.Discover(context.Background(), testSeed, testConfig(domain.SourceCitationNetwork, domain.SourceSemanticSimilarity))
	require.NoError(t, err)

	require.Len(t, res.Papers, 2, "case-insensitive DOI dedup")
	top := res.Papers[0]
	assert.Equal(t, "BERT", top.Title)
	assert.Equal(t, 900, top.CitationCount, "higher-relevance variant wins")
	assert.ElementsMatch(t, []string{"citation_network", "semantic_similarity"}, top.Sources)
	assert.GreaterOrEqual(t, top.Relevance, res.Papers[1].Relevance, "sorted by relevance desc")
	assert.Equal(t, "paper-1", top.SeedPaperID)
	assert.NotEmpty(t, top.PaperID)
}

func TestDiscoverTruncatesToMaxTotal(t *testing.T) {
	c := New([]Source{
		&fakeSource{name: domain.SourceCitationNetwork, papers: candidates("cite", 8)},
		&fakeSource{name: domain.SourceAuthorNetwork, papers: candidates("auth", 8)},
	}, nil)

	cfg := testConfig(domain.SourceCitationNetwork, domain.SourceAuthorNetwork)
	cfg.MaxTotal = 5

	res, err := c.Discover(context.Background(), testSeed, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Papers, 5)
}

func TestDiscoverPartialSuccessOnDeadline(t *testing.T) {
	fast := &fakeSource{name: domain.SourceCitationNetwork, papers: candidates("fast", 4), delay: 20 * time.Millisecond}
	slow1 := &fakeSource{name: domain.SourceAuthorNetwork, papers: candidates("slow", 3), delay: 5 * time.Second}
	slow2 := &fakeSource{name: domain.SourceVenueNetwork, papers: candidates("also", 3), delay: 5 * time.Second}

	c := New([]Source{fast, slow1, slow2}, nil)
	cfg := testConfig(domain.SourceCitationNetwork, domain.SourceAuthorNetwork, domain.SourceVenueNetwork)
	cfg.Timeout = 200 * time.Millisecond

	start := time.Now()
	res, err := c.Discover(context.Background(), testSeed, cfg)
	elapsed := time.Since(start)

	require.NoError(t, err, "deadline expiry is partial success, not failure")
	assert.Less(t, elapsed, time.Second)
	assert.Len(t, res.Papers, 4, "only the fast source's candidates")

	byName := reportMap(res.Reports)
	assert.False(t, byName[domain.SourceCitationNetwork].TimedOut)
	assert.True(t, byName[domain.SourceAuthorNetwork].TimedOut)
	assert.True(t, byName[domain.SourceVenueNetwork].TimedOut)
}

func TestDiscoverAdapterCannotDefeatDeadline(t *testing.T) {
	stubborn := &fakeSource{
		name:      domain.SourceResearch,
		papers:    candidates("late", 2),
		delay:     2 * time.Second,
		ignoreCtx: true,
	}
	c := New([]Source{stubborn}, nil)
	cfg := testConfig(domain.SourceResearch)
	cfg.Timeout = 150 * time.Millisecond

	start := time.Now()
	res, err := c.Discover(context.Background(), testSeed, cfg)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second, "a ctx-ignoring adapter must not extend the run")
	assert.Empty(t, res.Papers, "late results are discarded")

	rep := reportMap(res.Reports)[domain.SourceResearch]
	assert.True(t, rep.TimedOut)
	assert.True(t, rep.Discarded)
}

func TestDiscoverSourceFailureIsolated(t *testing.T) {
	ok := &fakeSource{name: domain.SourceCitationNetwork, papers: candidates("good", 2)}
	broken := &fakeSource{name: domain.SourceAuthorNetwork, err: errors.New("upstream exploded")}

	c := New([]Source{ok, broken}, nil)
	res, err := c.Discover(context.Background(), testSeed, testConfig(domain.SourceCitationNetwork, domain.SourceAuthorNetwork))

	require.NoError(t, err)
	assert.Len(t, res.Papers, 2)
	assert.Equal(t, "upstream exploded", reportMap(res.Reports)[domain.SourceAuthorNetwork].Err)
}

func TestDiscoverZeroPapersIsSuccess(t *testing.T) {
	c := New([]Source{&fakeSource{name: domain.SourceCitationNetwork}}, nil)
	res, err := c.Discover(context.Background(), testSeed, testConfig(domain.SourceCitationNetwork))
	require.NoError(t, err)
	assert.Empty(t, res.Papers)
}

func TestDiscoverFiltersSeedAndThreshold(t *testing.T) {
	src := &fakeSource{name: domain.SourceCitationNetwork, papers: []domain.SourcePaper{
		{Title: "Different Paper", DOI: "10.5555/3295222"}, // seed's DOI
		{Title: "attention is all you need"},               // seed's title
		{Title: "Kept Paper", DOI: "10.1000/kept"},
	}}
	c := New([]Source{src}, nil)

	cfg := testConfig(domain.SourceCitationNetwork)
	res, err := c.Discover(context.Background(), testSeed, cfg)
	require.NoError(t, err)
	require.Len(t, res.Papers, 1)
	assert.Equal(t, "Kept Paper", res.Papers[0].Title)

	// A threshold above the base score discards citation-less candidates.
	cfg.MinRelevance = 0.6
	res, err = c.Discover(context.Background(), testSeed, cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Papers)
}

func TestDiscoverSequentialRunsAll(t *testing.T) {
	a := &fakeSource{name: domain.SourceCitationNetwork, papers: candidates("a", 1), delay: 10 * time.Millisecond}
	b := &fakeSource{name: domain.SourceAuthorNetwork, papers: candidates("b", 1), delay: 10 * time.Millisecond}

	c := New([]Source{a, b}, nil)
	cfg := testConfig(domain.SourceCitationNetwork, domain.SourceAuthorNetwork)
	cfg.Parallel = false

	res, err := c.Discover(context.Background(), testSeed, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Papers, 2)
	assert.Equal(t, 1, a.callCount())
	assert.Equal(t, 1, b.callCount())
}

func TestDiscoverUnconfiguredSource(t *testing.T) {
	c := New([]Source{&fakeSource{name: domain.SourceCitationNetwork, papers: candidates("x", 1)}}, nil)

	res, err := c.Discover(context.Background(), testSeed, testConfig(domain.SourceCitationNetwork, domain.SourceResearch))
	require.NoError(t, err)
	assert.Len(t, res.Papers, 1)
	assert.Equal(t, "source not configured", reportMap(res.Reports)[domain.SourceResearch].Err)
}

func TestDiscoverInvalidConfig(t *testing.T) {
	c := New(nil, nil)

	tests := []struct {
		name    string
		mutate  func(*domain.DiscoveryConfig)
		message string
	}{
		{"no sources", func(cfg *domain.DiscoveryConfig) { cfg.EnabledSources = nil }, "enabledsources"},
		{"unknown source", func(cfg *domain.DiscoveryConfig) {
			cfg.EnabledSources = []domain.DiscoverySource{"astrology"}
		}, `unknown source "astrology"`},
		{"zero per-source cap", func(cfg *domain.DiscoveryConfig) { cfg.MaxPerSource = 0 }, "maxpersource"},
		{"zero total cap", func(cfg *domain.DiscoveryConfig) { cfg.MaxTotal = 0 }, "maxtotal"},
		{"relevance above one", func(cfg *domain.DiscoveryConfig) { cfg.MinRelevance = 1.5 }, "minrelevance"},
		{"no timeout", func(cfg *domain.DiscoveryConfig) { cfg.Timeout = 0 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(domain.SourceCitationNetwork)
			tt.mutate(&cfg)
			_, err := c.Discover(context.Background(), testSeed, cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestDiscoverInvalidSeed(t *testing.T) {
	c := New(nil, nil)
	_, err := c.Discover(context.Background(), domain.SeedPaper{Title: "no id"}, testConfig(domain.SourceCitationNetwork))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDiscoverParentCancellation(t *testing.T) {
	slow := &fakeSource{name: domain.SourceCitationNetwork, delay: 5 * time.Second}
	c := New([]Source{slow}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := c.Discover(ctx, testSeed, testConfig(domain.SourceCitationNetwork))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeSynth struct {
	text string
	err  error
}

func (f *fakeSynth) Synthesize(domain.Context, domain.SeedPaper, []domain.DiscoveredPaper) (string, error) {
	return f.text, f.err
}

func TestDiscoverSynthesis(t *testing.T) {
	src := &fakeSource{name: domain.SourceCitationNetwork, papers: candidates("x", 2)}

	t.Run("success", func(t *testing.T) {
		c := New([]Source{src}, &fakeSynth{text: "both extend the seed's method"})
		cfg := testConfig(domain.SourceCitationNetwork)
		cfg.EnableSynthesis = true

		res, err := c.Discover(context.Background(), testSeed, cfg)
		require.NoError(t, err)
		assert.Equal(t, "both extend the seed's method", res.Synthesis)
	})

	t.Run("failure is non-fatal", func(t *testing.T) {
		c := New([]Source{src}, &fakeSynth{err: errors.New("model refused")})
		cfg := testConfig(domain.SourceCitationNetwork)
		cfg.EnableSynthesis = true

		res, err := c.Discover(context.Background(), testSeed, cfg)
		require.NoError(t, err)
		assert.Empty(t, res.Synthesis)
	})

	t.Run("disabled", func(t *testing.T) {
		c := New([]Source{src}, &fakeSynth{text: "should not appear"})
		res, err := c.Discover(context.Background(), testSeed, testConfig(domain.SourceCitationNetwork))
		require.NoError(t, err)
		assert.Empty(t, res.Synthesis)
	})
}

func TestDiscoverPerSourceLimit(t *testing.T) {
	src := &fakeSource{name: domain.SourceCitationNetwork, papers: candidates("many", 9)}
	c := New([]Source{src}, nil)

	cfg := testConfig(domain.SourceCitationNetwork)
	cfg.MaxPerSource = 3

	res, err := c.Discover(context.Background(), testSeed, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Papers, 3, "per-source contribution is capped even if the adapter over-returns")
}

func reportMap(reports []domain.SourceReport) map[domain.DiscoverySource]domain.SourceReport {
	m := make(map[domain.DiscoverySource]domain.SourceReport, len(reports))
	for _, r := range reports {
		m[r.Source] = r
	}
	return m
}
