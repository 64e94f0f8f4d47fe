package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/gate"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/retry"
)

// testExec builds an executor with millisecond backoff and breakers that stay
// closed through failure tests.
func testExec() *retry.Executor {
	g := gate.New(nil, gate.BreakerConfig{FailureThreshold: 100})
	return retry.New(g, retry.Policy{
		MaxAttempts:             2,
		RateLimitedMaxAttempts:  2,
		InitialDelay:            time.Millisecond,
		RateLimitedInitialDelay: time.Millisecond,
		MaxDelay:                5 * time.Millisecond,
		BreakerDenialLimit:      2,
	}, nil)
}

// testCore wires the same client for every provider, with token accounting
// off.
func testCore(client domain.ProviderClient) *Core {
	clients := make(map[domain.Provider]domain.ProviderClient, len(domain.Providers()))
	for _, p := range domain.Providers() {
		clients[p] = client
	}
	return NewCore(testExec(), clients, nil, nil)
}

type scripted struct {
	keyword string
	body    string
	err     error
}

// scriptedClient answers by prompt keyword, records every prompt, and fails
// loudly on prompts no script entry covers.
type scriptedClient struct {
	mu     sync.Mutex
	script []scripted
	calls  []domain.ChatPrompt
}

func (c *scriptedClient) Call(_ context.Context, prompt domain.ChatPrompt) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, prompt)
	c.mu.Unlock()

	text := strings.ToLower(prompt.System + "\n" + prompt.User)
	for _, s := range c.script {
		if strings.Contains(text, strings.ToLower(s.keyword)) {
			if s.err != nil {
				return "", s.err
			}
			return s.body, nil
		}
	}
	return "", fmt.Errorf("no scripted response for prompt: %.80s", prompt.User)
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedClient) prompts() []domain.ChatPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatPrompt(nil), c.calls...)
}

// failingClient fails every call with a fixed error.
type failingClient struct{ err error }

func (f *failingClient) Call(context.Context, domain.ChatPrompt) (string, error) {
	return "", f.err
}

// In-memory repositories

type memPapers struct {
	mu         sync.Mutex
	byID       map[string]domain.PaperContent
	replaceErr error
	findErr    error
}

func newMemPapers() *memPapers {
	return &memPapers{byID: make(map[string]domain.PaperContent)}
}

func (m *memPapers) ReplaceByPaperID(_ domain.Context, content domain.PaperContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.byID[content.PaperID] = content
	return nil
}

func (m *memPapers) FindByPaperID(_ domain.Context, paperID string) (domain.PaperContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return domain.PaperContent{}, m.findErr
	}
	c, ok := m.byID[paperID]
	if !ok {
		return domain.PaperContent{}, fmt.Errorf("paper %s: %w", paperID, domain.ErrNotFound)
	}
	return c, nil
}

func (m *memPapers) stored(paperID string) (domain.PaperContent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[paperID]
	return c, ok
}

type memSummaries struct {
	mu        sync.Mutex
	items     []domain.Summary
	upsertErr error
}

func (m *memSummaries) Upsert(_ domain.Context, s domain.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.items = append(m.items, s)
	return nil
}

func (m *memSummaries) FindByPaperID(_ domain.Context, paperID string) ([]domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Summary
	for _, s := range m.items {
		if s.PaperID == paperID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memTags struct {
	mu      sync.Mutex
	byPaper map[string][]domain.PaperTag
}

func newMemTags() *memTags {
	return &memTags{byPaper: make(map[string][]domain.PaperTag)}
}

func (m *memTags) ReplaceByPaperID(_ domain.Context, paperID string, tags []domain.PaperTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPaper[paperID] = tags
	return nil
}

func (m *memTags) FindByPaperID(_ domain.Context, paperID string) ([]domain.PaperTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPaper[paperID], nil
}

type memDiscoveries struct {
	mu         sync.Mutex
	byPaper    map[string][]domain.DiscoveredPaper
	replaceErr error
}

func newMemDiscoveries() *memDiscoveries {
	return &memDiscoveries{byPaper: make(map[string][]domain.DiscoveredPaper)}
}

func (m *memDiscoveries) ReplaceByPaperID(_ domain.Context, seedPaperID string, papers []domain.DiscoveredPaper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.byPaper[seedPaperID] = papers
	return nil
}

func (m *memDiscoveries) FindByPaperID(_ domain.Context, seedPaperID string) ([]domain.DiscoveredPaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPaper[seedPaperID], nil
}

// fakeAgent is a scriptable Agent for runner and registry tests.
type fakeAgent struct {
	kind   domain.AgentKind
	reject bool
	data   domain.Tree
	err    error
	execs  int
}

func (a *fakeAgent) Kind() domain.AgentKind                  { return a.kind }
func (a *fakeAgent) Estimate(domain.AgentTask) time.Duration { return 5 * time.Second }
func (a *fakeAgent) CanHandle(task domain.AgentTask) bool    { return task.Kind == a.kind && !a.reject }

func (a *fakeAgent) Execute(domain.Context, domain.AgentTask) (domain.Tree, error) {
	a.execs++
	if a.err != nil {
		return nil, a.err
	}
	return a.data, nil
}

func newTask(kind domain.AgentKind, input domain.Tree) domain.AgentTask {
	return domain.AgentTask{ID: "task-1", Kind: kind, Input: input, CreatedAt: time.Now()}
}
