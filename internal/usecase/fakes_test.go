package usecase_test

import (
	"fmt"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

type statusCall struct {
	id     string
	status domain.TaskStatus
	errMsg *string
}

type fakeTasks struct {
	recs      map[string]domain.TaskRecord
	nextID    string
	created   []domain.TaskRecord
	statuses  []statusCall
	createErr error
	statusErr error
	getErr    error
}

func (f *fakeTasks) Create(_ domain.Context, rec domain.TaskRecord) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	id := f.nextID
	if id == "" {
		id = "task-1"
	}
	rec.ID = id
	f.created = append(f.created, rec)
	return id, nil
}

func (f *fakeTasks) UpdateStatus(_ domain.Context, id string, st domain.TaskStatus, errMsg *string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, statusCall{id: id, status: st, errMsg: errMsg})
	return nil
}

func (f *fakeTasks) SaveResult(_ domain.Context, _ string, _ domain.AgentResult) error {
	return nil
}

func (f *fakeTasks) Get(_ domain.Context, id string) (domain.TaskRecord, error) {
	if f.getErr != nil {
		return domain.TaskRecord{}, f.getErr
	}
	rec, ok := f.recs[id]
	if !ok {
		return domain.TaskRecord{}, fmt.Errorf("op=task.get: %w", domain.ErrNotFound)
	}
	return rec, nil
}

type fakeQueue struct {
	payloads []domain.AgentTaskPayload
	err      error
}

func (f *fakeQueue) EnqueueTask(_ domain.Context, p domain.AgentTaskPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, p)
	return p.TaskID, nil
}

type fakeContents struct {
	byID map[string]domain.PaperContent
	err  error
}

func (f *fakeContents) ReplaceByPaperID(_ domain.Context, c domain.PaperContent) error {
	if f.byID == nil {
		f.byID = map[string]domain.PaperContent{}
	}
	f.byID[c.PaperID] = c
	return nil
}

func (f *fakeContents) FindByPaperID(_ domain.Context, paperID string) (domain.PaperContent, error) {
	if f.err != nil {
		return domain.PaperContent{}, f.err
	}
	c, ok := f.byID[paperID]
	if !ok {
		return domain.PaperContent{}, fmt.Errorf("op=paper.find: %w", domain.ErrNotFound)
	}
	return c, nil
}

type fakeSummaries struct {
	byID map[string][]domain.Summary
	err  error
}

func (f *fakeSummaries) Upsert(_ domain.Context, s domain.Summary) error {
	if f.byID == nil {
		f.byID = map[string][]domain.Summary{}
	}
	f.byID[s.PaperID] = append(f.byID[s.PaperID], s)
	return nil
}

func (f *fakeSummaries) FindByPaperID(_ domain.Context, paperID string) ([]domain.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[paperID], nil
}

type fakeTags struct {
	byID map[string][]domain.PaperTag
	err  error
}

func (f *fakeTags) ReplaceByPaperID(_ domain.Context, paperID string, tags []domain.PaperTag) error {
	if f.byID == nil {
		f.byID = map[string][]domain.PaperTag{}
	}
	f.byID[paperID] = tags
	return nil
}

func (f *fakeTags) FindByPaperID(_ domain.Context, paperID string) ([]domain.PaperTag, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[paperID], nil
}

type fakeDiscoveries struct {
	byID map[string][]domain.DiscoveredPaper
	err  error
}

func (f *fakeDiscoveries) ReplaceByPaperID(_ domain.Context, seedPaperID string, papers []domain.DiscoveredPaper) error {
	if f.byID == nil {
		f.byID = map[string][]domain.DiscoveredPaper{}
	}
	f.byID[seedPaperID] = papers
	return nil
}

func (f *fakeDiscoveries) FindByPaperID(_ domain.Context, seedPaperID string) ([]domain.DiscoveredPaper, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[seedPaperID], nil
}

type fakeUsage struct {
	latest map[domain.Provider]domain.ProviderUsageSnapshot
	err    error
}

func (f *fakeUsage) Save(_ domain.Context, snap domain.ProviderUsageSnapshot) error {
	if f.latest == nil {
		f.latest = map[domain.Provider]domain.ProviderUsageSnapshot{}
	}
	f.latest[snap.Provider] = snap
	return nil
}

func (f *fakeUsage) Latest(_ domain.Context, provider domain.Provider) (domain.ProviderUsageSnapshot, error) {
	if f.err != nil {
		return domain.ProviderUsageSnapshot{}, f.err
	}
	snap, ok := f.latest[provider]
	if !ok {
		return domain.ProviderUsageSnapshot{}, fmt.Errorf("op=usage.latest: %w", domain.ErrNotFound)
	}
	return snap, nil
}
