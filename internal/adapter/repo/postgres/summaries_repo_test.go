package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

func TestSummaryRepoUpsert(t *testing.T) {
	pool := &fakePool{}
	repo := NewSummaryRepo(pool)

	created := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s := domain.Summary{
		PaperID:    "paper-1",
		Depth:      "standard",
		Audience:   "expert",
		Text:       "The paper introduces self-attention.",
		WordCount:  5,
		Provider:   domain.ProviderOpenAI,
		Highlights: []string{"self-attention"},
		CreatedAt:  created,
	}
	require.NoError(t, repo.Upsert(context.Background(), s))

	require.Len(t, pool.execCalls, 1)
	call := pool.execCalls[0]
	assert.Contains(t, call.sql, "INSERT INTO summaries")
	assert.Contains(t, call.sql, "ON CONFLICT (paper_id, depth, audience)")
	assert.Equal(t, "paper-1", call.args[0])
	assert.Equal(t, "standard", call.args[1])
	assert.Equal(t, "expert", call.args[2])
	assert.Equal(t, domain.ProviderOpenAI, call.args[5])
	assert.Equal(t, false, call.args[6])

	var highlights []string
	require.NoError(t, json.Unmarshal(call.args[7].([]byte), &highlights))
	assert.Equal(t, []string{"self-attention"}, highlights)
	assert.Equal(t, created, call.args[8])
}

func TestSummaryRepoUpsertDefaultsCreatedAt(t *testing.T) {
	pool := &fakePool{}
	repo := NewSummaryRepo(pool)

	require.NoError(t, repo.Upsert(context.Background(), domain.Summary{PaperID: "paper-1", Depth: "brief", Audience: "student"}))
	createdAt, ok := pool.execCalls[0].args[8].(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), createdAt, 5*time.Second)
}

func TestSummaryRepoUpsertExecError(t *testing.T) {
	pool := &fakePool{execErr: errors.New("boom")}
	repo := NewSummaryRepo(pool)

	err := repo.Upsert(context.Background(), domain.Summary{PaperID: "paper-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=summary.upsert")
}

func TestSummaryRepoFindByPaperID(t *testing.T) {
	newer := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)
	highlights, err := json.Marshal([]string{"transformers"})
	require.NoError(t, err)

	pool := &fakePool{queryRows: &fakeRows{scans: []func(dest ...any) error{
		scanInto("paper-1", "standard", "expert", "Newer summary.", 2, domain.ProviderOpenAI, false, highlights, newer),
		scanInto("paper-1", "brief", "student", "Older summary.", 2, domain.ProviderOllama, true, nil, older),
	}}}
	repo := NewSummaryRepo(pool)

	out, err := repo.FindByPaperID(context.Background(), "paper-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Newer summary.", out[0].Text)
	assert.Equal(t, []string{"transformers"}, out[0].Highlights)
	assert.Equal(t, "brief", out[1].Depth)
	assert.True(t, out[1].Fallback)
	assert.Empty(t, out[1].Highlights)

	require.Len(t, pool.queryCalls, 1)
	assert.Contains(t, pool.queryCalls[0].sql, "ORDER BY created_at DESC")
	assert.True(t, pool.queryRows.closed)
}

func TestSummaryRepoFindEmpty(t *testing.T) {
	pool := &fakePool{}
	repo := NewSummaryRepo(pool)

	out, err := repo.FindByPaperID(context.Background(), "paper-none")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummaryRepoFindQueryError(t *testing.T) {
	pool := &fakePool{queryErr: errors.New("boom")}
	repo := NewSummaryRepo(pool)

	_, err := repo.FindByPaperID(context.Background(), "paper-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=summary.find")
}

func TestSummaryRepoFindRowsError(t *testing.T) {
	pool := &fakePool{queryRows: &fakeRows{rowsErr: errors.New("conn reset")}}
	repo := NewSummaryRepo(pool)

	_, err := repo.FindByPaperID(context.Background(), "paper-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=summary.find")
}
