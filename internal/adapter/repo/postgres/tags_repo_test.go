package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

func TestTagRepoReplace(t *testing.T) {
	tx := &fakeTx{}
	pool := &fakePool{tx: tx}
	repo := NewTagRepo(pool)

	tags := []domain.PaperTag{
		{PaperID: "paper-1", Tag: "machine-learning", Confidence: 0.95, Source: "classifier"},
		{PaperID: "paper-1", Tag: "nlp", Confidence: 0.8, Source: "classifier"},
	}
	require.NoError(t, repo.ReplaceByPaperID(context.Background(), "paper-1", tags))

	require.Len(t, tx.execCalls, 3)
	assert.Contains(t, tx.execCalls[0].sql, "DELETE FROM paper_tags")
	assert.Equal(t, "paper-1", tx.execCalls[0].args[0])
	assert.Equal(t, "machine-learning", tx.execCalls[1].args[1])
	assert.Equal(t, 0.95, tx.execCalls[1].args[2])
	assert.Equal(t, "nlp", tx.execCalls[2].args[1])
	assert.True(t, tx.committed)
}

func TestTagRepoReplaceDeleteFailure(t *testing.T) {
	tx := &fakeTx{failAt: 1, execErr: errors.New("delete boom")}
	pool := &fakePool{tx: tx}
	repo := NewTagRepo(pool)

	err := repo.ReplaceByPaperID(context.Background(), "paper-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=tag.replace")
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestTagRepoFindByPaperID(t *testing.T) {
	pool := &fakePool{queryRows: &fakeRows{scans: []func(dest ...any) error{
		scanInto("paper-1", "machine-learning", 0.95, "classifier"),
		scanInto("paper-1", "nlp", 0.8, "keyword"),
	}}}
	repo := NewTagRepo(pool)

	out, err := repo.FindByPaperID(context.Background(), "paper-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "machine-learning", out[0].Tag)
	assert.Equal(t, 0.8, out[1].Confidence)
	assert.Equal(t, "keyword", out[1].Source)

	assert.Contains(t, pool.queryCalls[0].sql, "ORDER BY confidence DESC")
}

func TestTagRepoFindQueryError(t *testing.T) {
	pool := &fakePool{queryErr: errors.New("boom")}
	repo := NewTagRepo(pool)

	_, err := repo.FindByPaperID(context.Background(), "paper-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=tag.find")
}
