package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// PaperService reads the per-paper artifacts the agents persisted.
type PaperService struct {
	Contents    domain.PaperContentRepository
	Summaries   domain.SummaryRepository
	Tags        domain.TagRepository
	Discoveries domain.DiscoveryRepository
}

// NewPaperService constructs a PaperService over the artifact repositories.
func NewPaperService(c domain.PaperContentRepository, s domain.SummaryRepository, t domain.TagRepository, d domain.DiscoveryRepository) PaperService {
	return PaperService{Contents: c, Summaries: s, Tags: t, Discoveries: d}
}

// PaperArtifacts aggregates everything stored about one paper.
type PaperArtifacts struct {
	Content   *domain.PaperContent
	Summaries []domain.Summary
	Tags      []domain.PaperTag
}

// Artifacts returns the stored content, summaries and tags for a paper.
// A paper no agent has touched yet maps to ErrNotFound.
func (s PaperService) Artifacts(ctx domain.Context, paperID string) (PaperArtifacts, error) {
	if strings.TrimSpace(paperID) == "" {
		return PaperArtifacts{}, fmt.Errorf("%w: missing paper id", domain.ErrInvalidInput)
	}

	var out PaperArtifacts
	content, err := s.Contents.FindByPaperID(ctx, paperID)
	switch {
	case err == nil:
		out.Content = &content
	case !errors.Is(err, domain.ErrNotFound):
		return PaperArtifacts{}, err
	}

	if out.Summaries, err = s.Summaries.FindByPaperID(ctx, paperID); err != nil {
		return PaperArtifacts{}, err
	}
	if out.Tags, err = s.Tags.FindByPaperID(ctx, paperID); err != nil {
		return PaperArtifacts{}, err
	}

	if out.Content == nil && len(out.Summaries) == 0 && len(out.Tags) == 0 {
		return PaperArtifacts{}, fmt.Errorf("%w: no artifacts for paper %s", domain.ErrNotFound, paperID)
	}
	return out, nil
}

// RelatedPapers lists the stored discovery set for a seed paper, most
// relevant first.
func (s PaperService) RelatedPapers(ctx domain.Context, paperID string) ([]domain.DiscoveredPaper, error) {
	if strings.TrimSpace(paperID) == "" {
		return nil, fmt.Errorf("%w: missing paper id", domain.ErrInvalidInput)
	}
	return s.Discoveries.FindByPaperID(ctx, paperID)
}
