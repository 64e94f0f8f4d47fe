package usecase

import (
	"errors"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// ProviderService reports per-provider usage as last flushed by the worker.
// The live counters live in the worker's gate; the API serves the most
// recent snapshot per provider.
type ProviderService struct {
	Usage domain.UsageRepository
}

// NewProviderService constructs a ProviderService over the usage repository.
func NewProviderService(u domain.UsageRepository) ProviderService {
	return ProviderService{Usage: u}
}

// Stats returns the latest snapshot for every provider that has flushed one.
func (s ProviderService) Stats(ctx domain.Context) ([]domain.ProviderUsageSnapshot, error) {
	out := make([]domain.ProviderUsageSnapshot, 0, len(domain.Providers()))
	for _, p := range domain.Providers() {
		snap, err := s.Usage.Latest(ctx, p)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
