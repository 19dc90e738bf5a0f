package store

import (
	"context"
	"errors"
	"log"

	"github.com/rahul/contentcal/internal/models"
	"github.com/rahul/contentcal/internal/pipeline"
)

// WebsiteSummarizer extracts readable text from a company website.
type WebsiteSummarizer interface {
	Summary(ctx context.Context, url string) (string, error)
}

// Provider serves session seeds from the store. Unknown records are
// validation errors so the orchestrator does not retry them.
type Provider struct {
	Store   *Store
	Website WebsiteSummarizer
}

func NewProvider(s *Store, website WebsiteSummarizer) *Provider {
	return &Provider{Store: s, Website: website}
}

func (p *Provider) GetStrategy(ctx context.Context, strategyID int) (models.StrategyRecord, error) {
	rec, err := p.Store.GetStrategy(ctx, strategyID)
	if errors.Is(err, ErrNotFound) {
		return rec, pipeline.Validation(err)
	}
	return rec, err
}

// GetOnboarding loads the profile and, the first time a website URL is
// seen, caches a summary of the site.
func (p *Provider) GetOnboarding(ctx context.Context, userID int) (models.OnboardingProfile, error) {
	profile, err := p.Store.GetOnboarding(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return profile, pipeline.Validation(err)
	}
	if err != nil {
		return profile, err
	}

	if p.Website != nil && profile.WebsiteURL != "" && profile.WebsiteSummary == "" {
		summary, err := p.Website.Summary(ctx, profile.WebsiteURL)
		if err != nil {
			log.Printf("[Store] Website summary for user %d failed: %v", userID, err)
			return profile, nil
		}
		profile.WebsiteSummary = summary
		if err := p.Store.SaveOnboarding(ctx, profile); err != nil {
			log.Printf("[Store] Failed to cache website summary for user %d: %v", userID, err)
		}
	}
	return profile, nil
}
