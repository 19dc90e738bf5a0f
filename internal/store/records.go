package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rahul/contentcal/internal/models"
)

// AddStrategy inserts rec and returns its id.
func (s *Store) AddStrategy(ctx context.Context, rec models.StrategyRecord) (int, error) {
	query := `INSERT INTO strategies (user_id, name, industry, business_goals, target_audience,
		content_pillars, preferred_channels, competitors, kpis) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.DB.ExecContext(ctx, query,
		rec.UserID, rec.Name, rec.Industry, encodeList(rec.BusinessGoals), rec.TargetAudience,
		encodeList(rec.ContentPillars), encodeList(rec.PreferredChannels),
		encodeList(rec.Competitors), encodeList(rec.KPIs))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

func (s *Store) GetStrategy(ctx context.Context, id int) (models.StrategyRecord, error) {
	query := `SELECT id, user_id, name, industry, business_goals, target_audience,
		content_pillars, preferred_channels, competitors, kpis FROM strategies WHERE id = ?`

	var rec models.StrategyRecord
	var name, industry, audience sql.NullString
	var goals, pillars, channels, competitors, kpis sql.NullString
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.UserID, &name, &industry,
		&goals, &audience, &pillars, &channels, &competitors, &kpis)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StrategyRecord{}, fmt.Errorf("strategy %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.StrategyRecord{}, err
	}
	rec.Name = name.String
	rec.Industry = industry.String
	rec.TargetAudience = audience.String
	rec.BusinessGoals = decodeList(goals)
	rec.ContentPillars = decodeList(pillars)
	rec.PreferredChannels = decodeList(channels)
	rec.Competitors = decodeList(competitors)
	rec.KPIs = decodeList(kpis)
	return rec, nil
}

// SaveOnboarding inserts or replaces the profile of p.UserID.
func (s *Store) SaveOnboarding(ctx context.Context, p models.OnboardingProfile) error {
	query := `INSERT INTO onboarding (user_id, company_name, website_url, website_summary, brand_voice, keywords, posting_cadence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			company_name = excluded.company_name,
			website_url = excluded.website_url,
			website_summary = excluded.website_summary,
			brand_voice = excluded.brand_voice,
			keywords = excluded.keywords,
			posting_cadence = excluded.posting_cadence,
			updated_at = excluded.updated_at`
	_, err := s.DB.ExecContext(ctx, query, p.UserID, p.CompanyName, p.WebsiteURL, p.WebsiteSummary,
		p.BrandVoice, encodeList(p.Keywords), p.PostingCadence)
	return err
}

func (s *Store) GetOnboarding(ctx context.Context, userID int) (models.OnboardingProfile, error) {
	query := `SELECT user_id, company_name, website_url, website_summary, brand_voice, keywords, posting_cadence
		FROM onboarding WHERE user_id = ?`

	var p models.OnboardingProfile
	var company, site, summary, voice, keywords, cadence sql.NullString
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &company, &site, &summary, &voice, &keywords, &cadence)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OnboardingProfile{}, fmt.Errorf("onboarding for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return models.OnboardingProfile{}, err
	}
	p.CompanyName = company.String
	p.WebsiteURL = site.String
	p.WebsiteSummary = summary.String
	p.BrandVoice = voice.String
	p.Keywords = decodeList(keywords)
	p.PostingCadence = cadence.String
	return p, nil
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	return out
}
