package models

import "time"

// Calendar is the final artifact assembled from every step's namespace.
type Calendar struct {
	SessionID        string          `json:"session_id"`
	UserID           int             `json:"user_id"`
	StrategyID       int             `json:"strategy_id"`
	CalendarType     string          `json:"calendar_type"`
	Industry         string          `json:"industry"`
	BusinessSize     string          `json:"business_size"`
	DurationDays     int             `json:"duration_days"`
	GeneratedAt      time.Time       `json:"generated_at"`
	AggregateQuality float64         `json:"aggregate_quality"`
	QualityScores    map[int]float64 `json:"quality_scores"`

	StrategyAnalysis        map[string]any `json:"strategy_analysis,omitempty"`
	GapAnalysis             map[string]any `json:"gap_analysis,omitempty"`
	AudiencePlatform        map[string]any `json:"audience_platform,omitempty"`
	Structure               map[string]any `json:"calendar_structure,omitempty"`
	ContentPillars          map[string]any `json:"content_pillars,omitempty"`
	PlatformStrategy        map[string]any `json:"platform_strategy,omitempty"`
	WeeklyThemes            map[string]any `json:"weekly_themes,omitempty"`
	DailySchedule           map[string]any `json:"daily_schedule,omitempty"`
	ContentRecommendations  map[string]any `json:"content_recommendations,omitempty"`
	PerformanceOptimization map[string]any `json:"performance_optimization,omitempty"`
	StrategyAlignment       map[string]any `json:"strategy_alignment,omitempty"`
	FinalAssembly           map[string]any `json:"final_assembly,omitempty"`
}

// StrategyRecord is a user's saved content strategy.
type StrategyRecord struct {
	ID                int      `json:"id"`
	UserID            int      `json:"user_id"`
	Name              string   `json:"name"`
	Industry          string   `json:"industry"`
	BusinessGoals     []string `json:"business_goals"`
	TargetAudience    string   `json:"target_audience"`
	ContentPillars    []string `json:"content_pillars"`
	PreferredChannels []string `json:"preferred_channels"`
	Competitors       []string `json:"competitors"`
	KPIs              []string `json:"kpis"`
}

// OnboardingProfile is what the user told us during onboarding.
type OnboardingProfile struct {
	UserID         int      `json:"user_id"`
	CompanyName    string   `json:"company_name"`
	WebsiteURL     string   `json:"website_url"`
	WebsiteSummary string   `json:"website_summary,omitempty"`
	BrandVoice     string   `json:"brand_voice"`
	Keywords       []string `json:"keywords"`
	PostingCadence string   `json:"posting_cadence"`
}
