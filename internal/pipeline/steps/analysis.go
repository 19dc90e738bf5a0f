package steps

import (
	"context"
	"log"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/pipeline"
)

// Steps 1-3: strategy analysis, gap analysis, audience and platforms.

type StrategyAnalysis struct{ base }

func NewStrategyAnalysis(deps Deps) *StrategyAnalysis {
	return &StrategyAnalysis{newBase(pipeline.StepStrategyAnalysis, deps)}
}

var strategyAnalysisSchema = agent.Schema{
	Name:        "strategy_analysis",
	Description: "Submit the analysis of the content strategy",
	Properties: map[string]any{
		"summary":         str,
		"business_goals":  stringList,
		"target_audience": str,
		"strengths":       stringList,
		"weaknesses":      stringList,
		"kpis":            stringList,
	},
	Required: []string{"summary", "business_goals", "target_audience", "strengths", "kpis"},
}

const strategyAnalysisPrompt = `Analyse the content strategy below. Summarise it, restate the business goals,
describe the target audience, and list the strategy's strengths, weaknesses and
the KPIs that should measure it.`

func (s *StrategyAnalysis) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	st := snap.Strategy
	if st.Name == "" && len(st.BusinessGoals) == 0 && len(st.ContentPillars) == 0 {
		return pipeline.Output{}, pipeline.Validationf("strategy %d has no name, goals or pillars", snap.StrategyID)
	}

	inputs := map[string]any{
		pipeline.KeyStrategyData: map[string]any{
			"name":               st.Name,
			"business_goals":     st.BusinessGoals,
			"target_audience":    st.TargetAudience,
			"content_pillars":    st.ContentPillars,
			"preferred_channels": st.PreferredChannels,
			"competitors":        st.Competitors,
			"kpis":               st.KPIs,
		},
		pipeline.KeyOnboardingData: map[string]any{
			"company_name":    snap.Onboarding.CompanyName,
			"website_summary": snap.Onboarding.WebsiteSummary,
			"keywords":        snap.Onboarding.Keywords,
		},
	}
	out, err := s.generate(ctx, snap, s.instructions(strategyAnalysisPrompt), inputs, strategyAnalysisSchema)
	if err != nil {
		return pipeline.Output{}, err
	}
	return pipeline.Output{Payload: out, QualityScore: completeness(out, strategyAnalysisSchema.Required)}, nil
}

func (s *StrategyAnalysis) Fallback(snap *pipeline.Snapshot) map[string]any {
	st := snap.Strategy
	return map[string]any{
		"summary":         "Strategy " + orDefault(st.Name, "unnamed") + " for the " + orDefault(snap.Industry, "general") + " industry",
		"business_goals":  append([]string(nil), st.BusinessGoals...),
		"target_audience": orDefault(st.TargetAudience, "general audience"),
		"strengths":       []string{},
		"weaknesses":      []string{},
		"kpis":            append([]string(nil), st.KPIs...),
		"source":          "fallback",
	}
}

type GapAnalysis struct{ base }

func NewGapAnalysis(deps Deps) *GapAnalysis {
	return &GapAnalysis{newBase(pipeline.StepGapAnalysis, deps)}
}

var gapAnalysisSchema = agent.Schema{
	Name:        "gap_analysis",
	Description: "Submit content gaps and opportunities",
	Properties: map[string]any{
		"content_gaps":          stringList,
		"keyword_opportunities": stringList,
		"competitor_insights":   stringList,
		"trend_notes":           str,
	},
	Required: []string{"content_gaps", "keyword_opportunities", "competitor_insights"},
}

const gapAnalysisPrompt = `Identify the content gaps between this strategy and what its competitors and the
wider industry already publish. List keyword opportunities and concrete
competitor insights. Use the research notes when they are provided.`

func (s *GapAnalysis) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	analysis, err := snap.Require(pipeline.KeyStrategyAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}

	inputs := map[string]any{
		pipeline.KeyStrategyAnalysis: analysis,
		"competitors":                snap.Strategy.Competitors,
		"keywords":                   snap.Onboarding.Keywords,
	}

	var research string
	if s.deps.Trends != nil {
		research, err = s.deps.Trends.Trends(ctx, snap.Industry, snap.Onboarding.Keywords)
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Output{}, ctx.Err()
			}
			// Research is optional; the model can still reason from the strategy.
			log.Printf("[Steps] Trend search failed: %v", err)
		} else if research != "" {
			inputs["research_notes"] = research
		}
	}

	out, err := s.generate(ctx, snap, s.instructions(gapAnalysisPrompt), inputs, gapAnalysisSchema)
	if err != nil {
		return pipeline.Output{}, err
	}
	if research != "" {
		out["research_used"] = true
	}
	return pipeline.Output{Payload: out, QualityScore: completeness(out, gapAnalysisSchema.Required)}, nil
}

func (s *GapAnalysis) Fallback(snap *pipeline.Snapshot) map[string]any {
	var gaps []string
	for _, p := range snap.Strategy.ContentPillars {
		gaps = append(gaps, "Deeper coverage of "+p)
	}
	return map[string]any{
		"content_gaps":          gaps,
		"keyword_opportunities": append([]string(nil), snap.Onboarding.Keywords...),
		"competitor_insights":   []string{},
		"trend_notes":           "",
		"source":                "fallback",
	}
}

type AudiencePlatform struct{ base }

func NewAudiencePlatform(deps Deps) *AudiencePlatform {
	return &AudiencePlatform{newBase(pipeline.StepAudiencePlatform, deps)}
}

var audiencePlatformSchema = agent.Schema{
	Name:        "audience_platform",
	Description: "Submit audience segments and the platforms to reach them",
	Properties: map[string]any{
		"audience_segments": stringList,
		"platforms": objectList(map[string]any{
			"name":      str,
			"priority":  integer,
			"rationale": str,
		}, "name", "priority"),
		"posting_windows": stringList,
	},
	Required: []string{"audience_segments", "platforms"},
}

const audiencePlatformPrompt = `Segment the target audience and choose the platforms that reach each segment.
Rank platforms by priority (1 is highest) and give a one-line rationale for each.
Suggest posting windows when they matter for the audience.`

func (s *AudiencePlatform) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	analysis, err := snap.Require(pipeline.KeyStrategyAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}
	inputs := map[string]any{
		pipeline.KeyStrategyAnalysis: analysis,
		"preferred_channels":         snap.Strategy.PreferredChannels,
		"posting_cadence":            snap.Onboarding.PostingCadence,
	}
	out, err := s.generate(ctx, snap, s.instructions(audiencePlatformPrompt), inputs, audiencePlatformSchema)
	if err != nil {
		return pipeline.Output{}, err
	}
	return pipeline.Output{Payload: out, QualityScore: completeness(out, audiencePlatformSchema.Required)}, nil
}

func (s *AudiencePlatform) Fallback(snap *pipeline.Snapshot) map[string]any {
	channels := snap.Strategy.PreferredChannels
	if len(channels) == 0 {
		channels = defaultChannels
	}
	platforms := make([]any, 0, len(channels))
	for i, c := range channels {
		platforms = append(platforms, map[string]any{
			"name":      c,
			"priority":  i + 1,
			"rationale": "preferred channel",
		})
	}
	audience := snap.Strategy.TargetAudience
	segments := []string{}
	if audience != "" {
		segments = append(segments, audience)
	}
	return map[string]any{
		"audience_segments": segments,
		"platforms":         platforms,
		"posting_windows":   []string{},
		"source":            "fallback",
	}
}

var defaultChannels = []string{"linkedin", "blog"}
