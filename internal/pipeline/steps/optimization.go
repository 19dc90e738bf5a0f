package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/pipeline"
)

// Steps 10-12: performance optimization, strategy alignment, final assembly.

type PerformanceOptimization struct{ base }

func NewPerformanceOptimization(deps Deps) *PerformanceOptimization {
	return &PerformanceOptimization{newBase(pipeline.StepPerformanceOptimization, deps)}
}

var performanceOptimizationSchema = agent.Schema{
	Name:        "performance_optimization",
	Description: "Submit recommendations to improve calendar performance",
	Properties: map[string]any{
		"recommendations": stringList,
		"kpi_targets": objectList(map[string]any{
			"kpi":    str,
			"target": str,
		}, "kpi", "target"),
		"ab_tests": stringList,
	},
	Required: []string{"recommendations", "kpi_targets"},
}

const performanceOptimizationPrompt = `Suggest how to get more out of this schedule: timing and format changes, KPI
targets for the calendar period and a few A/B tests worth running.`

func (s *PerformanceOptimization) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	schedule, err := snap.Require(pipeline.KeyDailySchedule)
	if err != nil {
		return pipeline.Output{}, err
	}
	recs, err := snap.Require(pipeline.KeyContentRecommendations)
	if err != nil {
		return pipeline.Output{}, err
	}
	inputs := map[string]any{
		pipeline.KeyDailySchedule:          schedule,
		pipeline.KeyContentRecommendations: recs,
		"kpis":                             snap.Strategy.KPIs,
	}
	out, err := s.generate(ctx, snap, s.instructions(performanceOptimizationPrompt), inputs, performanceOptimizationSchema)
	if err != nil {
		return pipeline.Output{}, err
	}
	return pipeline.Output{Payload: out, QualityScore: completeness(out, performanceOptimizationSchema.Required)}, nil
}

func (s *PerformanceOptimization) Fallback(snap *pipeline.Snapshot) map[string]any {
	var targets []any
	for _, k := range snap.Strategy.KPIs {
		targets = append(targets, map[string]any{"kpi": k, "target": "maintain baseline"})
	}
	return map[string]any{
		"recommendations": []string{"Review post performance weekly and reschedule low performers"},
		"kpi_targets":     targets,
		"ab_tests":        []string{},
		"source":          "fallback",
	}
}

type StrategyAlignment struct{ base }

func NewStrategyAlignment(deps Deps) *StrategyAlignment {
	return &StrategyAlignment{newBase(pipeline.StepStrategyAlignment, deps)}
}

var strategyAlignmentSchema = agent.Schema{
	Name:        "strategy_alignment",
	Description: "Submit how well the calendar serves the strategy",
	Properties: map[string]any{
		"alignment_score": number,
		"aligned_goals":   stringList,
		"misalignments":   stringList,
		"adjustments":     stringList,
	},
	Required: []string{"alignment_score", "aligned_goals"},
}

const strategyAlignmentPrompt = `Check the schedule against the strategy. Score the alignment between 0 and 1,
list the business goals the calendar serves, any misalignments, and the
adjustments that would fix them.`

func (s *StrategyAlignment) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	analysis, err := snap.Require(pipeline.KeyStrategyAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}
	pillars, err := snap.Require(pipeline.KeyContentPillars)
	if err != nil {
		return pipeline.Output{}, err
	}
	schedule, err := snap.Require(pipeline.KeyDailySchedule)
	if err != nil {
		return pipeline.Output{}, err
	}

	inputs := map[string]any{
		pipeline.KeyStrategyAnalysis: analysis,
		pipeline.KeyContentPillars:   pillars,
		pipeline.KeyDailySchedule:    schedule,
	}
	out, err := s.generate(ctx, snap, s.instructions(strategyAlignmentPrompt), inputs, strategyAlignmentSchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	score := clamp(floatOf(out["alignment_score"]))
	out["alignment_score"] = score

	var titles []string
	for _, e := range listOf(schedule["entries"]) {
		titles = append(titles, stringOf(e["title"]))
	}
	violations := policyViolations(ctx, s.deps.Policy, "schedule title", titles)
	if len(violations) > 0 {
		out["policy_violations"] = violations
	}

	quality := completeness(out, strategyAlignmentSchema.Required)*0.5 + score*0.5
	if len(titles) > 0 {
		quality *= 1 - float64(len(violations))/float64(len(titles))
	}
	return pipeline.Output{Payload: out, QualityScore: clamp(quality)}, nil
}

func (s *StrategyAlignment) Fallback(snap *pipeline.Snapshot) map[string]any {
	return map[string]any{
		"alignment_score": 0.0,
		"aligned_goals":   []string{},
		"misalignments":   []string{},
		"adjustments":     []string{"Review the calendar against the strategy manually"},
		"source":          "fallback",
	}
}

type FinalAssembly struct{ base }

func NewFinalAssembly(deps Deps) *FinalAssembly {
	return &FinalAssembly{newBase(pipeline.StepFinalAssembly, deps)}
}

var finalAssemblySchema = agent.Schema{
	Name:        "final_assembly",
	Description: "Submit the executive summary of the calendar",
	Properties: map[string]any{
		"summary":    str,
		"highlights": stringList,
		"next_steps": stringList,
	},
	Required: []string{"summary", "highlights"},
}

const finalAssemblyPrompt = `Write the executive summary of this content calendar: two or three sentences,
the highlights a marketing lead should notice, and the next steps to put it into
production.`

func (s *FinalAssembly) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	structure, err := snap.Require(pipeline.KeyCalendarStructure)
	if err != nil {
		return pipeline.Output{}, err
	}
	perf, err := snap.Require(pipeline.KeyPerformanceOptimization)
	if err != nil {
		return pipeline.Output{}, err
	}
	alignment, err := snap.Require(pipeline.KeyStrategyAlignment)
	if err != nil {
		return pipeline.Output{}, err
	}
	schedule, err := snap.Require(pipeline.KeyDailySchedule)
	if err != nil {
		return pipeline.Output{}, err
	}
	entries := listOf(schedule["entries"])

	stats := scheduleStats(entries)
	inputs := map[string]any{
		pipeline.KeyCalendarStructure:       structure,
		pipeline.KeyPerformanceOptimization: perf,
		pipeline.KeyStrategyAlignment:       alignment,
		"schedule_stats":                    stats,
	}
	out, err := s.generate(ctx, snap, s.instructions(finalAssemblyPrompt), inputs, finalAssemblySchema)
	if err != nil {
		return pipeline.Output{}, err
	}
	for k, v := range stats {
		out[k] = v
	}
	quality := completeness(out, finalAssemblySchema.Required)
	if len(entries) == 0 {
		quality *= 0.5
	}
	out["ready"] = quality >= s.desc.MinQuality
	return pipeline.Output{Payload: out, QualityScore: quality}, nil
}

func (s *FinalAssembly) Fallback(snap *pipeline.Snapshot) map[string]any {
	out := scheduleStats(scheduleEntries(snap))
	out["summary"] = "A " + snap.CalendarType + " content calendar for the " + orDefault(snap.Industry, "general") + " industry"
	out["highlights"] = []string{}
	out["next_steps"] = []string{"Review every scheduled post before publishing"}
	out["ready"] = false
	out["source"] = "fallback"
	return out
}

func scheduleStats(entries []map[string]any) map[string]any {
	perPlatform := make(map[string]any)
	counts := make(map[string]int)
	for _, e := range entries {
		counts[strings.ToLower(stringOf(e["platform"]))]++
	}
	platforms := make([]string, 0, len(counts))
	for p, n := range counts {
		platforms = append(platforms, p)
		perPlatform[p] = n
	}
	sort.Strings(platforms)
	return map[string]any{
		"total_posts":        len(entries),
		"platforms":          platforms,
		"posts_per_platform": perPlatform,
	}
}
