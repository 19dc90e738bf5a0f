package steps

import (
	"context"
	"fmt"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/pipeline"
)

// Steps 7-9: weekly themes, daily schedule, content recommendations.

type WeeklyThemes struct{ base }

func NewWeeklyThemes(deps Deps) *WeeklyThemes {
	return &WeeklyThemes{newBase(pipeline.StepWeeklyThemes, deps)}
}

var weeklyThemesSchema = agent.Schema{
	Name:        "weekly_themes",
	Description: "Submit one theme per calendar week",
	Properties: map[string]any{
		"themes": objectList(map[string]any{
			"week":      integer,
			"theme":     str,
			"pillar":    str,
			"focus_gap": str,
		}, "week", "theme", "pillar"),
	},
	Required: []string{"themes"},
}

const weeklyThemesPrompt = `Give every week of the calendar one theme. Each theme belongs to a content
pillar and, where possible, closes one of the identified content gaps.`

func (s *WeeklyThemes) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	structure, err := snap.Require(pipeline.KeyCalendarStructure)
	if err != nil {
		return pipeline.Output{}, err
	}
	pillars, err := snap.Require(pipeline.KeyContentPillars)
	if err != nil {
		return pipeline.Output{}, err
	}
	gaps, err := snap.Require(pipeline.KeyGapAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}
	weeks := intOf(structure["weeks"])
	if weeks <= 0 {
		return pipeline.Output{}, pipeline.Validationf("calendar structure has no weeks")
	}

	inputs := map[string]any{
		pipeline.KeyCalendarStructure: structure,
		pipeline.KeyContentPillars:    pillars,
		pipeline.KeyGapAnalysis:       gaps,
		"weeks":                       weeks,
	}
	out, err := s.generate(ctx, snap, s.instructions(weeklyThemesPrompt), inputs, weeklyThemesSchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	seen := make(map[int]bool)
	for _, t := range listOf(out["themes"]) {
		if w := intOf(t["week"]); w >= 1 && w <= weeks {
			seen[w] = true
		}
	}
	quality := completeness(out, weeklyThemesSchema.Required) * ratio(len(seen), weeks)
	return pipeline.Output{Payload: out, QualityScore: quality}, nil
}

func (s *WeeklyThemes) Fallback(snap *pipeline.Snapshot) map[string]any {
	weeks := weeksIn(snap.DurationDays)
	if cs, ok := snap.Section(pipeline.KeyCalendarStructure); ok && intOf(cs["weeks"]) > 0 {
		weeks = intOf(cs["weeks"])
	}
	pillars := pillarNames(snap)
	var gaps []string
	if ga, ok := snap.Section(pipeline.KeyGapAnalysis); ok {
		gaps = stringsOf(ga["content_gaps"])
	}

	themes := make([]any, 0, weeks)
	for w := 1; w <= weeks; w++ {
		pillar := pillars[(w-1)%len(pillars)]
		theme := map[string]any{
			"week":   w,
			"theme":  pillar + " focus",
			"pillar": pillar,
		}
		if len(gaps) > 0 {
			theme["focus_gap"] = gaps[(w-1)%len(gaps)]
		}
		themes = append(themes, theme)
	}
	return map[string]any{"themes": themes, "source": "fallback"}
}

type DailySchedule struct{ base }

func NewDailySchedule(deps Deps) *DailySchedule {
	return &DailySchedule{newBase(pipeline.StepDailySchedule, deps)}
}

var dailyScheduleSchema = agent.Schema{
	Name:        "daily_schedule",
	Description: "Submit the dated posting schedule",
	Properties: map[string]any{
		"entries": objectList(map[string]any{
			"day":          integer,
			"platform":     str,
			"pillar":       str,
			"theme":        str,
			"content_type": str,
			"title":        str,
		}, "day", "platform", "title"),
	},
	Required: []string{"entries"},
}

const dailySchedulePrompt = `Lay out the posting schedule. Each entry has a day number starting at 1, the
platform, the pillar and weekly theme it serves, a content type and a working
title. Follow the platform mix and posts per week of the calendar structure.`

func (s *DailySchedule) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	structure, err := snap.Require(pipeline.KeyCalendarStructure)
	if err != nil {
		return pipeline.Output{}, err
	}
	themes, err := snap.Require(pipeline.KeyWeeklyThemes)
	if err != nil {
		return pipeline.Output{}, err
	}
	platforms, err := snap.Require(pipeline.KeyPlatformStrategy)
	if err != nil {
		return pipeline.Output{}, err
	}

	inputs := map[string]any{
		pipeline.KeyCalendarStructure: structure,
		pipeline.KeyWeeklyThemes:      themes,
		pipeline.KeyPlatformStrategy:  platforms,
	}
	out, err := s.generate(ctx, snap, s.instructions(dailySchedulePrompt), inputs, dailyScheduleSchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	entries := listOf(out["entries"])
	kept := make([]any, 0, len(entries))
	for _, e := range entries {
		if d := intOf(e["day"]); d >= 1 && d <= snap.DurationDays {
			kept = append(kept, e)
		}
	}
	dropped := len(entries) - len(kept)
	out["entries"] = kept
	if dropped > 0 {
		out["dropped_entries"] = dropped
	}

	want := intOf(structure["total_posts"])
	quality := completeness(out, dailyScheduleSchema.Required) * ratio(len(kept), want)
	if len(entries) > 0 {
		quality *= float64(len(kept)) / float64(len(entries))
	}
	return pipeline.Output{Payload: out, QualityScore: clamp(quality)}, nil
}

func (s *DailySchedule) Fallback(snap *pipeline.Snapshot) map[string]any {
	perWeek := postsPerWeek(snap.BusinessSize)
	if cs, ok := snap.Section(pipeline.KeyCalendarStructure); ok && intOf(cs["posts_per_week"]) > 0 {
		perWeek = intOf(cs["posts_per_week"])
	}
	if perWeek > 7 {
		perWeek = 7
	}
	platforms := platformNames(snap)
	pillars := pillarNames(snap)
	themes := themesByWeek(snap)

	var entries []any
	n := 0
	for week := 0; week*7 < snap.DurationDays; week++ {
		for i := 0; i < perWeek; i++ {
			day := week*7 + 1 + i*7/perWeek
			if day > snap.DurationDays {
				break
			}
			pillar := pillars[n%len(pillars)]
			theme := themes[week+1]
			if theme == "" {
				theme = pillar
			}
			entries = append(entries, map[string]any{
				"day":          day,
				"platform":     platforms[n%len(platforms)],
				"pillar":       pillar,
				"theme":        theme,
				"content_type": "post",
				"title":        fmt.Sprintf("%s: %s", theme, pillar),
			})
			n++
		}
	}
	return map[string]any{"entries": entries, "source": "fallback"}
}

func themesByWeek(snap *pipeline.Snapshot) map[int]string {
	out := make(map[int]string)
	if wt, ok := snap.Section(pipeline.KeyWeeklyThemes); ok {
		for _, t := range listOf(wt["themes"]) {
			out[intOf(t["week"])] = stringOf(t["theme"])
		}
	}
	return out
}

func scheduleEntries(snap *pipeline.Snapshot) []map[string]any {
	ds, ok := snap.Section(pipeline.KeyDailySchedule)
	if !ok {
		return nil
	}
	return listOf(ds["entries"])
}

type ContentRecommendations struct{ base }

func NewContentRecommendations(deps Deps) *ContentRecommendations {
	return &ContentRecommendations{newBase(pipeline.StepContentRecommendations, deps)}
}

var contentRecommendationsSchema = agent.Schema{
	Name:        "content_recommendations",
	Description: "Submit a concrete content idea for scheduled posts",
	Properties: map[string]any{
		"recommendations": objectList(map[string]any{
			"day":      integer,
			"title":    str,
			"format":   str,
			"keywords": stringList,
			"gap":      str,
		}, "day", "title"),
	},
	Required: []string{"recommendations"},
}

const contentRecommendationsPrompt = `Turn the scheduled posts into concrete content ideas: a publishable title, the
format, target keywords and the content gap each one addresses.`

func (s *ContentRecommendations) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	schedule, err := snap.Require(pipeline.KeyDailySchedule)
	if err != nil {
		return pipeline.Output{}, err
	}
	gaps, err := snap.Require(pipeline.KeyGapAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}
	entries := listOf(schedule["entries"])
	if len(entries) == 0 {
		return pipeline.Output{}, pipeline.Validationf("daily schedule is empty")
	}

	inputs := map[string]any{
		pipeline.KeyDailySchedule: schedule,
		pipeline.KeyGapAnalysis:   gaps,
	}
	out, err := s.generate(ctx, snap, s.instructions(contentRecommendationsPrompt), inputs, contentRecommendationsSchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	recs := listOf(out["recommendations"])
	kept := make([]any, 0, len(recs))
	var violations []string
	for _, r := range recs {
		v := policyViolations(ctx, s.deps.Policy, "title", []string{stringOf(r["title"])})
		if len(v) > 0 {
			violations = append(violations, v...)
			continue
		}
		kept = append(kept, r)
	}
	out["recommendations"] = kept
	if len(violations) > 0 {
		out["policy_violations"] = violations
	}

	quality := completeness(out, contentRecommendationsSchema.Required) * ratio(len(kept), len(entries))
	return pipeline.Output{Payload: out, QualityScore: quality}, nil
}

func (s *ContentRecommendations) Fallback(snap *pipeline.Snapshot) map[string]any {
	var recs []any
	for _, e := range scheduleEntries(snap) {
		recs = append(recs, map[string]any{
			"day":      intOf(e["day"]),
			"title":    stringOf(e["title"]),
			"format":   orDefault(stringOf(e["content_type"]), "post"),
			"keywords": append([]string(nil), snap.Onboarding.Keywords...),
		})
	}
	return map[string]any{"recommendations": recs, "source": "fallback"}
}
