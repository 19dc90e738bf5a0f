package steps

import (
	"context"
	"strings"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/pipeline"
)

// Steps 4-6: calendar structure, content pillars, platform strategy.

type CalendarStructure struct{ base }

func NewCalendarStructure(deps Deps) *CalendarStructure {
	return &CalendarStructure{newBase(pipeline.StepCalendarStructure, deps)}
}

var calendarStructureSchema = agent.Schema{
	Name:        "calendar_structure",
	Description: "Submit the posting cadence and platform mix of the calendar",
	Properties: map[string]any{
		"posts_per_week": integer,
		"platform_mix": map[string]any{
			"type":                 "object",
			"additionalProperties": integer,
		},
		"cadence": str,
		"notes":   str,
	},
	Required: []string{"posts_per_week", "platform_mix", "cadence"},
}

const calendarStructurePrompt = `Decide how many posts per week this business can sustain and how they split
across the chosen platforms (platform_mix maps platform name to posts per week).
Describe the cadence in one sentence.`

func (s *CalendarStructure) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	analysis, err := snap.Require(pipeline.KeyStrategyAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}
	audience, err := snap.Require(pipeline.KeyAudiencePlatform)
	if err != nil {
		return pipeline.Output{}, err
	}
	if snap.DurationDays <= 0 {
		return pipeline.Output{}, pipeline.Validationf("calendar type %q has no duration", snap.CalendarType)
	}

	inputs := map[string]any{
		pipeline.KeyStrategyAnalysis: analysis,
		pipeline.KeyAudiencePlatform: audience,
		"posting_cadence":            snap.Onboarding.PostingCadence,
	}
	out, err := s.generate(ctx, snap, s.instructions(calendarStructurePrompt), inputs, calendarStructureSchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	quality := completeness(out, calendarStructureSchema.Required)
	if intOf(out["posts_per_week"]) <= 0 {
		out["posts_per_week"] = postsPerWeek(snap.BusinessSize)
		quality -= 0.2
	}
	// Duration is fixed by the calendar type, never by the model.
	out["duration_days"] = snap.DurationDays
	out["weeks"] = weeksIn(snap.DurationDays)
	out["total_posts"] = intOf(out["posts_per_week"]) * weeksIn(snap.DurationDays)
	return pipeline.Output{Payload: out, QualityScore: clamp(quality)}, nil
}

func (s *CalendarStructure) Fallback(snap *pipeline.Snapshot) map[string]any {
	perWeek := postsPerWeek(snap.BusinessSize)
	platforms := platformNames(snap)
	mix := make(map[string]any, len(platforms))
	for i, p := range platforms {
		share := perWeek / len(platforms)
		if i < perWeek%len(platforms) {
			share++
		}
		mix[p] = share
	}
	return map[string]any{
		"duration_days":  snap.DurationDays,
		"weeks":          weeksIn(snap.DurationDays),
		"posts_per_week": perWeek,
		"total_posts":    perWeek * weeksIn(snap.DurationDays),
		"platform_mix":   mix,
		"cadence":        "steady weekly cadence",
		"source":         "fallback",
	}
}

func postsPerWeek(businessSize string) int {
	switch strings.ToLower(businessSize) {
	case "enterprise", "large":
		return 7
	case "medium", "mid", "smb":
		return 5
	}
	return 3
}

func weeksIn(days int) int {
	if days <= 0 {
		return 0
	}
	return (days + 6) / 7
}

// platformNames prefers the audience step's ranking, then the strategy's
// preferred channels.
func platformNames(snap *pipeline.Snapshot) []string {
	if ap, ok := snap.Section(pipeline.KeyAudiencePlatform); ok {
		if n := names(listOf(ap["platforms"])); len(n) > 0 {
			return n
		}
	}
	if len(snap.Strategy.PreferredChannels) > 0 {
		return append([]string(nil), snap.Strategy.PreferredChannels...)
	}
	return append([]string(nil), defaultChannels...)
}

type ContentPillars struct{ base }

func NewContentPillars(deps Deps) *ContentPillars {
	return &ContentPillars{newBase(pipeline.StepContentPillars, deps)}
}

var contentPillarsSchema = agent.Schema{
	Name:        "content_pillars",
	Description: "Submit the content pillars with their share of the calendar",
	Properties: map[string]any{
		"pillars": objectList(map[string]any{
			"name":        str,
			"description": str,
			"share":       number,
		}, "name", "share"),
	},
	Required: []string{"pillars"},
}

const contentPillarsPrompt = `Define three to six content pillars for this calendar. Give each a short
description and the share of posts it should receive; shares add up to 1.`

func (s *ContentPillars) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	analysis, err := snap.Require(pipeline.KeyStrategyAnalysis)
	if err != nil {
		return pipeline.Output{}, err
	}
	structure, err := snap.Require(pipeline.KeyCalendarStructure)
	if err != nil {
		return pipeline.Output{}, err
	}
	inputs := map[string]any{
		pipeline.KeyStrategyAnalysis:  analysis,
		pipeline.KeyCalendarStructure: structure,
		"existing_pillars":            snap.Strategy.ContentPillars,
	}
	out, err := s.generate(ctx, snap, s.instructions(contentPillarsPrompt), inputs, contentPillarsSchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	pillars := listOf(out["pillars"])
	quality := completeness(out, contentPillarsSchema.Required)
	var total float64
	for _, p := range pillars {
		total += floatOf(p["share"])
	}
	if len(pillars) > 0 && (total < 0.9 || total > 1.1) {
		quality -= 0.2
	}
	return pipeline.Output{Payload: out, QualityScore: clamp(quality)}, nil
}

func (s *ContentPillars) Fallback(snap *pipeline.Snapshot) map[string]any {
	src := snap.Strategy.ContentPillars
	if len(src) == 0 {
		src = []string{"Education", "Product", "Community"}
	}
	share := 1 / float64(len(src))
	pillars := make([]any, 0, len(src))
	for _, name := range src {
		pillars = append(pillars, map[string]any{
			"name":        name,
			"description": "",
			"share":       share,
		})
	}
	return map[string]any{"pillars": pillars, "source": "fallback"}
}

// pillarNames reads the pillars merged by step 5, defaulting like its
// fallback does.
func pillarNames(snap *pipeline.Snapshot) []string {
	if cp, ok := snap.Section(pipeline.KeyContentPillars); ok {
		if n := names(listOf(cp["pillars"])); len(n) > 0 {
			return n
		}
	}
	if len(snap.Strategy.ContentPillars) > 0 {
		return append([]string(nil), snap.Strategy.ContentPillars...)
	}
	return []string{"Education", "Product", "Community"}
}

type PlatformStrategy struct{ base }

func NewPlatformStrategy(deps Deps) *PlatformStrategy {
	return &PlatformStrategy{newBase(pipeline.StepPlatformStrategy, deps)}
}

var platformStrategySchema = agent.Schema{
	Name:        "platform_strategy",
	Description: "Submit the per-platform content strategy",
	Properties: map[string]any{
		"platforms": objectList(map[string]any{
			"name":          str,
			"content_types": stringList,
			"tone":          str,
			"frequency":     str,
		}, "name", "content_types"),
	},
	Required: []string{"platforms"},
}

const platformStrategyPrompt = `For every chosen platform, describe the content types that work there, the tone
to use and how often to post. Cover each content pillar on at least one platform.`

func (s *PlatformStrategy) Execute(ctx context.Context, snap *pipeline.Snapshot) (pipeline.Output, error) {
	audience, err := snap.Require(pipeline.KeyAudiencePlatform)
	if err != nil {
		return pipeline.Output{}, err
	}
	pillars, err := snap.Require(pipeline.KeyContentPillars)
	if err != nil {
		return pipeline.Output{}, err
	}
	inputs := map[string]any{
		pipeline.KeyAudiencePlatform: audience,
		pipeline.KeyContentPillars:   pillars,
	}
	out, err := s.generate(ctx, snap, s.instructions(platformStrategyPrompt), inputs, platformStrategySchema)
	if err != nil {
		return pipeline.Output{}, err
	}

	wanted := names(listOf(audience["platforms"]))
	got := make(map[string]bool)
	for _, n := range names(listOf(out["platforms"])) {
		got[strings.ToLower(n)] = true
	}
	covered := 0
	for _, n := range wanted {
		if got[strings.ToLower(n)] {
			covered++
		}
	}
	quality := completeness(out, platformStrategySchema.Required) * ratio(covered, len(wanted))
	return pipeline.Output{Payload: out, QualityScore: quality}, nil
}

func (s *PlatformStrategy) Fallback(snap *pipeline.Snapshot) map[string]any {
	var platforms []any
	for _, name := range platformNames(snap) {
		platforms = append(platforms, map[string]any{
			"name":          name,
			"content_types": []string{"post"},
			"tone":          orDefault(snap.Onboarding.BrandVoice, "professional"),
			"frequency":     "weekly",
		})
	}
	return map[string]any{"platforms": platforms, "source": "fallback"}
}
