package pipeline

import "fmt"

// StepID identifies one of the twelve fixed pipeline steps.
type StepID int

const (
	StepStrategyAnalysis StepID = iota + 1
	StepGapAnalysis
	StepAudiencePlatform
	StepCalendarStructure
	StepContentPillars
	StepPlatformStrategy
	StepWeeklyThemes
	StepDailySchedule
	StepContentRecommendations
	StepPerformanceOptimization
	StepStrategyAlignment
	StepFinalAssembly
)

// StepCount is the number of steps in every session.
const StepCount = 12

// Phase groups consecutive steps sharing a coarse objective.
type Phase int

const (
	PhaseStrategyAnalysis Phase = iota + 1
	PhaseStructure
	PhaseContent
	PhaseOptimization
)

func (p Phase) String() string {
	switch p {
	case PhaseStrategyAnalysis:
		return "strategy_analysis"
	case PhaseStructure:
		return "structure"
	case PhaseContent:
		return "content"
	case PhaseOptimization:
		return "optimization"
	}
	return fmt.Sprintf("phase_%d", int(p))
}

// Namespaces written by each step.
const (
	KeyStrategyAnalysis        = "strategy_analysis"
	KeyGapAnalysis             = "gap_analysis"
	KeyAudiencePlatform        = "audience_platform"
	KeyCalendarStructure       = "calendar_structure"
	KeyContentPillars          = "content_pillars"
	KeyPlatformStrategy        = "platform_strategy"
	KeyWeeklyThemes            = "weekly_themes"
	KeyDailySchedule           = "daily_schedule"
	KeyContentRecommendations  = "content_recommendations"
	KeyPerformanceOptimization = "performance_optimization"
	KeyStrategyAlignment       = "strategy_alignment"
	KeyFinalAssembly           = "final_assembly"
)

// Descriptor is the static contract of a step.
type Descriptor struct {
	ID         StepID
	Name       string
	Key        string
	Phase      Phase
	Requires   []string
	MinQuality float64
	// Critical steps treat unclassified errors as fatal.
	Critical bool
}

func (d Descriptor) String() string {
	return fmt.Sprintf("step %d (%s)", int(d.ID), d.Name)
}

var catalog = [StepCount]Descriptor{
	{
		ID: StepStrategyAnalysis, Name: "Content Strategy Analysis", Key: KeyStrategyAnalysis,
		Phase: PhaseStrategyAnalysis, Requires: []string{KeyStrategyData, KeyOnboardingData},
		MinQuality: 0.7, Critical: true,
	},
	{
		ID: StepGapAnalysis, Name: "Gap Analysis and Opportunities", Key: KeyGapAnalysis,
		Phase: PhaseStructure, Requires: []string{KeyStrategyAnalysis},
		MinQuality: 0.6,
	},
	{
		ID: StepAudiencePlatform, Name: "Audience and Platform Strategy", Key: KeyAudiencePlatform,
		Phase: PhaseStructure, Requires: []string{KeyStrategyAnalysis, KeyOnboardingData},
		MinQuality: 0.6,
	},
	{
		ID: StepCalendarStructure, Name: "Calendar Framework and Timeline", Key: KeyCalendarStructure,
		Phase: PhaseStructure, Requires: []string{KeyStrategyAnalysis, KeyAudiencePlatform},
		MinQuality: 0.7, Critical: true,
	},
	{
		ID: StepContentPillars, Name: "Content Pillar Distribution", Key: KeyContentPillars,
		Phase: PhaseStructure, Requires: []string{KeyStrategyAnalysis, KeyCalendarStructure},
		MinQuality: 0.6,
	},
	{
		ID: StepPlatformStrategy, Name: "Platform-Specific Strategy", Key: KeyPlatformStrategy,
		Phase: PhaseContent, Requires: []string{KeyAudiencePlatform, KeyContentPillars},
		MinQuality: 0.6,
	},
	{
		ID: StepWeeklyThemes, Name: "Weekly Theme Development", Key: KeyWeeklyThemes,
		Phase: PhaseContent, Requires: []string{KeyCalendarStructure, KeyContentPillars, KeyGapAnalysis},
		MinQuality: 0.6,
	},
	{
		ID: StepDailySchedule, Name: "Daily Content Planning", Key: KeyDailySchedule,
		Phase: PhaseContent, Requires: []string{KeyCalendarStructure, KeyWeeklyThemes, KeyPlatformStrategy},
		MinQuality: 0.6,
	},
	{
		ID: StepContentRecommendations, Name: "Content Recommendations", Key: KeyContentRecommendations,
		Phase: PhaseContent, Requires: []string{KeyDailySchedule, KeyGapAnalysis},
		MinQuality: 0.5,
	},
	{
		ID: StepPerformanceOptimization, Name: "Performance Optimization", Key: KeyPerformanceOptimization,
		Phase: PhaseOptimization, Requires: []string{KeyDailySchedule, KeyContentRecommendations},
		MinQuality: 0.5,
	},
	{
		ID: StepStrategyAlignment, Name: "Strategy Alignment Validation", Key: KeyStrategyAlignment,
		Phase: PhaseOptimization, Requires: []string{KeyStrategyAnalysis, KeyContentPillars, KeyDailySchedule},
		MinQuality: 0.6,
	},
	{
		ID: StepFinalAssembly, Name: "Final Calendar Assembly", Key: KeyFinalAssembly,
		Phase: PhaseOptimization,
		Requires: []string{
			KeyCalendarStructure, KeyDailySchedule, KeyPerformanceOptimization, KeyStrategyAlignment,
		},
		MinQuality: 0.7, Critical: true,
	},
}

// Catalog returns the canonical step order.
func Catalog() []Descriptor {
	out := make([]Descriptor, StepCount)
	copy(out, catalog[:])
	return out
}

// DescriptorFor returns the canonical descriptor of id.
func DescriptorFor(id StepID) (Descriptor, bool) {
	if id < 1 || int(id) > StepCount {
		return Descriptor{}, false
	}
	return catalog[id-1], true
}

// MustDescriptor is DescriptorFor for ids known at compile time.
func MustDescriptor(id StepID) Descriptor {
	d, ok := DescriptorFor(id)
	if !ok {
		panic(fmt.Sprintf("pipeline: unknown step id %d", int(id)))
	}
	return d
}
