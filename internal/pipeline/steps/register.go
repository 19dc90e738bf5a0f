package steps

import (
	"fmt"

	"github.com/rahul/contentcal/internal/pipeline"
)

// All returns one implementation per catalog entry, in order.
func All(deps Deps) []pipeline.Step {
	return []pipeline.Step{
		NewStrategyAnalysis(deps),
		NewGapAnalysis(deps),
		NewAudiencePlatform(deps),
		NewCalendarStructure(deps),
		NewContentPillars(deps),
		NewPlatformStrategy(deps),
		NewWeeklyThemes(deps),
		NewDailySchedule(deps),
		NewContentRecommendations(deps),
		NewPerformanceOptimization(deps),
		NewStrategyAlignment(deps),
		NewFinalAssembly(deps),
	}
}

// RegisterAll registers every step with m.
func RegisterAll(m *pipeline.StepManager, deps Deps) error {
	for _, s := range All(deps) {
		if err := m.Register(s.Descriptor().ID, s); err != nil {
			return fmt.Errorf("failed to register steps: %w", err)
		}
	}
	return nil
}
