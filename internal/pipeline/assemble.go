package pipeline

import (
	"time"

	"github.com/rahul/contentcal/internal/models"
)

// Assemble builds the calendar document from the namespaced sections of
// snap. No step is invoked here.
func Assemble(sessionID string, snap *Snapshot, scores map[int]float64, aggregate float64) *models.Calendar {
	section := func(key string) map[string]any {
		v, _ := snap.Section(key)
		return v
	}

	qs := make(map[int]float64, len(scores))
	for k, v := range scores {
		qs[k] = v
	}

	return &models.Calendar{
		SessionID:        sessionID,
		UserID:           snap.UserID,
		StrategyID:       snap.StrategyID,
		CalendarType:     snap.CalendarType,
		Industry:         snap.Industry,
		BusinessSize:     snap.BusinessSize,
		DurationDays:     snap.DurationDays,
		GeneratedAt:      time.Now().UTC(),
		AggregateQuality: aggregate,
		QualityScores:    qs,

		StrategyAnalysis:        section(KeyStrategyAnalysis),
		GapAnalysis:             section(KeyGapAnalysis),
		AudiencePlatform:        section(KeyAudiencePlatform),
		Structure:               section(KeyCalendarStructure),
		ContentPillars:          section(KeyContentPillars),
		PlatformStrategy:        section(KeyPlatformStrategy),
		WeeklyThemes:            section(KeyWeeklyThemes),
		DailySchedule:           section(KeyDailySchedule),
		ContentRecommendations:  section(KeyContentRecommendations),
		PerformanceOptimization: section(KeyPerformanceOptimization),
		StrategyAlignment:       section(KeyStrategyAlignment),
		FinalAssembly:           section(KeyFinalAssembly),
	}
}
