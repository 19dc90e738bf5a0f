package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rahul/contentcal/internal/models"
)

// Base keys present in every context from initialization.
const (
	KeyUserID           = "user_id"
	KeyStrategyID       = "strategy_id"
	KeyIndustry         = "industry"
	KeyBusinessSize     = "business_size"
	KeyCalendarDuration = "calendar_duration"
	KeyOnboardingData   = "onboarding_data"
	KeyStrategyData     = "strategy_data"
)

var baseKeys = []string{
	KeyUserID, KeyStrategyID, KeyIndustry, KeyBusinessSize,
	KeyCalendarDuration, KeyOnboardingData, KeyStrategyData,
}

// ErrNamespaceWritten is returned when a step namespace is merged twice.
var ErrNamespaceWritten = errors.New("context namespace already written")

// Seed is the initial, pre-step state of a session.
type Seed struct {
	UserID       int
	StrategyID   int
	CalendarType string
	Industry     string
	BusinessSize string
	DurationDays int
	Onboarding   *models.OnboardingProfile
	Strategy     *models.StrategyRecord
}

// SeedFromRequest fills the request-derived part of a seed.
func SeedFromRequest(req models.GenerationRequest) Seed {
	days, _ := models.DurationDays(req.CalendarType)
	return Seed{
		UserID:       req.UserID,
		StrategyID:   req.StrategyID,
		CalendarType: req.CalendarType,
		Industry:     req.Industry,
		BusinessSize: req.BusinessSize,
		DurationDays: days,
	}
}

// ContextManager owns the append-only state of one session run. It is
// confined to the orchestrator goroutine of that session.
type ContextManager struct {
	seed     Seed
	sections map[string]map[string]any
	order    []string
}

func NewContextManager(seed Seed) *ContextManager {
	return &ContextManager{
		seed:     seed,
		sections: make(map[string]map[string]any),
	}
}

// MergeStepResult stores payload under the step's namespace. A namespace is
// written at most once.
func (m *ContextManager) MergeStepResult(desc Descriptor, payload map[string]any) error {
	if desc.Key == "" {
		return fmt.Errorf("%s has no namespace", desc)
	}
	if _, exists := m.sections[desc.Key]; exists {
		return fmt.Errorf("%w: %s", ErrNamespaceWritten, desc.Key)
	}
	m.sections[desc.Key] = cloneMap(payload)
	m.order = append(m.order, desc.Key)
	return nil
}

// Missing returns the keys of required that are not yet present.
func (m *ContextManager) Missing(required []string) []string {
	var missing []string
	for _, k := range required {
		if !m.has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

func (m *ContextManager) has(key string) bool {
	switch key {
	case KeyOnboardingData:
		return m.seed.Onboarding != nil
	case KeyStrategyData:
		return m.seed.Strategy != nil
	case KeyUserID, KeyStrategyID, KeyIndustry, KeyBusinessSize, KeyCalendarDuration:
		return true
	}
	_, ok := m.sections[key]
	return ok
}

// Snapshot returns a deep copy that later merges cannot affect.
func (m *ContextManager) Snapshot() *Snapshot {
	s := &Snapshot{
		UserID:       m.seed.UserID,
		StrategyID:   m.seed.StrategyID,
		CalendarType: m.seed.CalendarType,
		Industry:     m.seed.Industry,
		BusinessSize: m.seed.BusinessSize,
		DurationDays: m.seed.DurationDays,
		sections:     make(map[string]map[string]any, len(m.sections)),
		order:        append([]string(nil), m.order...),
	}
	if m.seed.Onboarding != nil {
		o := *m.seed.Onboarding
		o.Keywords = append([]string(nil), o.Keywords...)
		s.Onboarding = o
		s.hasOnboarding = true
	}
	if m.seed.Strategy != nil {
		st := *m.seed.Strategy
		st.BusinessGoals = append([]string(nil), st.BusinessGoals...)
		st.ContentPillars = append([]string(nil), st.ContentPillars...)
		st.PreferredChannels = append([]string(nil), st.PreferredChannels...)
		st.Competitors = append([]string(nil), st.Competitors...)
		st.KPIs = append([]string(nil), st.KPIs...)
		s.Strategy = st
		s.hasStrategy = true
	}
	for k, v := range m.sections {
		s.sections[k] = cloneMap(v)
	}
	return s
}

// Snapshot is an immutable view of a pipeline context handed to a step.
type Snapshot struct {
	UserID       int
	StrategyID   int
	CalendarType string
	Industry     string
	BusinessSize string
	DurationDays int
	Onboarding   models.OnboardingProfile
	Strategy     models.StrategyRecord

	hasOnboarding bool
	hasStrategy   bool
	sections      map[string]map[string]any
	order         []string
}

// Has reports whether key is available, base keys included.
func (s *Snapshot) Has(key string) bool {
	switch key {
	case KeyOnboardingData:
		return s.hasOnboarding
	case KeyStrategyData:
		return s.hasStrategy
	case KeyUserID, KeyStrategyID, KeyIndustry, KeyBusinessSize, KeyCalendarDuration:
		return true
	}
	_, ok := s.sections[key]
	return ok
}

// Section returns the payload a step merged under key. The returned map
// belongs to the caller.
func (s *Snapshot) Section(key string) (map[string]any, bool) {
	v, ok := s.sections[key]
	if !ok {
		return nil, false
	}
	return cloneMap(v), true
}

// Require returns the section under key or a ValidationError.
func (s *Snapshot) Require(key string) (map[string]any, error) {
	v, ok := s.Section(key)
	if !ok {
		return nil, Validationf("required context key %q is missing", key)
	}
	return v, nil
}

// Keys lists base keys followed by step namespaces in merge order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(baseKeys)+len(s.order))
	for _, k := range baseKeys {
		if s.Has(k) {
			keys = append(keys, k)
		}
	}
	return append(keys, s.order...)
}

// Sections returns every step namespace, sorted by key.
func (s *Snapshot) Sections() []string {
	keys := make([]string, 0, len(s.sections))
	for k := range s.sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i := range t {
			out[i] = cloneMap(t[i])
		}
		return out
	}
	return v
}
