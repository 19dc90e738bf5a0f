package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/contentcal/internal/models"
	"github.com/rahul/contentcal/internal/observability"
)

type fakeStep struct {
	desc     Descriptor
	calls    int
	execute  func(ctx context.Context, snap *Snapshot) (Output, error)
	fallback map[string]any
}

func newFakeStep(id StepID, execute func(ctx context.Context, snap *Snapshot) (Output, error)) *fakeStep {
	return &fakeStep{desc: MustDescriptor(id), execute: execute, fallback: map[string]any{"fallback": int(id)}}
}

func (f *fakeStep) Descriptor() Descriptor { return f.desc }

func (f *fakeStep) Execute(ctx context.Context, snap *Snapshot) (Output, error) {
	f.calls++
	if f.execute != nil {
		return f.execute(ctx, snap)
	}
	return Output{Payload: map[string]any{"step": int(f.desc.ID)}, QualityScore: 1}, nil
}

func (f *fakeStep) Fallback(*Snapshot) map[string]any { return f.fallback }

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		AttemptTimeout:  200 * time.Millisecond,
	}
}

func testSeed() Seed {
	seed := SeedFromRequest(models.GenerationRequest{UserID: 1, StrategyID: 2, CalendarType: models.CalendarWeekly, Industry: "retail"})
	seed.Strategy = &models.StrategyRecord{ID: 2, Name: "Holiday", ContentPillars: []string{"Gifts"}}
	seed.Onboarding = &models.OnboardingProfile{UserID: 1}
	return seed
}

func TestCatalogIsCanonical(t *testing.T) {
	cat := Catalog()
	require.Len(t, cat, StepCount)

	seen := map[string]bool{KeyStrategyData: true, KeyOnboardingData: true}
	for i, d := range cat {
		assert.Equal(t, StepID(i+1), d.ID)
		for _, req := range d.Requires {
			assert.True(t, seen[req], "%s requires %s before it is produced", d, req)
		}
		seen[d.Key] = true
		assert.True(t, d.MinQuality > 0 && d.MinQuality <= 1)
	}
	assert.Equal(t, PhaseStrategyAnalysis, cat[0].Phase)
	assert.Equal(t, PhaseOptimization, cat[StepCount-1].Phase)

	_, ok := DescriptorFor(13)
	assert.False(t, ok)
}

func TestContextManagerWriteOnceAndIsolation(t *testing.T) {
	cm := NewContextManager(testSeed())
	desc := MustDescriptor(StepStrategyAnalysis)

	before := cm.Snapshot()
	payload := map[string]any{"goals": []any{"reach"}, "nested": map[string]any{"k": "v"}}
	require.NoError(t, cm.MergeStepResult(desc, payload))

	// Mutating the caller's payload does not leak into the context.
	payload["nested"].(map[string]any)["k"] = "changed"
	after := cm.Snapshot()
	got, ok := after.Section(KeyStrategyAnalysis)
	require.True(t, ok)
	assert.Equal(t, "v", got["nested"].(map[string]any)["k"])

	// Snapshots taken earlier never see later merges.
	assert.False(t, before.Has(KeyStrategyAnalysis))

	// Mutating a section read from a snapshot does not affect the snapshot.
	got["goals"] = nil
	again, _ := after.Section(KeyStrategyAnalysis)
	assert.Equal(t, []any{"reach"}, again["goals"])

	err := cm.MergeStepResult(desc, map[string]any{})
	assert.ErrorIs(t, err, ErrNamespaceWritten)

	assert.Empty(t, cm.Missing([]string{KeyStrategyData, KeyOnboardingData, KeyStrategyAnalysis}))
	assert.Equal(t, []string{KeyGapAnalysis}, cm.Missing([]string{KeyGapAnalysis}))
	assert.Equal(t, KeyStrategyAnalysis, after.Keys()[len(after.Keys())-1])

	_, err = after.Require(KeyGapAnalysis)
	assert.Equal(t, ClassValidation, Classify(err, true))
}

func TestStepManagerRegistration(t *testing.T) {
	m := NewStepManager()

	_, err := m.OrderedSteps()
	assert.Equal(t, ClassFatal, Classify(err, false), "an incomplete registry is a contract violation")

	wrong := newFakeStep(StepGapAnalysis, nil)
	assert.Error(t, m.Register(StepStrategyAnalysis, wrong))
	assert.Error(t, m.Register(13, wrong))
	assert.Error(t, m.Register(StepGapAnalysis, nil))

	for _, d := range Catalog() {
		require.NoError(t, m.Register(d.ID, newFakeStep(d.ID, nil)))
	}
	assert.Error(t, m.Register(StepGapAnalysis, newFakeStep(StepGapAnalysis, nil)))

	ordered, err := m.OrderedSteps()
	require.NoError(t, err)
	for i, rs := range ordered {
		assert.Equal(t, StepID(i+1), rs.Descriptor.ID)
	}
	h := m.HealthStatus()
	assert.True(t, h.Healthy)
	assert.Equal(t, StepCount, h.Registered)
}

func TestClassify(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, ClassNone, Classify(nil, true))
	assert.Equal(t, ClassFatal, Classify(plain, true))
	assert.Equal(t, ClassTransient, Classify(plain, false))
	assert.Equal(t, ClassValidation, Classify(fmt.Errorf("wrapped: %w", Validation(plain)), true))
	assert.Equal(t, ClassFatal, Classify(Transient(Fatal(plain)), false), "fatal wins over transient")
	assert.Equal(t, ClassCancelled, Classify(context.Canceled, true))
	assert.Equal(t, ClassTransient, Classify(context.DeadlineExceeded, true))
}

func TestErrorHandlerDecisions(t *testing.T) {
	snap := NewContextManager(testSeed()).Snapshot()

	tests := []struct {
		name     string
		id       StepID
		execute  func(context.Context, *Snapshot) (Output, error)
		decision Decision
		class    Class
		calls    int
	}{
		{
			name:     "success",
			id:       StepGapAnalysis,
			decision: DecisionSucceeded,
			calls:    1,
		},
		{
			name: "transient retried then fallback",
			id:   StepGapAnalysis,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{}, Transientf("rate limited")
			},
			decision: DecisionFallback,
			class:    ClassTransient,
			calls:    3,
		},
		{
			name: "validation falls back without retry",
			id:   StepStrategyAnalysis,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{}, Validationf("missing goals")
			},
			decision: DecisionFallback,
			class:    ClassValidation,
			calls:    1,
		},
		{
			name: "fatal aborts without retry",
			id:   StepGapAnalysis,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{}, Fatalf("bad shape")
			},
			decision: DecisionAbort,
			class:    ClassFatal,
			calls:    1,
		},
		{
			name: "unclassified error on critical step aborts",
			id:   StepCalendarStructure,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{}, errors.New("index out of range")
			},
			decision: DecisionAbort,
			class:    ClassFatal,
			calls:    1,
		},
		{
			name: "unclassified error on degradable step is transient",
			id:   StepWeeklyThemes,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{}, errors.New("connection reset")
			},
			decision: DecisionFallback,
			class:    ClassTransient,
			calls:    3,
		},
		{
			name: "nil payload is a contract violation",
			id:   StepWeeklyThemes,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{QualityScore: 1}, nil
			},
			decision: DecisionAbort,
			class:    ClassFatal,
			calls:    1,
		},
		{
			name: "quality outside range is a contract violation",
			id:   StepWeeklyThemes,
			execute: func(context.Context, *Snapshot) (Output, error) {
				return Output{Payload: map[string]any{}, QualityScore: 1.5}, nil
			},
			decision: DecisionAbort,
			class:    ClassFatal,
			calls:    1,
		},
		{
			name: "panic aborts",
			id:   StepWeeklyThemes,
			execute: func(context.Context, *Snapshot) (Output, error) {
				panic("nil map")
			},
			decision: DecisionAbort,
			class:    ClassFatal,
			calls:    1,
		},
		{
			name: "recovers on second attempt",
			id:   StepWeeklyThemes,
			execute: func() func(context.Context, *Snapshot) (Output, error) {
				n := 0
				return func(context.Context, *Snapshot) (Output, error) {
					n++
					if n == 1 {
						return Output{}, Transientf("503")
					}
					return Output{Payload: map[string]any{}, QualityScore: 0.9}, nil
				}
			}(),
			decision: DecisionSucceeded,
			calls:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var retries int
			h := NewErrorHandler(fastPolicy(), func(Descriptor, int, error, time.Duration) { retries++ })
			step := newFakeStep(tt.id, tt.execute)

			out := h.Execute(context.Background(), step, snap)
			assert.Equal(t, tt.decision, out.Decision)
			assert.Equal(t, tt.calls, out.Attempts)
			assert.Equal(t, tt.calls-1, retries)
			if tt.decision != DecisionSucceeded {
				assert.Equal(t, tt.class, out.Class)
				assert.Error(t, out.Err)
			}
		})
	}
}

func TestErrorHandlerTimeoutIsTransient(t *testing.T) {
	policy := fastPolicy()
	policy.MaxRetries = 0
	policy.AttemptTimeout = 10 * time.Millisecond
	h := NewErrorHandler(policy, nil)

	step := newFakeStep(StepWeeklyThemes, func(ctx context.Context, _ *Snapshot) (Output, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return Output{Payload: map[string]any{}, QualityScore: 1}, nil
	})
	out := h.Execute(context.Background(), step, NewContextManager(testSeed()).Snapshot())
	assert.Equal(t, DecisionFallback, out.Decision)
	assert.Equal(t, ClassTransient, out.Class)
}

func TestErrorHandlerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	step := newFakeStep(StepWeeklyThemes, func(ctx context.Context, _ *Snapshot) (Output, error) {
		cancel()
		return Output{}, ctx.Err()
	})
	out := NewErrorHandler(fastPolicy(), nil).Execute(ctx, step, NewContextManager(testSeed()).Snapshot())
	assert.Equal(t, DecisionCancelled, out.Decision)
}

func TestErrorHandlerForeignCancellationIsTransient(t *testing.T) {
	h := NewErrorHandler(fastPolicy(), nil)
	snap := NewContextManager(testSeed()).Snapshot()

	for _, id := range []StepID{StepGapAnalysis, StepStrategyAnalysis} {
		step := newFakeStep(id, func(context.Context, *Snapshot) (Output, error) {
			return Output{}, fmt.Errorf("search request: %w", context.Canceled)
		})
		out := h.Execute(context.Background(), step, snap)
		assert.Equal(t, DecisionFallback, out.Decision, "step %d", id)
		assert.Equal(t, ClassTransient, out.Class, "step %d", id)
		assert.Equal(t, 3, out.Attempts, "step %d", id)
	}

	class, err := h.Retry(context.Background(), "load strategy", func(context.Context) error {
		return fmt.Errorf("dial: %w", context.Canceled)
	})
	assert.Equal(t, ClassTransient, class)
	assert.ErrorIs(t, err, context.Canceled)
}

// recordingProgress is an in-memory ProgressWriter.
type recordingProgress struct {
	mu       sync.Mutex
	begun    bool
	started  []int
	results  []models.StepResult
	warnings []string
	failed   int
	failMsg  string
	status   models.SessionStatus
	calendar *models.Calendar
	closed   bool
}

func (p *recordingProgress) Begin(string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.begun = true
	p.status = models.SessionRunning
	return nil
}

func (p *recordingProgress) StepStarted(_ string, stepID int, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("closed")
	}
	p.started = append(p.started, stepID)
	return nil
}

func (p *recordingProgress) Update(_ string, r models.StepResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
	return nil
}

func (p *recordingProgress) Warn(_ string, w string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, w)
	return nil
}

func (p *recordingProgress) Fail(_ string, stepID int, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed, p.failMsg, p.status = stepID, msg, models.SessionFailed
	return nil
}

func (p *recordingProgress) Finish(_ string, status models.SessionStatus, _ float64, c *models.Calendar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.calendar = status, c
	return nil
}

type fixedProvider struct {
	strategyErr error
}

func (f fixedProvider) GetStrategy(_ context.Context, id int) (models.StrategyRecord, error) {
	if f.strategyErr != nil {
		return models.StrategyRecord{}, f.strategyErr
	}
	return models.StrategyRecord{ID: id, Name: "Holiday", Industry: "retail"}, nil
}

func (fixedProvider) GetOnboarding(_ context.Context, userID int) (models.OnboardingProfile, error) {
	return models.OnboardingProfile{UserID: userID}, nil
}

func newTestOrchestrator(t *testing.T, provider DataProvider, overrides map[StepID]func(context.Context, *Snapshot) (Output, error)) (*Orchestrator, *recordingProgress) {
	t.Helper()
	m := NewStepManager()
	for _, d := range Catalog() {
		require.NoError(t, m.Register(d.ID, newFakeStep(d.ID, overrides[d.ID])))
	}
	progress := &recordingProgress{}
	cfg := Config{Retry: fastPolicy(), AcceptableQuality: 0.7}
	return NewOrchestrator(m, provider, progress, cfg, observability.NewLoggerTo(io.Discard, t.TempDir()), nil), progress
}

var testRequest = models.GenerationRequest{UserID: 1, StrategyID: 2, CalendarType: models.CalendarQuarterly}

func TestOrchestratorCompletes(t *testing.T) {
	o, progress := newTestOrchestrator(t, fixedProvider{}, nil)

	res := o.Run(context.Background(), "s1", testRequest)
	require.NoError(t, res.Err)
	assert.Equal(t, models.SessionCompleted, res.Status)
	assert.InDelta(t, 1.0, res.Aggregate, 1e-9)
	require.NotNil(t, res.Calendar)
	assert.Equal(t, 90, res.Calendar.DurationDays)
	assert.Equal(t, "retail", res.Calendar.Industry, "industry falls back to the strategy's")
	assert.Equal(t, map[string]any{"step": 8}, res.Calendar.DailySchedule)

	assert.Len(t, progress.results, StepCount)
	for i, r := range progress.results {
		assert.Equal(t, i+1, r.StepID)
		assert.True(t, r.ValidationPassed)
	}
	assert.Equal(t, models.SessionCompleted, progress.status)
}

func TestOrchestratorLowQualityCompletesWithWarnings(t *testing.T) {
	overrides := make(map[StepID]func(context.Context, *Snapshot) (Output, error))
	for _, d := range Catalog() {
		overrides[d.ID] = func(context.Context, *Snapshot) (Output, error) {
			return Output{Payload: map[string]any{}, QualityScore: 0.5}, nil
		}
	}
	o, progress := newTestOrchestrator(t, fixedProvider{}, overrides)

	res := o.Run(context.Background(), "s2", testRequest)
	assert.Equal(t, models.SessionCompletedWithWarnings, res.Status)
	assert.NotNil(t, res.Calendar)
	assert.False(t, progress.results[0].ValidationPassed, "0.5 is below step 1's threshold")
	assert.True(t, progress.results[8].ValidationPassed, "0.5 meets step 9's threshold")
	assert.NotEmpty(t, progress.warnings)
}

func TestOrchestratorFatalAborts(t *testing.T) {
	o, progress := newTestOrchestrator(t, fixedProvider{}, map[StepID]func(context.Context, *Snapshot) (Output, error){
		StepContentPillars: func(context.Context, *Snapshot) (Output, error) {
			return Output{}, Fatalf("unusable result")
		},
	})

	res := o.Run(context.Background(), "s3", testRequest)
	assert.Equal(t, models.SessionFailed, res.Status)
	assert.Equal(t, int(StepContentPillars), res.FailedStep)
	assert.Nil(t, res.Calendar)

	require.Len(t, progress.results, int(StepContentPillars))
	last := progress.results[len(progress.results)-1]
	assert.Equal(t, models.StepFailed, last.Status)
	assert.Equal(t, int(StepContentPillars), progress.failed)
	assert.Contains(t, progress.failMsg, "unusable result")
}

func TestOrchestratorProviderFailureDegrades(t *testing.T) {
	o, progress := newTestOrchestrator(t, fixedProvider{strategyErr: Validationf("strategy 2 not found")}, nil)

	res := o.Run(context.Background(), "s4", testRequest)
	assert.Equal(t, models.SessionCompleted, res.Status)
	require.NotEmpty(t, progress.warnings)
	assert.Contains(t, progress.warnings[0], "strategy 2 unavailable")
}

func TestOrchestratorStopsWhenProgressCloses(t *testing.T) {
	o, progress := newTestOrchestrator(t, fixedProvider{}, map[StepID]func(context.Context, *Snapshot) (Output, error){
		StepGapAnalysis: nil,
	})
	progress.closed = true

	res := o.Run(context.Background(), "s5", testRequest)
	assert.Equal(t, models.SessionCancelled, res.Status)
	assert.Empty(t, progress.results)
}

func TestOrchestratorForeignCancellationFallsBack(t *testing.T) {
	o, progress := newTestOrchestrator(t, fixedProvider{}, map[StepID]func(context.Context, *Snapshot) (Output, error){
		StepGapAnalysis: func(context.Context, *Snapshot) (Output, error) {
			return Output{}, fmt.Errorf("search request: %w", context.Canceled)
		},
	})

	res := o.Run(context.Background(), "s6", testRequest)
	assert.Equal(t, models.SessionCompleted, res.Status)
	require.Len(t, progress.results, StepCount)
	assert.True(t, progress.results[1].UsedFallback)
	assert.Equal(t, models.SessionCompleted, progress.status)
}
