package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rahul/contentcal/internal/models"
	"github.com/rahul/contentcal/internal/observability"
)

// DataProvider supplies the strategy and onboarding records a session is
// seeded with.
type DataProvider interface {
	GetStrategy(ctx context.Context, strategyID int) (models.StrategyRecord, error)
	GetOnboarding(ctx context.Context, userID int) (models.OnboardingProfile, error)
}

// ProgressWriter is the single-writer side of the progress tracker.
// A non-nil error means the session no longer accepts progress.
type ProgressWriter interface {
	Begin(sessionID string) error
	StepStarted(sessionID string, stepID int, stepName string) error
	Update(sessionID string, result models.StepResult) error
	Warn(sessionID string, warning string) error
	Fail(sessionID string, stepID int, message string) error
	Finish(sessionID string, status models.SessionStatus, aggregate float64, calendar *models.Calendar) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	ObserveStep(step string, outcome string, elapsed time.Duration)
	ObserveRetry(step string)
	ObserveSession(status string, aggregate float64)
}

type noopRecorder struct{}

func (noopRecorder) ObserveStep(string, string, time.Duration) {}
func (noopRecorder) ObserveRetry(string)                       {}
func (noopRecorder) ObserveSession(string, float64)            {}

// Config tunes the orchestrator.
type Config struct {
	Retry RetryPolicy
	// AcceptableQuality is the aggregate score at or above which a session
	// completes without warnings.
	AcceptableQuality float64
}

func DefaultConfig() Config {
	return Config{
		Retry:             DefaultRetryPolicy(),
		AcceptableQuality: 0.7,
	}
}

// RunResult summarises a finished run.
type RunResult struct {
	Status     models.SessionStatus
	Aggregate  float64
	Calendar   *models.Calendar
	FailedStep int
	Err        error
}

// Orchestrator drives sessions through the twelve steps.
type Orchestrator struct {
	steps    *StepManager
	provider DataProvider
	progress ProgressWriter
	cfg      Config
	logger   *observability.Logger
	metrics  Recorder
	tracer   trace.Tracer
}

func NewOrchestrator(steps *StepManager, provider DataProvider, progress ProgressWriter, cfg Config, logger *observability.Logger, metrics Recorder) *Orchestrator {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Orchestrator{
		steps:    steps,
		provider: provider,
		progress: progress,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/rahul/contentcal/internal/pipeline"),
	}
}

// Run executes one session from pending to a terminal state.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, req models.GenerationRequest) RunResult {
	ctx, span := o.tracer.Start(ctx, "calendar.session", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("user.id", req.UserID),
		attribute.String("calendar.type", req.CalendarType),
	))
	defer span.End()

	ordered, err := o.steps.OrderedSteps()
	if err != nil {
		return o.abort(sessionID, 0, err, span)
	}

	if err := o.progress.Begin(sessionID); err != nil {
		return RunResult{Status: models.SessionCancelled, Err: err}
	}
	observability.SessionStarted()
	defer observability.SessionEnded()
	o.logger.LogSession(sessionID, string(models.SessionRunning), map[string]any{"user_id": req.UserID})
	log.Printf("[Orchestrator] Session %s started for user %d (%s)", sessionID, req.UserID, req.CalendarType)

	handler := NewErrorHandler(o.cfg.Retry, func(desc Descriptor, attempt int, err error, wait time.Duration) {
		o.metrics.ObserveRetry(desc.Key)
		o.logger.LogRetry(sessionID, int(desc.ID), attempt, err, wait)
	})

	cm, cancelled := o.initialize(ctx, sessionID, req, handler)
	if cancelled {
		return RunResult{Status: models.SessionCancelled, Err: ctx.Err()}
	}

	scores := make(map[int]float64, StepCount)
	for _, rs := range ordered {
		desc := rs.Descriptor
		if ctx.Err() != nil {
			return RunResult{Status: models.SessionCancelled, Err: ctx.Err()}
		}

		if missing := cm.Missing(desc.Requires); len(missing) > 0 {
			err := Fatalf("%s requires missing context keys %v", desc, missing)
			o.recordFailure(sessionID, desc, err, 0, 0)
			return o.abort(sessionID, int(desc.ID), err, span)
		}

		if err := o.progress.StepStarted(sessionID, int(desc.ID), desc.Name); err != nil {
			return RunResult{Status: models.SessionCancelled, Err: err}
		}
		observability.SetActiveStep(desc.Name)

		result, outcome := o.runStep(ctx, handler, rs, cm.Snapshot())

		switch outcome.Decision {
		case DecisionCancelled:
			return RunResult{Status: models.SessionCancelled, Err: outcome.Err}

		case DecisionAbort:
			o.recordFailure(sessionID, desc, outcome.Err, result.ExecutionTime, outcome.Attempts)
			return o.abort(sessionID, int(desc.ID), outcome.Err, span)

		case DecisionFallback:
			o.logger.LogFallback(sessionID, int(desc.ID), outcome.Class.String(), outcome.Err)
			if err := o.progress.Warn(sessionID, fmt.Sprintf("%s used fallback after %s error: %v", desc, outcome.Class, outcome.Err)); err != nil {
				return RunResult{Status: models.SessionCancelled, Err: err}
			}

		case DecisionSucceeded:
			if !result.ValidationPassed {
				msg := fmt.Sprintf("%s quality %.2f below threshold %.2f", desc, result.QualityScore, desc.MinQuality)
				if err := o.progress.Warn(sessionID, msg); err != nil {
					return RunResult{Status: models.SessionCancelled, Err: err}
				}
			}
		}

		if err := cm.MergeStepResult(desc, result.Payload); err != nil {
			ferr := Fatal(err)
			o.recordFailure(sessionID, desc, ferr, result.ExecutionTime, outcome.Attempts)
			return o.abort(sessionID, int(desc.ID), ferr, span)
		}
		if err := o.progress.Update(sessionID, result); err != nil {
			return RunResult{Status: models.SessionCancelled, Err: err}
		}
		scores[int(desc.ID)] = result.QualityScore
		o.logger.LogStep(sessionID, int(desc.ID), string(result.Status), result.QualityScore, result.ExecutionTime)
	}

	aggregate := meanScore(scores)
	calendar := Assemble(sessionID, cm.Snapshot(), scores, aggregate)

	status := models.SessionCompleted
	if aggregate < o.cfg.AcceptableQuality {
		status = models.SessionCompletedWithWarnings
		_ = o.progress.Warn(sessionID, fmt.Sprintf("aggregate quality %.2f below acceptable %.2f", aggregate, o.cfg.AcceptableQuality))
	}
	if err := o.progress.Finish(sessionID, status, aggregate, calendar); err != nil {
		return RunResult{Status: models.SessionCancelled, Err: err}
	}

	span.SetAttributes(attribute.Float64("calendar.aggregate_quality", aggregate))
	o.metrics.ObserveSession(string(status), aggregate)
	o.logger.LogSession(sessionID, string(status), map[string]any{"aggregate_quality": aggregate})
	log.Printf("[Orchestrator] Session %s finished: %s (quality %.2f)", sessionID, status, aggregate)

	return RunResult{Status: status, Aggregate: aggregate, Calendar: calendar}
}

// initialize loads the seed. Provider failures degrade to empty records
// with a warning, the same way a failing step falls back.
func (o *Orchestrator) initialize(ctx context.Context, sessionID string, req models.GenerationRequest, handler *ErrorHandler) (*ContextManager, bool) {
	seed := SeedFromRequest(req)

	var strategy models.StrategyRecord
	class, err := handler.Retry(ctx, "load strategy", func(ctx context.Context) error {
		var err error
		strategy, err = o.provider.GetStrategy(ctx, req.StrategyID)
		return err
	})
	if class == ClassCancelled {
		return nil, true
	}
	if err != nil {
		_ = o.progress.Warn(sessionID, fmt.Sprintf("strategy %d unavailable (%s): %v", req.StrategyID, class, err))
		strategy = models.StrategyRecord{ID: req.StrategyID, UserID: req.UserID, Industry: req.Industry}
	}
	seed.Strategy = &strategy

	var onboarding models.OnboardingProfile
	class, err = handler.Retry(ctx, "load onboarding", func(ctx context.Context) error {
		var err error
		onboarding, err = o.provider.GetOnboarding(ctx, req.UserID)
		return err
	})
	if class == ClassCancelled {
		return nil, true
	}
	if err != nil {
		_ = o.progress.Warn(sessionID, fmt.Sprintf("onboarding for user %d unavailable (%s): %v", req.UserID, class, err))
		onboarding = models.OnboardingProfile{UserID: req.UserID}
	}
	seed.Onboarding = &onboarding

	if seed.Industry == "" {
		seed.Industry = strategy.Industry
	}
	return NewContextManager(seed), false
}

// runStep invokes one step through the error handler and shapes the
// StepResult for every decision except abort and cancel.
func (o *Orchestrator) runStep(ctx context.Context, handler *ErrorHandler, rs RegisteredStep, snap *Snapshot) (models.StepResult, Outcome) {
	desc := rs.Descriptor
	ctx, span := o.tracer.Start(ctx, "calendar.step", trace.WithAttributes(
		attribute.Int("step.id", int(desc.ID)),
		attribute.String("step.key", desc.Key),
		attribute.String("step.phase", desc.Phase.String()),
	))
	defer span.End()

	start := time.Now()
	outcome := handler.Execute(ctx, rs.Step, snap)
	elapsed := time.Since(start)

	result := models.StepResult{
		StepID:        int(desc.ID),
		StepName:      desc.Name,
		ExecutionTime: elapsed,
		Attempts:      outcome.Attempts,
	}

	switch outcome.Decision {
	case DecisionSucceeded:
		result.Status = models.StepCompleted
		result.Payload = outcome.Output.Payload
		result.QualityScore = outcome.Output.QualityScore
		result.ValidationPassed = outcome.Output.QualityScore >= desc.MinQuality
		o.metrics.ObserveStep(desc.Key, "success", elapsed)
	case DecisionFallback:
		result.Status = models.StepFailed
		result.Payload = rs.Step.Fallback(snap)
		if result.Payload == nil {
			result.Payload = map[string]any{}
		}
		result.QualityScore = 0
		result.ValidationPassed = false
		result.UsedFallback = true
		result.ErrorMessage = outcome.Err.Error()
		o.metrics.ObserveStep(desc.Key, "fallback", elapsed)
		span.SetStatus(codes.Error, outcome.Err.Error())
	case DecisionAbort:
		o.metrics.ObserveStep(desc.Key, "abort", elapsed)
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	case DecisionCancelled:
		o.metrics.ObserveStep(desc.Key, "cancelled", elapsed)
	}
	span.SetAttributes(attribute.Float64("step.quality_score", result.QualityScore))
	return result, outcome
}

func (o *Orchestrator) recordFailure(sessionID string, desc Descriptor, err error, elapsed time.Duration, attempts int) {
	_ = o.progress.Update(sessionID, models.StepResult{
		StepID:        int(desc.ID),
		StepName:      desc.Name,
		Status:        models.StepFailed,
		ExecutionTime: elapsed,
		ErrorMessage:  err.Error(),
		Attempts:      attempts,
	})
}

func (o *Orchestrator) abort(sessionID string, stepID int, err error, span trace.Span) RunResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ferr := o.progress.Fail(sessionID, stepID, err.Error()); ferr != nil {
		return RunResult{Status: models.SessionCancelled, Err: ferr}
	}
	o.metrics.ObserveSession(string(models.SessionFailed), 0)
	o.logger.LogSession(sessionID, string(models.SessionFailed), map[string]any{"step_id": stepID, "error": err.Error()})
	log.Printf("[Orchestrator] Session %s failed at step %d: %v", sessionID, stepID, err)
	return RunResult{Status: models.SessionFailed, FailedStep: stepID, Err: err}
}

func meanScore(scores map[int]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
