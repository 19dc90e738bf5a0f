package session

import (
	"fmt"

	"github.com/rahul/contentcal/internal/models"
)

// ProgressTracker is the single writer of session progress. Readers poll
// Get, which returns copies.
type ProgressTracker struct {
	registry *Registry
}

func NewProgressTracker(registry *Registry) *ProgressTracker {
	return &ProgressTracker{registry: registry}
}

// Get returns the current progress of id.
func (t *ProgressTracker) Get(id string) (models.ProgressSnapshot, error) {
	s, err := t.registry.Get(id)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	return s.Snapshot(), nil
}

// Begin moves a pending session to running.
func (t *ProgressTracker) Begin(id string) error {
	return t.write(id, func(s *Session) error {
		if s.status != models.SessionPending {
			return fmt.Errorf("session %s is %s, not pending", id, s.status)
		}
		s.status = models.SessionRunning
		return nil
	})
}

// StepStarted marks stepID as the step in flight. CurrentStep never moves
// backwards.
func (t *ProgressTracker) StepStarted(id string, stepID int, stepName string) error {
	return t.write(id, func(s *Session) error {
		if stepID > s.currentStep {
			s.currentStep = stepID
			s.currentStepName = stepName
		}
		return nil
	})
}

// Update records a finished step. Each step is recorded at most once.
func (t *ProgressTracker) Update(id string, result models.StepResult) error {
	return t.write(id, func(s *Session) error {
		if _, exists := s.results[result.StepID]; exists {
			return fmt.Errorf("step %d already recorded for session %s", result.StepID, id)
		}
		s.results[result.StepID] = result
		if result.StepID > s.currentStep {
			s.currentStep = result.StepID
			s.currentStepName = result.StepName
		}
		pct := float64(len(s.results)) / stepCount * 100
		if pct > s.progressPct {
			s.progressPct = pct
		}
		return nil
	})
}

// Warn appends a non-fatal warning.
func (t *ProgressTracker) Warn(id string, warning string) error {
	return t.write(id, func(s *Session) error {
		s.warnings = append(s.warnings, warning)
		return nil
	})
}

// Fail terminates the session after a fatal error in stepID.
func (t *ProgressTracker) Fail(id string, stepID int, message string) error {
	return t.finish(id, func(s *Session) {
		s.failedStep = stepID
		s.errors = append(s.errors, fmt.Sprintf("step %d: %s", stepID, message))
	}, models.SessionFailed)
}

// Finish terminates a session that ran through every step.
func (t *ProgressTracker) Finish(id string, status models.SessionStatus, aggregate float64, calendar *models.Calendar) error {
	if status != models.SessionCompleted && status != models.SessionCompletedWithWarnings {
		return fmt.Errorf("finish with non-completion status %s", status)
	}
	return t.finish(id, func(s *Session) {
		s.aggregate = aggregate
		s.calendar = calendar
		if s.progressPct < 100 {
			s.progressPct = 100
		}
	}, status)
}

func (t *ProgressTracker) finish(id string, apply func(s *Session), status models.SessionStatus) error {
	s, err := t.registry.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	apply(s)
	s.terminate(status, t.registry.now())
	s.mu.Unlock()

	t.registry.notifyTerminal(s)
	return nil
}

func (t *ProgressTracker) write(id string, fn func(s *Session) error) error {
	s, err := t.registry.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrSessionClosed
	}
	if err := fn(s); err != nil {
		return err
	}
	s.updatedAt = t.registry.now()
	return nil
}
