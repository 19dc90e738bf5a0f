package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/contentcal/internal/models"
)

// stepCount mirrors the pipeline's fixed step count.
const stepCount = 12

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("user already has an active session")
	ErrSessionClosed    = errors.New("session is terminal")
)

// DuplicateSessionError rejects admission while the user has an active session.
type DuplicateSessionError struct {
	UserID          int
	ActiveSessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("user %d already has active session %s", e.UserID, e.ActiveSessionID)
}

func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// Session is one end-to-end run of the calendar pipeline. All fields are
// guarded by mu.
type Session struct {
	mu sync.RWMutex

	id          string
	req         models.GenerationRequest
	status      models.SessionStatus
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time

	currentStep     int
	currentStepName string
	progressPct     float64
	results         map[int]models.StepResult
	warnings        []string
	errors          []string
	failedStep      int
	aggregate       float64
	calendar        *models.Calendar

	cancel context.CancelFunc
}

func newSession(id string, req models.GenerationRequest, now time.Time) *Session {
	return &Session{
		id:        id,
		req:       req,
		status:    models.SessionPending,
		createdAt: now,
		updatedAt: now,
		results:   make(map[int]models.StepResult),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Request() models.GenerationRequest { return s.req }

func (s *Session) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Calendar returns the assembled calendar, nil until the session completes.
func (s *Session) Calendar() *models.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calendar
}

// Snapshot returns a copy safe to hand to readers.
func (s *Session) Snapshot() models.ProgressSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.ProgressSnapshot{
		SessionID:          s.id,
		UserID:             s.req.UserID,
		StrategyID:         s.req.StrategyID,
		CalendarType:       s.req.CalendarType,
		Status:             s.status,
		CurrentStep:        s.currentStep,
		CurrentStepName:    s.currentStepName,
		OverallProgressPct: s.progressPct,
		StepResults:        make(map[int]models.StepResult, len(s.results)),
		QualityScores:      make(map[int]float64, len(s.results)),
		AggregateQuality:   s.aggregate,
		Errors:             append([]string{}, s.errors...),
		Warnings:           append([]string{}, s.warnings...),
		FailedStep:         s.failedStep,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
		Calendar:           s.calendar,
	}
	for id, r := range s.results {
		snap.StepResults[id] = r
		snap.QualityScores[id] = r.QualityScore
	}
	if s.completedAt != nil {
		t := *s.completedAt
		snap.CompletedAt = &t
	}
	return snap
}

// terminate moves the session into a terminal status. It reports false
// when the session was already terminal. Caller holds mu.
func (s *Session) terminate(status models.SessionStatus, now time.Time) bool {
	if s.status.Terminal() {
		return false
	}
	s.status = status
	s.updatedAt = now
	s.completedAt = &now
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// fromSnapshot rebuilds a session from persisted state.
func fromSnapshot(snap models.ProgressSnapshot) *Session {
	s := &Session{
		id: snap.SessionID,
		req: models.GenerationRequest{
			UserID:       snap.UserID,
			StrategyID:   snap.StrategyID,
			CalendarType: snap.CalendarType,
		},
		status:          snap.Status,
		createdAt:       snap.CreatedAt,
		updatedAt:       snap.UpdatedAt,
		currentStep:     snap.CurrentStep,
		currentStepName: snap.CurrentStepName,
		progressPct:     snap.OverallProgressPct,
		results:         make(map[int]models.StepResult, len(snap.StepResults)),
		warnings:        append([]string(nil), snap.Warnings...),
		errors:          append([]string(nil), snap.Errors...),
		failedStep:      snap.FailedStep,
		aggregate:       snap.AggregateQuality,
		calendar:        snap.Calendar,
	}
	for id, r := range snap.StepResults {
		s.results[id] = r
	}
	if snap.CompletedAt != nil {
		t := *snap.CompletedAt
		s.completedAt = &t
	}
	if snap.Calendar != nil {
		s.req.Industry = snap.Calendar.Industry
		s.req.BusinessSize = snap.Calendar.BusinessSize
	}
	return s
}
