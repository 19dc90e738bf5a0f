package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a generation session.
type SessionStatus string

const (
	SessionPending               SessionStatus = "pending"
	SessionRunning               SessionStatus = "running"
	SessionCompleted             SessionStatus = "completed"
	SessionCompletedWithWarnings SessionStatus = "completed_with_warnings"
	SessionFailed                SessionStatus = "failed"
	SessionCancelled             SessionStatus = "cancelled"
)

// Active reports whether the session still holds its user's admission slot.
func (s SessionStatus) Active() bool {
	return s == SessionPending || s == SessionRunning
}

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionCompletedWithWarnings, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// StepStatus is the state of a single pipeline step within a session.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Calendar types accepted by the generator.
const (
	CalendarWeekly    = "weekly"
	CalendarMonthly   = "monthly"
	CalendarQuarterly = "quarterly"
)

// GenerationRequest is what a client submits to start a session.
type GenerationRequest struct {
	UserID       int    `json:"user_id"`
	StrategyID   int    `json:"strategy_id"`
	CalendarType string `json:"calendar_type"`
	Industry     string `json:"industry"`
	BusinessSize string `json:"business_size"`
}

// Validate checks the request before admission.
func (r GenerationRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("user_id must be positive, got %d", r.UserID)
	}
	if r.StrategyID <= 0 {
		return fmt.Errorf("strategy_id must be positive, got %d", r.StrategyID)
	}
	if _, ok := DurationDays(r.CalendarType); !ok {
		return fmt.Errorf("unsupported calendar_type %q", r.CalendarType)
	}
	return nil
}

// DurationDays maps a calendar type to the number of days it covers.
func DurationDays(calendarType string) (int, bool) {
	switch calendarType {
	case CalendarWeekly:
		return 7, true
	case CalendarMonthly:
		return 30, true
	case CalendarQuarterly:
		return 90, true
	}
	return 0, false
}

// StepResult is the outcome of one step. It is written once and never modified.
type StepResult struct {
	StepID           int            `json:"step_id"`
	StepName         string         `json:"step_name"`
	Status           StepStatus     `json:"status"`
	QualityScore     float64        `json:"quality_score"`
	ExecutionTime    time.Duration  `json:"execution_time"`
	Payload          map[string]any `json:"result_payload,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ValidationPassed bool           `json:"validation_passed"`
	UsedFallback     bool           `json:"used_fallback,omitempty"`
	Attempts         int            `json:"attempts"`
}

// ProgressSnapshot is the polling view of a session.
type ProgressSnapshot struct {
	SessionID          string             `json:"session_id"`
	UserID             int                `json:"user_id"`
	StrategyID         int                `json:"strategy_id"`
	CalendarType       string             `json:"calendar_type"`
	Status             SessionStatus      `json:"status"`
	CurrentStep        int                `json:"current_step"`
	CurrentStepName    string             `json:"current_step_name,omitempty"`
	OverallProgressPct float64            `json:"overall_progress_pct"`
	StepResults        map[int]StepResult `json:"step_results"`
	QualityScores      map[int]float64    `json:"quality_scores"`
	AggregateQuality   float64            `json:"aggregate_quality"`
	Errors             []string           `json:"errors"`
	Warnings           []string           `json:"warnings"`
	FailedStep         int                `json:"failed_step,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	Calendar           *Calendar          `json:"-"`
}
