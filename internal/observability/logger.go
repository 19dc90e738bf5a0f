package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeSession   EventType = "session"
	EventTypeAdmission EventType = "admission"
	EventTypeStep      EventType = "step"
	EventTypeRetry     EventType = "retry"
	EventTypeFallback  EventType = "fallback"
	EventTypeSweep     EventType = "sweep"
	EventTypeCost      EventType = "cost"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeLLM       EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	StepID    int       `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards events.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		out:        os.Stdout,
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewLoggerIn writes events to stdout and LLM transcripts under logDir.
func NewLoggerIn(logDir string) *Logger {
	return NewLoggerTo(os.Stdout, logDir)
}

// NewLoggerTo writes events to out and LLM transcripts under logDir.
func NewLoggerTo(out io.Writer, logDir string) *Logger {
	l := NewLogger()
	l.out = out
	if logDir != "" {
		l.llmLogPath = filepath.Join(logDir, "llm.jsonl")
	}
	return l
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogSession(sessionID, status string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["status"] = status
	l.Log(Event{Type: EventTypeSession, SessionID: sessionID, Data: data})
}

func (l *Logger) LogAdmission(userID int, sessionID string, admitted bool, reason string) {
	l.Log(Event{
		Type:      EventTypeAdmission,
		SessionID: sessionID,
		Data: map[string]any{
			"user_id":  userID,
			"admitted": admitted,
			"reason":   reason,
		},
	})
}

func (l *Logger) LogStep(sessionID string, stepID int, status string, quality float64, elapsed time.Duration) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		StepID:    stepID,
		Data: map[string]any{
			"status":        status,
			"quality_score": quality,
			"elapsed_ms":    elapsed.Milliseconds(),
		},
	})
}

func (l *Logger) LogRetry(sessionID string, stepID, attempt int, err error, wait time.Duration) {
	l.Log(Event{
		Type:      EventTypeRetry,
		SessionID: sessionID,
		StepID:    stepID,
		Data: map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
			"wait_ms": wait.Milliseconds(),
		},
	})
}

func (l *Logger) LogFallback(sessionID string, stepID int, class string, err error) {
	l.Log(Event{
		Type:      EventTypeFallback,
		SessionID: sessionID,
		StepID:    stepID,
		Data: map[string]any{
			"class": class,
			"error": err.Error(),
		},
	})
}

func (l *Logger) LogSweep(evicted, abandoned int) {
	l.Log(Event{
		Type: EventTypeSweep,
		Data: map[string]int{"evicted": evicted, "abandoned": abandoned},
	})
}

func (l *Logger) LogCost(sessionID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:      EventTypeCost,
		SessionID: sessionID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(sessionID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
