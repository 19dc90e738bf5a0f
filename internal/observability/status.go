package observability

import (
	"sync"
	"time"
)

type Role string

const (
	RoleIdle       Role = "IDLE"
	RoleGenerating Role = "GENERATING"
	RoleSweeping   Role = "SWEEPING"
)

type SystemStatus struct {
	mu             sync.RWMutex
	CurrentRole    Role
	ActiveSessions int
	ActiveStep     string
	LastHeartbeat  time.Time
}

var globalStatus = &SystemStatus{
	CurrentRole:   RoleIdle,
	LastHeartbeat: time.Now(),
}

// SessionStarted records one more running session.
func SessionStarted() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.ActiveSessions++
	globalStatus.CurrentRole = RoleGenerating
}

// SessionEnded records a session leaving the running state.
func SessionEnded() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if globalStatus.ActiveSessions > 0 {
		globalStatus.ActiveSessions--
	}
	if globalStatus.ActiveSessions == 0 {
		globalStatus.CurrentRole = RoleIdle
		globalStatus.ActiveStep = ""
	}
}

// SetActiveStep notes the most recently started step for the dashboard.
func SetActiveStep(step string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.ActiveStep = step
}

// SetRole overrides the displayed role.
func SetRole(role Role) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, int, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveSessions, globalStatus.ActiveStep, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
