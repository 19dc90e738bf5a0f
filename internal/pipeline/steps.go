package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Output is what a step returns on success.
type Output struct {
	Payload      map[string]any
	QualityScore float64
}

// Step is one unit of the pipeline. Execute must not retain or modify the
// snapshot; the orchestrator merges the returned payload after it returns.
type Step interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, snap *Snapshot) (Output, error)
	// Fallback is the deterministic payload used when Execute cannot
	// produce a result.
	Fallback(snap *Snapshot) map[string]any
}

// HealthChecker is implemented by steps that can verify their dependencies.
type HealthChecker interface {
	Healthy() error
}

// RegisteredStep pairs the canonical descriptor with its implementation.
type RegisteredStep struct {
	Descriptor Descriptor
	Step       Step
}

// Health reports whether the registry can run a full session.
type Health struct {
	Healthy    bool     `json:"healthy"`
	Registered int      `json:"registered"`
	Missing    []int    `json:"missing,omitempty"`
	Issues     []string `json:"issues,omitempty"`
}

// StepManager holds the twelve step implementations in catalog order.
type StepManager struct {
	mu    sync.RWMutex
	steps [StepCount]Step
}

func NewStepManager() *StepManager {
	return &StepManager{}
}

// Register binds impl to id. The implementation must describe itself with
// the canonical id and namespace.
func (m *StepManager) Register(id StepID, impl Step) error {
	desc, ok := DescriptorFor(id)
	if !ok {
		return fmt.Errorf("unknown step id %d", int(id))
	}
	if impl == nil {
		return fmt.Errorf("nil implementation for %s", desc)
	}
	got := impl.Descriptor()
	if got.ID != desc.ID || got.Key != desc.Key {
		return fmt.Errorf("implementation describes step %d (%s), registered as %s", int(got.ID), got.Key, desc)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[id-1] != nil {
		return fmt.Errorf("%s already registered", desc)
	}
	m.steps[id-1] = impl
	return nil
}

// OrderedSteps returns all steps in canonical order. It fails when any
// step is unregistered.
func (m *StepManager) OrderedSteps() ([]RegisteredStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RegisteredStep, 0, StepCount)
	for i, impl := range m.steps {
		desc := catalog[i]
		if impl == nil {
			return nil, Fatalf("%s is not registered", desc)
		}
		out = append(out, RegisteredStep{Descriptor: desc, Step: impl})
	}
	return out, nil
}

// HealthStatus checks that every step is registered and constructible.
func (m *StepManager) HealthStatus() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := Health{}
	for i, impl := range m.steps {
		desc := catalog[i]
		if impl == nil {
			h.Missing = append(h.Missing, int(desc.ID))
			continue
		}
		h.Registered++
		if hc, ok := impl.(HealthChecker); ok {
			if err := hc.Healthy(); err != nil {
				h.Issues = append(h.Issues, fmt.Sprintf("%s: %v", desc, err))
			}
		}
	}
	h.Healthy = h.Registered == StepCount && len(h.Issues) == 0
	return h
}
