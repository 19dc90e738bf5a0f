package session

import (
	"context"
	"log"
	"time"

	"github.com/rahul/contentcal/internal/observability"
)

// Sweeper periodically applies a CleanupPolicy to a registry.
type Sweeper struct {
	Registry *Registry
	Policy   CleanupPolicy
	Interval time.Duration
	Logger   *observability.Logger
}

func NewSweeper(registry *Registry, policy CleanupPolicy, interval time.Duration, logger *observability.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		Registry: registry,
		Policy:   policy,
		Interval: interval,
		Logger:   logger,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] Session sweeper started (every %s)", s.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep() CleanupReport {
	report := s.Registry.Cleanup(s.Policy)
	if len(report.Evicted) > 0 || len(report.Abandoned) > 0 {
		log.Printf("[Sweeper] Evicted %d sessions, abandoned %d", len(report.Evicted), len(report.Abandoned))
		s.Logger.LogSweep(len(report.Evicted), len(report.Abandoned))
	}
	return report
}
