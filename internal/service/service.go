package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/gateway"
	"github.com/rahul/contentcal/internal/metrics"
	"github.com/rahul/contentcal/internal/models"
	"github.com/rahul/contentcal/internal/observability"
	"github.com/rahul/contentcal/internal/pipeline"
	"github.com/rahul/contentcal/internal/session"
)

var (
	ErrInvalidRequest   = errors.New("invalid generation request")
	ErrCalendarNotReady = errors.New("calendar not available")
	ErrServiceClosed    = errors.New("service is shutting down")
)

// SessionStore persists session snapshots across restarts.
type SessionStore interface {
	SaveSession(ctx context.Context, snap models.ProgressSnapshot) error
	LoadSessions(ctx context.Context) ([]models.ProgressSnapshot, error)
	DeleteSessions(ctx context.Context, ids []string) error
	Ping() error
}

type Options struct {
	Steps    *pipeline.StepManager
	Provider pipeline.DataProvider
	Pipeline pipeline.Config
	Store    SessionStore
	Notifier gateway.Notifier
	Metrics  *metrics.Metrics
	Logger   *observability.Logger
	// Clock overrides time.Now in the registry, for tests.
	Clock func() time.Time
}

// Service is the entry point for calendar generation: admission, the
// background run, polling, cancellation and retrieval.
type Service struct {
	registry     *session.Registry
	tracker      *session.ProgressTracker
	orchestrator *pipeline.Orchestrator
	steps        *pipeline.StepManager
	store        SessionStore
	notifier     gateway.Notifier
	metrics      *metrics.Metrics
	logger       *observability.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	// mu guards closed; wg.Add only happens under mu while closed is false.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics()
	}
	s := &Service{
		steps:    opts.Steps,
		store:    opts.Store,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	s.baseCtx, s.stop = context.WithCancel(context.Background())

	regOpts := []session.Option{session.WithHooks(session.Hooks{
		OnTerminal: s.onTerminal,
		OnEvict:    s.onEvict,
	})}
	if opts.Clock != nil {
		regOpts = append(regOpts, session.WithClock(opts.Clock))
	}
	s.registry = session.NewRegistry(regOpts...)
	s.tracker = session.NewProgressTracker(s.registry)
	s.orchestrator = pipeline.NewOrchestrator(opts.Steps, opts.Provider, s.tracker, opts.Pipeline, opts.Logger, opts.Metrics)
	return s
}

// Restore reloads persisted sessions. Sessions interrupted by the restart
// are marked failed.
func (s *Service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snaps, err := s.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	interrupted := s.registry.Restore(snaps)
	s.metrics.ObserveRestored(len(snaps))
	log.Printf("[Service] Restored %d sessions (%d interrupted)", len(snaps), interrupted)
	return nil
}

// Start admits req and runs the pipeline in the background. It returns the
// pending snapshot, or a *session.DuplicateSessionError when the user
// already has an active session.
func (s *Service) Start(ctx context.Context, req models.GenerationRequest) (models.ProgressSnapshot, error) {
	if err := req.Validate(); err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if s.isClosed() {
		return models.ProgressSnapshot{}, ErrServiceClosed
	}

	sess, err := s.registry.Create(req)
	if err != nil {
		s.metrics.ObserveAdmission(false)
		s.logger.LogAdmission(req.UserID, "", false, err.Error())
		return models.ProgressSnapshot{}, err
	}
	s.metrics.ObserveAdmission(true)
	s.logger.LogAdmission(req.UserID, sess.ID(), true, "")
	s.persist(ctx, sess.Snapshot())

	// The run outlives the request that started it.
	runCtx, cancel := context.WithCancel(s.baseCtx)
	if err := s.registry.Attach(sess.ID(), cancel); err != nil {
		cancel()
		s.metrics.SessionClosed()
		if errors.Is(err, session.ErrSessionClosed) {
			// Cancelled between admission and launch; there is nothing to run.
			return sess.Snapshot(), nil
		}
		return models.ProgressSnapshot{}, err
	}
	snap := sess.Snapshot()

	started := s.spawn(func() {
		defer cancel()
		defer s.metrics.SessionClosed()

		res := s.orchestrator.Run(agent.WithSessionID(runCtx, sess.ID()), sess.ID(), req)
		s.settle(sess.ID(), res)
	})
	if !started {
		cancel()
		s.metrics.SessionClosed()
		s.settle(sess.ID(), pipeline.RunResult{Status: models.SessionCancelled, Err: ErrServiceClosed})
		return sess.Snapshot(), ErrServiceClosed
	}
	return snap, nil
}

// Run is the synchronous form of Start, used by the CLI.
func (s *Service) Run(ctx context.Context, req models.GenerationRequest) (models.ProgressSnapshot, error) {
	if err := req.Validate(); err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	sess, err := s.registry.Create(req)
	if err != nil {
		s.metrics.ObserveAdmission(false)
		return models.ProgressSnapshot{}, err
	}
	s.metrics.ObserveAdmission(true)
	defer s.metrics.SessionClosed()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.registry.Attach(sess.ID(), cancel); err != nil {
		return models.ProgressSnapshot{}, err
	}
	s.persist(ctx, sess.Snapshot())
	res := s.orchestrator.Run(agent.WithSessionID(runCtx, sess.ID()), sess.ID(), req)
	s.settle(sess.ID(), res)
	return sess.Snapshot(), nil
}

func (s *Service) GetProgress(id string) (models.ProgressSnapshot, error) {
	return s.tracker.Get(id)
}

// ListSessions returns the user's sessions, newest first. A zero userID
// lists every session.
func (s *Service) ListSessions(userID int) []models.ProgressSnapshot {
	all := s.registry.List()
	if userID == 0 {
		return all
	}
	out := make([]models.ProgressSnapshot, 0, len(all))
	for _, snap := range all {
		if snap.UserID == userID {
			out = append(out, snap)
		}
	}
	return out
}

func (s *Service) Cancel(id string) error {
	return s.registry.Cancel(id)
}

// GetCalendar returns the assembled calendar of a completed session.
func (s *Service) GetCalendar(id string) (*models.Calendar, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	status := sess.Status()
	if status != models.SessionCompleted && status != models.SessionCompletedWithWarnings {
		return nil, fmt.Errorf("%w: session %s is %s", ErrCalendarNotReady, id, status)
	}
	cal := sess.Calendar()
	if cal == nil {
		return nil, fmt.Errorf("%w: session %s has no calendar", ErrCalendarNotReady, id)
	}
	return cal, nil
}

// Health summarises whether new sessions can run.
type Health struct {
	Healthy        bool            `json:"healthy"`
	Steps          pipeline.Health `json:"steps"`
	Store          string          `json:"store,omitempty"`
	ActiveSessions int             `json:"active_sessions"`
}

func (s *Service) Health() Health {
	h := Health{Steps: s.steps.HealthStatus()}
	h.Healthy = h.Steps.Healthy
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			h.Store = err.Error()
			h.Healthy = false
		}
	}
	for _, snap := range s.registry.List() {
		if snap.Status.Active() {
			h.ActiveSessions++
		}
	}
	return h
}

// Sweeper returns a cleanup loop bound to this service's registry.
func (s *Service) Sweeper(policy session.CleanupPolicy, interval time.Duration) *session.Sweeper {
	return session.NewSweeper(s.registry, policy, interval, s.logger)
}

// Shutdown stops every running session and waits for their goroutines.
// New sessions are refused from the moment it is called.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) onTerminal(snap models.ProgressSnapshot) {
	s.persist(context.Background(), snap)

	if s.notifier == nil {
		return
	}
	sent := s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, snap); err != nil {
			log.Printf("[Service] Failed to notify %s about session %s: %v", s.notifier.Name(), snap.SessionID, err)
		}
	})
	if !sent {
		log.Printf("[Service] Shutting down, skipped %s notification for session %s", s.notifier.Name(), snap.SessionID)
	}
}

// spawn runs fn on a goroutine that Shutdown waits for. It reports false
// once Shutdown has started.
func (s *Service) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// settle fails a session whose run returned without reaching a terminal
// status, so it stops holding its user's admission slot.
func (s *Service) settle(id string, res pipeline.RunResult) {
	sess, err := s.registry.Get(id)
	if err != nil || !sess.Status().Active() {
		return
	}
	msg := "run stopped before completion"
	if res.Err != nil {
		msg += ": " + res.Err.Error()
	}
	log.Printf("[Service] Session %s %s", id, msg)
	if err := s.tracker.Fail(id, sess.Snapshot().CurrentStep, msg); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		log.Printf("[Service] Failed to settle session %s: %v", id, err)
	}
}

func (s *Service) onEvict(ids []string) {
	s.metrics.ObserveEvicted(len(ids))
	if s.store == nil {
		return
	}
	if err := s.store.DeleteSessions(context.Background(), ids); err != nil {
		log.Printf("[Service] Failed to delete evicted sessions: %v", err)
	}
}

func (s *Service) persist(ctx context.Context, snap models.ProgressSnapshot) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSession(context.WithoutCancel(ctx), snap); err != nil {
		log.Printf("[Service] Failed to persist session %s: %v", snap.SessionID, err)
	}
}
