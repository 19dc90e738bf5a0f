package session

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/contentcal/internal/models"
)

// Hooks observe registry lifecycle events. Both run outside registry locks.
type Hooks struct {
	// OnTerminal fires once per session when it reaches a terminal status.
	OnTerminal func(snap models.ProgressSnapshot)
	// OnEvict fires with the ids removed by a cleanup pass.
	OnEvict func(ids []string)
}

// Registry owns the session table and enforces at most one active session
// per user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[int][]string

	hooks Hooks
	now   func() time.Time
	newID func() string
}

type Option func(*Registry)

func WithHooks(h Hooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[int][]string),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create admits a new pending session for req.UserID. The active-session
// check and the insert happen under one lock.
func (r *Registry) Create(req models.GenerationRequest) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.byUser[req.UserID] {
		if s, ok := r.sessions[id]; ok && s.Status().Active() {
			return nil, &DuplicateSessionError{UserID: req.UserID, ActiveSessionID: id}
		}
	}

	s := newSession(r.newID(), req, r.now())
	r.sessions[s.id] = s
	r.byUser[req.UserID] = append(r.byUser[req.UserID], s.id)
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ActiveFor returns the user's pending or running session, if any.
func (r *Registry) ActiveFor(userID int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byUser[userID] {
		if s, ok := r.sessions[id]; ok && s.Status().Active() {
			return s, true
		}
	}
	return nil, false
}

// List returns snapshots of every session, newest first.
func (r *Registry) List() []models.ProgressSnapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]models.ProgressSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Attach binds the cancel function of the goroutine running id.
func (r *Registry) Attach(id string, cancel context.CancelFunc) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		cancel()
		return ErrSessionClosed
	}
	s.cancel = cancel
	return nil
}

// Cancel moves id to cancelled and stops its run. The user's admission
// slot is free as soon as Cancel returns. Cancelling a terminal session is
// a no-op.
func (r *Registry) Cancel(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.terminate(models.SessionCancelled, r.now())
	if changed {
		s.warnings = append(s.warnings, "session cancelled by client")
	}
	s.mu.Unlock()

	if changed {
		log.Printf("[Registry] Session %s cancelled", id)
		r.notifyTerminal(s)
	}
	return nil
}

// CleanupPolicy bounds how long and how many sessions are kept.
type CleanupPolicy struct {
	MaxAge     time.Duration
	MaxPerUser int
	StaleAfter time.Duration
}

// CleanupReport lists what a cleanup pass changed.
type CleanupReport struct {
	Evicted   []string
	Abandoned []string
}

// Cleanup abandons stale active sessions, evicts terminal sessions older
// than MaxAge, then evicts the oldest terminal sessions of users above
// MaxPerUser. Active sessions are never evicted.
func (r *Registry) Cleanup(p CleanupPolicy) CleanupReport {
	var report CleanupReport
	var abandoned []*Session
	now := r.now()

	r.mu.Lock()
	for id, s := range r.sessions {
		s.mu.Lock()
		if p.StaleAfter > 0 && s.status.Active() && now.Sub(s.updatedAt) > p.StaleAfter {
			if s.terminate(models.SessionFailed, now) {
				s.errors = append(s.errors, "abandoned: no progress for "+now.Sub(s.updatedAt).Round(time.Second).String())
				report.Abandoned = append(report.Abandoned, id)
				abandoned = append(abandoned, s)
			}
		}
		s.mu.Unlock()
	}

	for userID, ids := range r.byUser {
		type entry struct {
			id       string
			created  time.Time
			finished time.Time
			terminal bool
		}
		entries := make([]entry, 0, len(ids))
		for _, id := range ids {
			s, ok := r.sessions[id]
			if !ok {
				continue
			}
			s.mu.RLock()
			e := entry{id: id, created: s.createdAt, finished: s.updatedAt, terminal: s.status.Terminal()}
			if s.completedAt != nil {
				e.finished = *s.completedAt
			}
			s.mu.RUnlock()
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].created.Before(entries[j].created) })

		kept := entries[:0]
		for _, e := range entries {
			if e.terminal && p.MaxAge > 0 && now.Sub(e.finished) > p.MaxAge {
				report.Evicted = append(report.Evicted, e.id)
				continue
			}
			kept = append(kept, e)
		}

		if p.MaxPerUser > 0 {
			excess := len(kept) - p.MaxPerUser
			remaining := kept[:0]
			for _, e := range kept {
				if excess > 0 && e.terminal {
					report.Evicted = append(report.Evicted, e.id)
					excess--
					continue
				}
				remaining = append(remaining, e)
			}
			kept = remaining
		}

		if len(kept) == 0 {
			delete(r.byUser, userID)
			continue
		}
		next := make([]string, 0, len(kept))
		for _, e := range kept {
			next = append(next, e.id)
		}
		r.byUser[userID] = next
	}

	for _, id := range report.Evicted {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range abandoned {
		log.Printf("[Registry] Session %s abandoned", s.id)
		r.notifyTerminal(s)
	}
	if len(report.Evicted) > 0 && r.hooks.OnEvict != nil {
		r.hooks.OnEvict(report.Evicted)
	}
	return report
}

// Restore loads persisted sessions. Sessions that were active when the
// process stopped are failed, since nothing is running them any more.
func (r *Registry) Restore(snaps []models.ProgressSnapshot) int {
	var interrupted []*Session
	now := r.now()

	r.mu.Lock()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	for _, snap := range snaps {
		if _, exists := r.sessions[snap.SessionID]; exists {
			continue
		}
		s := fromSnapshot(snap)
		if s.status.Active() {
			s.terminate(models.SessionFailed, now)
			s.errors = append(s.errors, "interrupted by restart")
			interrupted = append(interrupted, s)
		}
		r.sessions[s.id] = s
		r.byUser[s.req.UserID] = append(r.byUser[s.req.UserID], s.id)
	}
	r.mu.Unlock()

	for _, s := range interrupted {
		r.notifyTerminal(s)
	}
	return len(interrupted)
}

func (r *Registry) notifyTerminal(s *Session) {
	if r.hooks.OnTerminal != nil {
		r.hooks.OnTerminal(s.Snapshot())
	}
}
