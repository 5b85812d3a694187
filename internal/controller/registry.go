package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/cimut/internal/metrics"
)

// reapInterval bounds how often idle sessions are swept. Shorter TTLs sweep
// at half the TTL.
const reapInterval = time.Minute

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
	// watchers counts open connections streaming this session.
	watchers int
}

// Registry holds one Controller per open panel view.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*registryEntry

	gw      Gateway
	pub     Publisher
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates an empty registry. Sessions idle longer than ttl are
// discarded by Run; a zero ttl keeps them until deleted.
func NewRegistry(gw Gateway, pub Publisher, ttl time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*registryEntry),
		gw:       gw,
		pub:      pub,
		metrics:  m,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new empty session.
func (r *Registry) Create() *Controller {
	ctrl := New(uuid.New(), r.gw, r.pub, r.metrics)

	r.mu.Lock()
	r.sessions[ctrl.ID()] = &registryEntry{ctrl: ctrl, lastSeen: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	return ctrl
}

// Get returns the session's controller and marks it as recently used.
func (r *Registry) Get(id uuid.UUID) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("controller.Registry.Get(%s): %w", id, ErrSessionNotFound)
	}
	e.lastSeen = r.now()
	return e.ctrl, nil
}

// Acquire returns the session's controller and pins it against reaping
// until release is called. release may be called more than once.
func (r *Registry) Acquire(id uuid.UUID) (ctrl *Controller, release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("controller.Registry.Acquire(%s): %w", id, ErrSessionNotFound)
	}
	e.lastSeen = r.now()
	e.watchers++

	var once sync.Once
	release = func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.watchers--
			e.lastSeen = r.now()
		})
	}
	return e.ctrl, release, nil
}

// Delete discards a session. In-flight gateway calls still complete, but
// their results are no longer reachable.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("controller.Registry.Delete(%s): %w", id, ErrSessionNotFound)
	}
	r.metrics.SetActiveSessions(n)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap discards sessions not used since now minus the TTL and returns
// their IDs. Sessions with an open stream or a loading operation are kept.
func (r *Registry) Reap(now time.Time) []uuid.UUID {
	if r.ttl <= 0 {
		return nil
	}

	r.mu.Lock()
	var reaped []uuid.UUID
	for id, e := range r.sessions {
		if e.watchers > 0 || e.ctrl.Busy() {
			continue
		}
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.sessions, id)
			reaped = append(reaped, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if len(reaped) > 0 {
		r.metrics.SetActiveSessions(n)
	}
	return reaped
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}

	interval := max(min(reapInterval, r.ttl/2), time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("ttl", r.ttl).Dur("interval", interval).Msg("session reaper started")
	for {
		select {
		case <-ticker.C:
			if reaped := r.Reap(r.now()); len(reaped) > 0 {
				log.Info().Int("count", len(reaped)).Msg("session reaper discarded idle sessions")
			}
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("session reaper shutting down")
			return
		}
	}
}
