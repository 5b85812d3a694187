// Package controller owns panel sessions and sequences the verify, mutate
// and find-fault-target operations against the agent gateway.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/cimut/internal/domain"
	"github.com/gosuda/cimut/internal/gateway"
	"github.com/gosuda/cimut/internal/metrics"
)

// ErrInFlight is returned when an operation of the same family is still loading.
var ErrInFlight = errors.New("controller: operation already in flight") //nolint:gochecknoglobals // sentinel error

// ErrSessionNotFound is returned by the Registry for unknown or reaped sessions.
var ErrSessionNotFound = errors.New("controller: session not found") //nolint:gochecknoglobals // sentinel error

// Rejection reasons recorded in metrics.
const (
	reasonValidation = "validation"
	reasonInFlight   = "in_flight"
)

// Gateway is the remote agent gateway. *gateway.Client implements it.
type Gateway interface {
	Verify(ctx context.Context, agentID string, req gateway.VerifyRequest) (*gateway.VerifyResponse, error)
	Mutate(ctx context.Context, agentID string, req gateway.MutateRequest) (*gateway.MutateResponse, error)
	FindFaultTarget(ctx context.Context, agentID string, req gateway.FindRequest) (*gateway.FaultTargetResponse, error)
}

// Publisher receives every committed snapshot.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap Snapshot)
}

// Snapshot is a deep copy of a session together with its derived triggers.
type Snapshot struct {
	Session  domain.Session  `json:"session"`
	Triggers domain.Triggers `json:"triggers"`
}

// FieldUpdate carries operator edits. Nil fields are left unchanged.
type FieldUpdate struct {
	AgentID            *string `json:"agent_id,omitempty"`
	TargetFile         *string `json:"target_file,omitempty"`
	TargetLine         *string `json:"target_line,omitempty"`
	ReplacementContent *string `json:"replacement_content,omitempty"`
	ChatQuery          *string `json:"chat_query,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u FieldUpdate) Empty() bool {
	return u.AgentID == nil && u.TargetFile == nil && u.TargetLine == nil &&
		u.ReplacementContent == nil && u.ChatQuery == nil
}

func (u FieldUpdate) apply(s domain.Session) domain.Session {
	if u.AgentID != nil {
		s.AgentID = *u.AgentID
	}
	if u.TargetFile != nil {
		s.TargetFile = *u.TargetFile
	}
	if u.TargetLine != nil {
		s.TargetLine = *u.TargetLine
	}
	if u.ReplacementContent != nil {
		s.ReplacementContent = *u.ReplacementContent
	}
	if u.ChatQuery != nil {
		s.ChatQuery = *u.ChatQuery
	}
	return s
}

// Controller owns one session. Each operation family has a single in-flight
// slot; the lock is never held across a gateway call, so families overlap
// and a completing find may overwrite coordinates a verify was issued for.
type Controller struct {
	mu      sync.Mutex
	session domain.Session

	gw      Gateway
	pub     Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a controller for an empty session. pub and m may be nil.
func New(id uuid.UUID, gw Gateway, pub Publisher, m *metrics.Metrics) *Controller {
	now := time.Now().UTC()
	return &Controller{
		session: domain.NewSession(id, now),
		gw:      gw,
		pub:     pub,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the session identifier.
func (c *Controller) ID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotOf(c.session)
}

// Busy reports whether any operation is loading.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.VerifyState == domain.StatusLoading ||
		c.session.MutateState == domain.StatusLoading ||
		c.session.ChatLoading
}

// UpdateFields applies operator edits. Edits are accepted while operations
// are loading.
func (c *Controller) UpdateFields(ctx context.Context, u FieldUpdate) Snapshot {
	if u.Empty() {
		return c.Snapshot()
	}
	return c.commit(ctx, func(s domain.Session) domain.Session { return u.apply(s) })
}

// VerifyLine fetches the content of targetLine in targetFile. The arguments
// become the session's coordinates. Validation failures and ErrInFlight are
// returned without contacting the gateway. Server-reported and transport
// failures are recorded in the session and also returned.
func (c *Controller) VerifyLine(ctx context.Context, agentID, targetFile, targetLine string) (Snapshot, error) {
	c.mu.Lock()
	if c.session.VerifyState == domain.StatusLoading {
		snap := snapshotOf(c.session)
		c.mu.Unlock()
		c.metrics.IncRejected(gateway.OpVerify, reasonInFlight)
		return snap, fmt.Errorf("controller.Controller.VerifyLine: %w", ErrInFlight)
	}
	c.session.AgentID, c.session.TargetFile, c.session.TargetLine = agentID, targetFile, targetLine

	line, err := ValidateVerify(agentID, targetFile, targetLine)
	if err != nil {
		snap := c.commitLocked(func(s domain.Session) domain.Session {
			return RejectMissingFields(s, MissingVerifyFields)
		})
		c.mu.Unlock()
		c.publish(ctx, snap)
		c.metrics.IncRejected(gateway.OpVerify, reasonValidation)
		return snap, fmt.Errorf("controller.Controller.VerifyLine: %w", err)
	}

	snap := c.commitLocked(StartVerify)
	c.mu.Unlock()
	c.publish(ctx, snap)

	resp, callErr := c.gw.Verify(ctx, agentID, gateway.VerifyRequest{FilePath: targetFile, LineNumber: line})

	var opErr error
	snap = c.commit(ctx, func(s domain.Session) domain.Session {
		s, opErr = CompleteVerify(s, resp, callErr)
		return s
	})
	if opErr != nil {
		c.logFailure(gateway.OpVerify, agentID, opErr)
		return snap, fmt.Errorf("controller.Controller.VerifyLine: %w", opErr)
	}
	return snap, nil
}

// MutateLine overwrites targetLine in targetFile with replacement. It does
// not check that the line was verified; callers gate on Triggers.CanMutate.
func (c *Controller) MutateLine(ctx context.Context, agentID, targetFile, targetLine, replacement string) (Snapshot, error) {
	c.mu.Lock()
	if c.session.MutateState == domain.StatusLoading {
		snap := snapshotOf(c.session)
		c.mu.Unlock()
		c.metrics.IncRejected(gateway.OpMutate, reasonInFlight)
		return snap, fmt.Errorf("controller.Controller.MutateLine: %w", ErrInFlight)
	}
	c.session.AgentID, c.session.TargetFile, c.session.TargetLine = agentID, targetFile, targetLine
	c.session.ReplacementContent = replacement

	line, err := ValidateMutate(agentID, targetFile, targetLine, replacement)
	if err != nil {
		snap := c.commitLocked(func(s domain.Session) domain.Session {
			return RejectMissingFields(s, MissingMutateFields)
		})
		c.mu.Unlock()
		c.publish(ctx, snap)
		c.metrics.IncRejected(gateway.OpMutate, reasonValidation)
		return snap, fmt.Errorf("controller.Controller.MutateLine: %w", err)
	}

	snap := c.commitLocked(StartMutate)
	c.mu.Unlock()
	c.publish(ctx, snap)

	resp, callErr := c.gw.Mutate(ctx, agentID, gateway.MutateRequest{
		FilePath:   targetFile,
		LineNumber: line,
		NewContent: replacement,
	})

	var opErr error
	snap = c.commit(ctx, func(s domain.Session) domain.Session {
		s, opErr = CompleteMutate(s, resp, callErr)
		return s
	})
	if opErr != nil {
		c.logFailure(gateway.OpMutate, agentID, opErr)
		return snap, fmt.Errorf("controller.Controller.MutateLine: %w", opErr)
	}
	return snap, nil
}

// FindFaultTarget asks the agent's assistant for a mutation target. The
// query is appended to the transcript before the call and the reply right
// after it; a complete suggestion auto-fills the manual coordinates.
func (c *Controller) FindFaultTarget(ctx context.Context, agentID, query string) (Snapshot, error) {
	c.mu.Lock()
	if c.session.ChatLoading {
		snap := snapshotOf(c.session)
		c.mu.Unlock()
		c.metrics.IncRejected(gateway.OpFindFaultTarget, reasonInFlight)
		return snap, fmt.Errorf("controller.Controller.FindFaultTarget: %w", ErrInFlight)
	}
	c.session.AgentID = agentID

	if err := ValidateChat(agentID, query); err != nil {
		snap := c.commitLocked(func(s domain.Session) domain.Session {
			s.ChatQuery = query
			return RejectMissingFields(s, MissingChatFields)
		})
		c.mu.Unlock()
		c.publish(ctx, snap)
		c.metrics.IncRejected(gateway.OpFindFaultTarget, reasonValidation)
		return snap, fmt.Errorf("controller.Controller.FindFaultTarget: %w", err)
	}

	snap := c.commitLocked(func(s domain.Session) domain.Session {
		return StartFind(s, query, c.now())
	})
	c.mu.Unlock()
	c.publish(ctx, snap)

	resp, callErr := c.gw.FindFaultTarget(ctx, agentID, gateway.FindRequest{Query: query})

	var opErr error
	snap = c.commit(ctx, func(s domain.Session) domain.Session {
		s, opErr = CompleteFind(s, resp, callErr, c.now())
		return s
	})
	if opErr != nil {
		c.logFailure(gateway.OpFindFaultTarget, agentID, opErr)
		return snap, fmt.Errorf("controller.Controller.FindFaultTarget: %w", opErr)
	}
	return snap, nil
}

// commit applies fn under the lock and publishes the result.
func (c *Controller) commit(ctx context.Context, fn func(domain.Session) domain.Session) Snapshot {
	c.mu.Lock()
	snap := c.commitLocked(fn)
	c.mu.Unlock()
	c.publish(ctx, snap)
	return snap
}

func (c *Controller) commitLocked(fn func(domain.Session) domain.Session) Snapshot {
	s := fn(c.session)
	s.Version = c.session.Version + 1
	s.UpdatedAt = c.now()
	c.session = s
	return snapshotOf(s)
}

func (c *Controller) publish(ctx context.Context, snap Snapshot) {
	if c.pub == nil {
		return
	}
	c.pub.PublishSnapshot(ctx, snap)
}

func (c *Controller) logFailure(op, agentID string, err error) {
	ev := log.Info()
	if errors.Is(err, domain.ErrTransport) {
		ev = log.Warn()
	}
	ev.Err(err).
		Str("op", op).
		Str("agent_id", agentID).
		Str("session_id", c.ID().String()).
		Msg("controller: operation failed")
}

func snapshotOf(s domain.Session) Snapshot {
	s = s.Clone()
	return Snapshot{Session: s, Triggers: s.Triggers()}
}
