// Package authz bridges the engine, which blocks awaiting a decision for a
// specific tool call, and the HTTP surface, which polls for pending
// authorizations and posts responses on the client's behalf (spec §4.3).
// Grounded on the teacher's HITL approval pattern (v2/tool/approvaltool)
// generalized from the single-call "mark pending, let the host loop poll"
// shape into a process-wide rendezvous keyed by tool-call-id.
package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/oversight/internal/runtimeerr"
)

// Decision is the engine-facing verdict for one authorization request.
type Decision string

const (
	DecisionYes Decision = "yes"
	DecisionNo  Decision = "no"
)

// Reply is the client-facing response posted to handle_response.
type Reply string

const (
	ReplyApprove         Reply = "approve"
	ReplyDeny            Reply = "deny"
	ReplyApproveAndAllow Reply = "approve_and_allow"
)

// Mode is the coordinator-wide authorization policy.
type Mode string

const (
	ModeAsk         Mode = "ask"
	ModeAlwaysAllow Mode = "always_allow"
	ModeAlwaysDeny  Mode = "always_deny"
	ModeDisabled    Mode = "disabled"
)

// RequestContext describes the tool call a pending record was created for.
type RequestContext struct {
	ToolCallID  string
	ToolName    string
	Description string
	Arguments   map[string]any
	Step        int
}

// Status is the poll-time view of a pending record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusTimedOut Status = "timed_out"
)

// PendingRecord is a snapshot returned by GetPending; it is a copy and
// carries no reply channel.
type PendingRecord struct {
	RequestContext
	CreatedAt time.Time
	Status    Status
}

type pending struct {
	ctx       RequestContext
	createdAt time.Time
	replyCh   chan Reply
	timeout   time.Duration
}

// Coordinator is the process-wide pending-authorization map.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pending

	mode    Mode
	timeout time.Duration

	now func() time.Time
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithMode sets the initial authorization mode.
func WithMode(m Mode) Option { return func(c *Coordinator) { c.mode = m } }

// WithTimeout overrides the default 30s await timeout.
func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// New constructs a Coordinator in Ask mode with a 30s default timeout.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		pending: make(map[string]*pending),
		mode:    ModeAsk,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode reports the coordinator's current authorization policy.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode updates the coordinator's authorization policy, e.g. from the
// config HTTP endpoint.
func (c *Coordinator) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// RequestAuthorization blocks the caller (the engine) until a decision is
// reached: immediately under Disabled/AlwaysAllow/AlwaysDeny, or by waiting
// on a client reply (or the context/timeout expiring) under Ask.
func (c *Coordinator) RequestAuthorization(ctx context.Context, reqCtx RequestContext) (Decision, error) {
	c.mu.Lock()
	mode := c.mode
	timeout := c.timeout
	c.mu.Unlock()

	switch mode {
	case ModeDisabled, ModeAlwaysAllow:
		return DecisionYes, nil
	case ModeAlwaysDeny:
		return DecisionNo, nil
	}

	p := &pending{
		ctx:       reqCtx,
		createdAt: c.now(),
		replyCh:   make(chan Reply, 1),
		timeout:   timeout,
	}

	c.mu.Lock()
	c.pending[reqCtx.ToolCallID] = p
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-p.replyCh:
		if reply == ReplyApproveAndAllow {
			c.mu.Lock()
			c.mode = ModeAlwaysAllow
			c.mu.Unlock()
		}
		if reply == ReplyDeny {
			return DecisionNo, nil
		}
		return DecisionYes, nil

	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, reqCtx.ToolCallID)
		c.mu.Unlock()
		return DecisionNo, nil

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, reqCtx.ToolCallID)
		c.mu.Unlock()
		return DecisionNo, runtimeerr.Wrap(runtimeerr.KindAuthFailed, "authorization request canceled", ctx.Err())
	}
}

// HandleResponse delivers a client's reply for a pending tool-call-id.
func (c *Coordinator) HandleResponse(toolCallID string, reply Reply) error {
	c.mu.Lock()
	p, ok := c.pending[toolCallID]
	if ok {
		delete(c.pending, toolCallID)
	}
	c.mu.Unlock()

	if !ok {
		return runtimeerr.New(runtimeerr.KindValidation, fmt.Sprintf("unknown authorization id %q", toolCallID))
	}
	p.replyCh <- reply
	return nil
}

// GetPending returns a poll-only snapshot of every outstanding record.
func (c *Coordinator) GetPending() []PendingRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]PendingRecord, 0, len(c.pending))
	for _, p := range c.pending {
		status := StatusPending
		if now.Sub(p.createdAt) > p.timeout {
			status = StatusTimedOut
		}
		out = append(out, PendingRecord{RequestContext: p.ctx, CreatedAt: p.createdAt, Status: status})
	}
	return out
}

// Cancel removes a pending record and replies No to its awaiting engine
// goroutine, if one is still waiting.
func (c *Coordinator) Cancel(toolCallID string) error {
	c.mu.Lock()
	p, ok := c.pending[toolCallID]
	if ok {
		delete(c.pending, toolCallID)
	}
	c.mu.Unlock()

	if !ok {
		return runtimeerr.New(runtimeerr.KindValidation, fmt.Sprintf("unknown authorization id %q", toolCallID))
	}
	p.replyCh <- ReplyDeny
	return nil
}
