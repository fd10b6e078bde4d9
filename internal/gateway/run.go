package gateway

import (
	"context"
	"time"

	"github.com/user/ledgerclaw/internal/types"
)

// RunStatus is where a Run is in its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one inbound request waiting in, or executing from, a session lane.
type Run struct {
	ID        types.RunID
	SessionID types.SessionID
	Request   *types.InboundRequest
	Status    RunStatus
	Attempts  int
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	// Ctx is the queue context the processor must honor.
	Ctx context.Context
	// OnComplete receives the reply exactly once, including the canned
	// failure reply when the processor returns an error.
	OnComplete func(reply *types.Reply)
}

// NewRun queues req against sessionID.
func NewRun(sessionID types.SessionID, req *types.InboundRequest) *Run {
	return &Run{
		ID:        types.NewRunID(),
		SessionID: sessionID,
		Request:   req,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

// Complete hands reply to the callback, if any.
func (r *Run) Complete(reply *types.Reply) {
	if r.OnComplete != nil {
		r.OnComplete(reply)
	}
}

// Duration is the time spent executing, zero until the run has ended.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}

func (r *Run) begin(ctx context.Context) {
	now := time.Now()
	r.Ctx = ctx
	r.Attempts++
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) end(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	r.Status = RunStatusComplete
	if err != nil {
		r.Status = RunStatusFailed
	}
}

// failureReply is the single assistant message sent when the processor
// gave up without producing a reply of its own.
func (r *Run) failureReply() *types.Reply {
	at := time.Now()
	if r.EndedAt != nil {
		at = *r.EndedAt
	}
	return &types.Reply{
		SessionID: r.SessionID,
		RunID:     r.ID,
		Messages: []*types.Message{{
			ID:        types.NewMessageID(),
			SessionID: r.SessionID,
			RunID:     r.ID,
			Role:      types.RoleAssistant,
			Content:   FailureText,
			Payload:   &types.MessagePayload{Status: types.StatusFailed},
			At:        at,
		}},
	}
}
