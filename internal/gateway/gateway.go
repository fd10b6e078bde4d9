package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/types"
)

// Gateway turns inbound requests into runs. It resolves (or creates)
// sessions, wraps each request in a Run, and enqueues the run for processing.
type Gateway struct {
	sessions types.SessionStore
	Queue    *Queue
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing.
func New(sessions types.SessionStore, logger *zap.Logger, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		sessions: sessions,
		Queue:    NewQueue(concurrency, logger),
		logger:   logger,
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
	g.wg.Wait()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run produces its reply.
func WithOnComplete(fn func(*types.Reply)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound resolves or creates a session for the request, wraps it in a
// Run, and enqueues it for processing.
func (g *Gateway) HandleInbound(ctx context.Context, req *types.InboundRequest, opts ...RunOption) (*Run, error) {
	if req.SessionKey == "" {
		return nil, fmt.Errorf("inbound request from %q has no session key", req.Source)
	}
	sessionID, err := g.sessions.ResolveOrCreate(ctx, req.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	run := NewRun(sessionID, req)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, err
	}
	g.logger.Debug("run queued",
		zap.String("run_id", string(run.ID)),
		zap.String("session_id", string(sessionID)),
		zap.String("source", req.Source))
	return run, nil
}

// Submit enqueues req and waits for its reply. Runs of the same session stay
// ordered behind earlier submissions.
func (g *Gateway) Submit(ctx context.Context, req *types.InboundRequest) (*types.Reply, error) {
	done := make(chan *types.Reply, 1)
	if _, err := g.HandleInbound(ctx, req, WithOnComplete(func(r *types.Reply) { done <- r })); err != nil {
		return nil, err
	}
	select {
	case reply := <-done:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
