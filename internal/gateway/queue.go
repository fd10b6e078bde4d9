package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/ledgerclaw/internal/types"
)

// FailureText is what the user sees when a run ends with an internal error.
const FailureText = "Sorry, something went wrong processing your message."

// LaneCapacity is how many runs may wait behind one session.
const LaneCapacity = 100

// ErrLaneFull is returned by Enqueue when a session already has
// LaneCapacity runs waiting.
var ErrLaneFull = errors.New("session lane full")

// Queue runs requests one at a time per session and at most maxConcurrent
// at a time overall. Each session owns a buffered lane drained by its own
// goroutine; the goroutine takes a semaphore slot around every run.
type Queue struct {
	lanes     map[types.SessionID]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue allowing maxConcurrent runs across all sessions.
func NewQueue(maxConcurrent int64, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.SessionID]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		logger:    logger,
	}
}

// Start sets the context every run executes under. Call it before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight runs, closes the lanes and waits for their
// goroutines. Runs still waiting in a lane are dropped.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for id, lane := range q.lanes {
		close(lane)
		delete(q.lanes, id)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue appends run to its session lane, opening the lane on first use.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, ok := q.lanes[run.SessionID]
	if !ok {
		lane = make(chan *Run, LaneCapacity)
		q.lanes[run.SessionID] = lane
		q.wg.Add(1)
		go q.drain(lane)
	}
	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("session %s: %w", run.SessionID, ErrLaneFull)
	}
}

// Pending reports how many runs are waiting in the session's lane, not
// counting one that is executing.
func (q *Queue) Pending(sessionID types.SessionID) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes[sessionID])
}

func (q *Queue) drain(lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				q.execute(run)
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		}
	}
}

func (q *Queue) execute(run *Run) {
	run.begin(q.ctx)
	err := q.processor(run)
	run.end(err)
	if err == nil {
		q.logger.Debug("run finished",
			zap.String("run_id", string(run.ID)),
			zap.Duration("took", run.Duration()))
		return
	}
	q.logger.Error("run failed",
		zap.String("run_id", string(run.ID)),
		zap.String("session_id", string(run.SessionID)),
		zap.Int("attempt", run.Attempts),
		zap.Error(err))
	run.Complete(run.failureReply())
}

// WaitIdle polls until no run is executing or timeout passes. It reports
// whether the queue went idle.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for q.active.Load() != 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
	return true
}

// SetProcessor sets the function run for each dequeued Run. Set it before
// the first Enqueue.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
