package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/types"
)

func startQueue(t *testing.T, maxConcurrent int64) *Queue {
	t.Helper()
	q := NewQueue(maxConcurrent, nil)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func TestQueueBoundsParallelismAcrossSessions(t *testing.T) {
	q := startQueue(t, 2)

	var running, maxSeen atomic.Int32
	var wg sync.WaitGroup
	q.SetProcessor(func(*Run) error {
		defer wg.Done()
		current := running.Add(1)
		for {
			old := maxSeen.Load()
			if current <= old || maxSeen.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	wg.Add(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(NewRun(types.SessionID(fmt.Sprintf("ledger-%d", i)), &types.InboundRequest{})))
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
	assert.Positive(t, maxSeen.Load())
}

func TestQueueKeepsSessionOrder(t *testing.T) {
	q := startQueue(t, 4)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	q.SetProcessor(func(run *Run) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		order = append(order, run.Request.Text)
		if len(order) == 3 {
			close(done)
		}
		return nil
	})

	for _, text := range []string{"upload invoice", "answer question", "post voucher"} {
		require.NoError(t, q.Enqueue(NewRun("acme", &types.InboundRequest{Text: text})))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runs")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"upload invoice", "answer question", "post voucher"}, order)
}

func TestQueueWithoutProcessorDrainsLane(t *testing.T) {
	q := startQueue(t, 1)
	require.NoError(t, q.Enqueue(NewRun("no-proc", &types.InboundRequest{})))
	assert.True(t, q.WaitIdle(time.Second))
}

func TestQueueFailedRunCompletesWithFailure(t *testing.T) {
	q := startQueue(t, 1)
	q.SetProcessor(func(*Run) error { return errors.New("store unavailable") })

	replies := make(chan *types.Reply, 1)
	run := NewRun("failing", &types.InboundRequest{Text: "hi"})
	run.OnComplete = func(r *types.Reply) { replies <- r }
	require.NoError(t, q.Enqueue(run))

	select {
	case reply := <-replies:
		require.Len(t, reply.Messages, 1)
		assert.Equal(t, FailureText, reply.Messages[0].Content)
		assert.Equal(t, types.StatusFailed, reply.Messages[0].Payload.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure reply")
	}
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.EqualError(t, run.Error, "store unavailable")
}

func TestRunLifecycle(t *testing.T) {
	run := NewRun("s1", &types.InboundRequest{Text: "hi"})
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.Zero(t, run.Duration())

	ctx := context.Background()
	run.begin(ctx)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, ctx, run.Ctx)

	time.Sleep(5 * time.Millisecond)
	run.end(nil)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.NoError(t, run.Error)
	assert.Positive(t, run.Duration())

	reply := run.failureReply()
	assert.Equal(t, run.ID, reply.RunID)
	assert.True(t, reply.Messages[0].At.Equal(*run.EndedAt))
}

func TestQueueRejectsWhenLaneFull(t *testing.T) {
	q := startQueue(t, 1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	q.SetProcessor(func(*Run) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	defer close(release)

	require.NoError(t, q.Enqueue(NewRun("busy", &types.InboundRequest{})))
	<-started
	for i := 0; i < LaneCapacity; i++ {
		require.NoError(t, q.Enqueue(NewRun("busy", &types.InboundRequest{})))
	}
	assert.Equal(t, LaneCapacity, q.Pending("busy"))
	assert.Zero(t, q.Pending("idle"))

	err := q.Enqueue(NewRun("busy", &types.InboundRequest{}))
	assert.ErrorIs(t, err, ErrLaneFull)
}
