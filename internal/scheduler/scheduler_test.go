package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/types"
)

type fakePending []*types.ClarificationRequest

func (f fakePending) Pending(context.Context) ([]*types.ClarificationRequest, error) {
	return f, nil
}

type fakeSessions map[types.SessionID]*types.Session

func (f fakeSessions) Get(_ context.Context, id types.SessionID) (*types.Session, error) {
	s, ok := f[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return s, nil
}

type recorder struct {
	mu   sync.Mutex
	sent map[types.SessionKey][]string
}

func (r *recorder) deliver(_ context.Context, key types.SessionKey, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[types.SessionKey][]string)
	}
	r.sent[key] = append(r.sent[key], text)
	return nil
}

func TestRunOnceRemindsDueQuestionsOnce(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	pending := fakePending{
		{QuestionID: "q_old", SessionID: "s1", Question: "Which date?", DocumentLabel: "#1", CreatedAt: now.Add(-2 * time.Hour)},
		{QuestionID: "q_new", SessionID: "s1", Question: "Which customer?", CreatedAt: now.Add(-time.Minute)},
		{QuestionID: "q_orphan", SessionID: "gone", Question: "?", CreatedAt: now.Add(-3 * time.Hour)},
	}
	sessions := fakeSessions{"s1": {ID: "s1", Key: "telegram:1:2"}}
	rec := &recorder{}

	r, err := New(pending, sessions, rec.deliver, Config{After: time.Hour})
	require.NoError(t, err)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.sent["telegram:1:2"], 1)
	assert.Contains(t, rec.sent["telegram:1:2"][0], "about #1: Which date?")
	assert.Contains(t, rec.sent["telegram:1:2"][0], "/answer q_old")

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := New(fakePending{}, fakeSessions{}, (&recorder{}).deliver, Config{Schedule: "not a schedule"})
	assert.Error(t, err)
}

func TestReminderFiresOnSchedule(t *testing.T) {
	pending := fakePending{{QuestionID: "q1", SessionID: "s1", Question: "Which date?", CreatedAt: time.Now().Add(-2 * time.Hour)}}
	sessions := fakeSessions{"s1": {ID: "s1", Key: "http:abc"}}

	var fires atomic.Int32
	deliver := func(context.Context, types.SessionKey, string) error {
		fires.Add(1)
		return nil
	}
	r, err := New(pending, sessions, deliver, Config{Schedule: "* * * * * *"})
	require.NoError(t, err)
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return fires.Load() > 0 }, 2500*time.Millisecond, 100*time.Millisecond)
}
