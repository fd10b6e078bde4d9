// internal/state/clarification_test.go
package state

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

func TestClarificationStoreAnswersOnce(t *testing.T) {
	store := NewClarificationStore(t.TempDir())
	ctx := context.Background()

	req := &types.ClarificationRequest{QuestionID: types.NewQuestionID(), Question: "Posting date?"}
	require.NoError(t, store.Save(ctx, req))

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	ok, err := store.MarkAnswered(ctx, req.QuestionID, "2024-03-31", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkAnswered(ctx, req.QuestionID, "2024-04-01", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second answer is ignored")

	got, err := store.Get(ctx, req.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, types.ClarificationAnswered, got.State)
	assert.Equal(t, "2024-03-31", got.Answer)

	open, err = store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestClarificationStoreConcurrentAnswers(t *testing.T) {
	store := NewClarificationStore(t.TempDir())
	ctx := context.Background()
	req := &types.ClarificationRequest{QuestionID: "q_race", Question: "?"}
	require.NoError(t, store.Save(ctx, req))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkAnswered(ctx, "q_race", "yes", time.Now())
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestClarificationStoreUnknown(t *testing.T) {
	store := NewClarificationStore(t.TempDir())
	_, err := store.MarkAnswered(context.Background(), "q_missing", "x", time.Now())
	assert.ErrorIs(t, err, types.ErrNotFound)
}
