// internal/state/analysis_test.go
package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/types"
)

func TestAnalysisStoreLastWriteWins(t *testing.T) {
	store := NewAnalysisStore(t.TempDir())
	ctx := context.Background()
	sessionID := types.NewSessionID()

	require.NoError(t, store.Put(ctx, sessionID, "f1", json.RawMessage(`{"totalAmount":100}`)))
	require.NoError(t, store.Put(ctx, sessionID, "f1", json.RawMessage(`{"totalAmount":200}`)))

	raw, err := store.Get(ctx, sessionID, "f1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalAmount":200}`, string(raw))

	_, err = store.Get(ctx, sessionID, "f2")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
