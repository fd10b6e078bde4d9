// internal/state/files_test.go
package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/types"
)

func TestFileStore(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	file := &types.UploadedFile{FileName: "../invoice.txt", ContentType: "text/plain"}
	require.NoError(t, store.Save(ctx, file, []byte("Invoice total 11000")))
	require.NotEmpty(t, file.ID)
	assert.Equal(t, int64(19), file.Size)

	resolved, err := store.ResolveFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "invoice.txt", filepath.Base(resolved.StoredPath))
	assert.Equal(t, file.StoredPath, resolved.StoredPath)

	data, err := store.Read(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice total 11000", string(data))

	missing, err := store.ResolveFile(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
