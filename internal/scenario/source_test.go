package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	loads int
}

func (c *countingSource) Load(context.Context, string) (*Catalog, error) {
	c.loads++
	return NewCatalog([]*Definition{{Key: "a", IsActive: true}}), nil
}

func TestFileSourcePerCompanyWithFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.json"), []byte(`[{"scenarioKey":"default.one","isActive":true}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme.json"), []byte(`[{"scenarioKey":"acme.one","isActive":true}]`), 0o644))

	src := NewFileSource(dir)
	acme, err := src.Load(context.Background(), "acme")
	require.NoError(t, err)
	_, ok := acme.Get("acme.one")
	assert.True(t, ok)

	other, err := src.Load(context.Background(), "globex")
	require.NoError(t, err)
	_, ok = other.Get("default.one")
	assert.True(t, ok)

	traversal, err := src.Load(context.Background(), "../etc")
	require.NoError(t, err)
	_, ok = traversal.Get("default.one")
	assert.True(t, ok)

	empty, err := NewFileSource(t.TempDir()).Load(context.Background(), "x")
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestCachedSource(t *testing.T) {
	next := &countingSource{}
	src := NewCachedSource(next, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := src.Load(context.Background(), "acme")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, next.loads)

	src.Invalidate("acme")
	_, err := src.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, next.loads)
}
