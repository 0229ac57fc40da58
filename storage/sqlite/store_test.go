package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreCreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DBFileName), store.Path())
	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestNewStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.WriteParsed(context.Background(), testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening skips applied migrations and keeps the data.
	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
}

func TestNewStoreRequiresDataDir(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}
