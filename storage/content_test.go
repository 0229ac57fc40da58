package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentStorePutGet(t *testing.T) {
	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	content := []byte("РІШЕННЯ ІМЕНЕМ УКРАЇНИ")
	hash := HashContent(content)

	location, err := store.Put(hash, content)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(hash[:2], hash[2:4], hash), location)

	got, err := store.Get(location)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestContentStorePutIdempotent(t *testing.T) {
	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	content := []byte("same document body")
	hash := HashContent(content)

	first, err := store.Put(hash, content)
	require.NoError(t, err)

	// Second put of existing content must not rewrite the file.
	path := filepath.Join(store.Root(), first)
	before, err := os.Stat(path)
	require.NoError(t, err)

	second, err := store.Put(hash, content)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestContentStorePutInvalidHash(t *testing.T) {
	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put("abc123", []byte("short hash"))
	assert.Error(t, err)

	notHex := "zz" + HashContent([]byte("x"))[2:]
	_, err = store.Put(notHex, []byte("bad hex"))
	assert.Error(t, err)
}

func TestContentStoreGetMissing(t *testing.T) {
	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("ab/cd/" + HashContent([]byte("never stored")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContentStoreGetRejectsTraversal(t *testing.T) {
	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("../outside")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = store.Get("/etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestHashContent(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		HashContent([]byte("hello")))
	assert.Len(t, HashContent(nil), 64)
}
