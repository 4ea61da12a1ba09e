package jsonstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agenda")
	s, err := New(dir)
	require.NoError(t, err)

	_, ok, err := s.Get("tasks")
	require.NoError(t, err)
	assert.False(t, ok, "missing key must report absent")

	require.NoError(t, s.Set("tasks", []byte(`[{"id":1}]`)))
	got, ok, err := s.Get("tasks")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":1}]`, string(got))

	fi, err := os.Stat(filepath.Join(dir, "tasks.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, s.Set("tasks", []byte(`[]`)))
	got, _, err = s.Get("tasks")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreDelete(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Delete("token"), "deleting a missing key is fine")
	require.NoError(t, s.Set("token", []byte(`"abc"`)))
	require.NoError(t, s.Delete("token"))
	_, ok, err := s.Get("token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Set("../escape", []byte("x")))
	assert.Error(t, s.Set("a/b", []byte("x")))

	_, err = New("  ")
	assert.Error(t, err)
}
