package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestScope_ReleaseRemovesEverything(t *testing.T) {
	root := t.TempDir()
	scope, err := NewScope(root)
	require.NoError(t, err)

	a := filepath.Join(scope.Dir(), "a.mp4")
	b := filepath.Join(scope.Dir(), "b.m4a")
	touch(t, a)
	touch(t, b)
	touch(t, filepath.Join(scope.Dir(), "c.mp4.part"))

	scope.Add(a, b, a, "")
	assert.Equal(t, []string{a, b}, scope.Paths())

	scope.Release()
	assert.NoDirExists(t, scope.Dir())
	assert.Empty(t, scope.Paths())

	// Double release is a no-op.
	scope.Release()
}

func TestScope_MissingPathsAreNotErrors(t *testing.T) {
	scope, err := NewScope(t.TempDir())
	require.NoError(t, err)

	scope.Add(filepath.Join(scope.Dir(), "never-created.mp4"))
	assert.NotPanics(t, scope.Release)
	assert.NoDirExists(t, scope.Dir())
}

func TestScope_DiscardForgetsPaths(t *testing.T) {
	scope, err := NewScope(t.TempDir())
	require.NoError(t, err)
	defer scope.Release()

	a := filepath.Join(scope.Dir(), "a.mp4")
	b := filepath.Join(scope.Dir(), "b.mp4")
	touch(t, a)
	touch(t, b)
	scope.Add(a, b)

	scope.Discard(a)
	assert.NoFileExists(t, a)
	assert.FileExists(t, b)
	assert.Equal(t, []string{b}, scope.Paths())
}

func TestScope_AddAfterReleaseRemovesImmediately(t *testing.T) {
	root := t.TempDir()
	scope, err := NewScope(root)
	require.NoError(t, err)
	scope.Release()

	late := filepath.Join(root, "late.mp4")
	touch(t, late)
	scope.Add(late)
	assert.NoFileExists(t, late)
}

func TestNewScope_UniqueDirectories(t *testing.T) {
	root := t.TempDir()
	a, err := NewScope(root)
	require.NoError(t, err)
	b, err := NewScope(root)
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.Equal(t, root, filepath.Dir(a.Dir()))
}
