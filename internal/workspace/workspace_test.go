package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_SetupAndLock(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	w, err := New(root)
	require.NoError(t, err)
	require.NoError(t, w.Setup())
	defer w.Unlock()

	assert.DirExists(t, w.Root)
	assert.DirExists(t, w.MetadataDir)

	other, err := New(root)
	require.NoError(t, err)
	err = other.Lock()
	assert.ErrorIs(t, err, ErrLocked)
}

func TestWorkspace_UnlockReleasesForNextInstance(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	w, err := New(root)
	require.NoError(t, err)
	require.NoError(t, w.Setup())
	require.NoError(t, w.Unlock())

	again, err := New(root)
	require.NoError(t, err)
	require.NoError(t, again.Lock())
	defer again.Unlock()
}
