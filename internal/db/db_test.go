package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesPrivateWorkspace(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())

	info, err := os.Stat(Dir(ws))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	assert.Equal(t, filepath.Join(ws, ".safeplate", "safeplate.db"), Path(ws))
}

func TestReadOnlyNeedsExistingStore(t *testing.T) {
	ws := t.TempDir()
	_, err := Open(Config{Workspace: ws, ReadOnly: true})
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(Dir(ws))
	assert.True(t, os.IsNotExist(err), "read-only open must not create the workspace")
}
