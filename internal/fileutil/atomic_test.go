package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	save := filepath.Join(dir, "saves", "xp.json")

	require.NoError(t, WriteFileAtomic(save, []byte(`{"turn":0}`), 0o644))

	data, err := os.ReadFile(save)
	require.NoError(t, err)
	assert.Equal(t, `{"turn":0}`, string(data))

	info, err := os.Stat(save)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteFileAtomicReplacesAndCleansUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	save := filepath.Join(dir, "xp.json")

	for _, body := range []string{"first", "second", "third"} {
		require.NoError(t, WriteFileAtomic(save, []byte(body), 0o600))
	}

	data, err := os.ReadFile(save)
	require.NoError(t, err)
	assert.Equal(t, "third", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files left behind")
	assert.Equal(t, "xp.json", entries[0].Name())
}
