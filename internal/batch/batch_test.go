package batch

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBatch(t *testing.T, root string, files ...string) string {
	t.Helper()
	id, err := NewFolder(root)
	require.NoError(t, err)
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, id, name), []byte("data\n"), 0o644))
	}
	return id
}

func TestNewFolder(t *testing.T) {
	root := t.TempDir()

	id, err := NewFolder(root)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	stat, err := os.Stat(filepath.Join(root, id))
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	id := seedBatch(t, root,
		"teen_births.csv", "teen_births_debug.csv",
		"poverty.csv", "poverty_debug.csv",
		LogName,
	)

	info, err := Stat(root, id)
	require.NoError(t, err)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, 2, info.Indicators)
	assert.False(t, info.Finished)
}

func TestStat_Missing(t *testing.T) {
	_, err := Stat(t.TempDir(), "nope")
	require.Error(t, err)
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	a := seedBatch(t, root, "x.csv", "x_debug.csv")
	b := seedBatch(t, root, "y.csv", "y_debug.csv")

	infos, err := Collect(root)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	ids := []string{infos[0].ID, infos[1].ID}
	assert.Contains(t, ids, a)
	assert.Contains(t, ids, b)
}

func TestCollect_MissingRoot(t *testing.T) {
	infos, err := Collect(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestReadLog(t *testing.T) {
	root := t.TempDir()
	id := seedBatch(t, root)

	log, err := ReadLog(root, id)
	require.NoError(t, err)
	assert.Empty(t, log)

	require.NoError(t, os.WriteFile(filepath.Join(root, id, LogName), []byte("started\n"), 0o644))
	log, err = ReadLog(root, id)
	require.NoError(t, err)
	assert.Equal(t, "started\n", log)
}

func TestArchive(t *testing.T) {
	root := t.TempDir()
	id := seedBatch(t, root, "x.csv", "x_debug.csv", LogName)

	path, err := Archive(root, id)
	require.NoError(t, err)

	info, err := Stat(root, id)
	require.NoError(t, err)
	assert.True(t, info.Finished)

	// Archive contents: every file except the archive itself.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.ElementsMatch(t, []string{"x.csv", "x_debug.csv", LogName}, names)

	// Archiving twice is refused.
	_, err = Archive(root, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already archived")
}

func TestArchive_FailureLeavesRunUnfinished(t *testing.T) {
	root := t.TempDir()
	id := seedBatch(t, root, "x.csv", "x_debug.csv")

	// A dangling symlink makes the file walk fail partway through.
	dir := filepath.Join(root, id)
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.csv"), filepath.Join(dir, "broken.csv")))

	_, err := Archive(root, id)
	require.Error(t, err)

	// No archive may appear, partial or otherwise, and the run stays unfinished.
	_, statErr := os.Stat(filepath.Join(dir, ArchiveName))
	assert.True(t, os.IsNotExist(statErr))

	info, err := Stat(root, id)
	require.NoError(t, err)
	assert.False(t, info.Finished)
}
