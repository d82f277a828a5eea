package buildctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestTakeCensus(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.py":          "print(\"ok\")\n",
		"pkg/__init__.py":  "",
		"pkg/handlers.py":  "def handle(): pass\n",
		".env":             "SMTP_HOST=localhost\n",
		"requirements.txt": "python-dotenv\n",
	})

	snap, err := Take(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.FileCount)
	assert.Greater(t, snap.TotalBytes, int64(0))
	assert.Len(t, snap.Digest, 64)

	// Directories are recorded too.
	rec, ok := snap.Lookup("pkg")
	require.True(t, ok)
	assert.True(t, rec.IsDir)

	assert.True(t, snap.Has("main.py"))
	assert.True(t, snap.Has(".env"))
	assert.False(t, snap.Has("missing.py"))
	assert.False(t, snap.Has("pkg"))
}

func TestTakeDeterministic(t *testing.T) {
	files := map[string]string{
		"a.py":      "a = 1\n",
		"b/c.py":    "c = 3\n",
		"b/d.txt":   "data\n",
		"deep/e.py": "e = 5\n",
	}

	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeTree(t, dir1, files)
	writeTree(t, dir2, files)

	snap1, err := Take(dir1)
	require.NoError(t, err)
	snap2, err := Take(dir2)
	require.NoError(t, err)

	assert.Equal(t, snap1.Digest, snap2.Digest)

	// Any content change must change the digest.
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "a.py"), []byte("a = 2\n"), 0o644))
	snap3, err := Take(dir2)
	require.NoError(t, err)
	assert.NotEqual(t, snap1.Digest, snap3.Digest)
}

func TestTakeSymlink(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"main.py": "print()\n"})
	require.NoError(t, os.Symlink("main.py", filepath.Join(dir, "app.py")))

	snap, err := Take(dir)
	require.NoError(t, err)

	rec, ok := snap.Lookup("app.py")
	require.True(t, ok)
	assert.True(t, rec.IsSymlink)
	assert.Equal(t, "main.py", rec.LinkTarget)
	// Symlinks carry no content digest.
	assert.Empty(t, rec.Digest)
}

func TestTakeEmptyContext(t *testing.T) {
	snap, err := Take(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, snap.FileCount)
	assert.Empty(t, snap.Files)
	assert.Len(t, snap.Digest, 64)
}

func TestTakeRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Take(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestTakeRejectsSpecialFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, unix.Mkfifo(filepath.Join(dir, "pipe"), 0o644))

	_, err := Take(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestDeriveTag(t *testing.T) {
	tag1 := DeriveTag("fp", "digest")
	tag2 := DeriveTag("fp", "digest")
	assert.Equal(t, tag1, tag2)
	assert.Regexp(t, `^kiln:[0-9a-f]{12}$`, tag1)

	assert.NotEqual(t, tag1, DeriveTag("fp2", "digest"))
	assert.NotEqual(t, tag1, DeriveTag("fp", "digest2"))
}
