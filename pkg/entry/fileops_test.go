package entry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFile_CopyDelete(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))

	// sameDev=false exercises the copy-verify-delete path
	require.NoError(t, moveFile(src, dst, false))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
	assert.NoFileExists(t, src)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestMoveFile_Rename(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, moveFile(src, dst, true))
	assert.FileExists(t, dst)
	assert.NoFileExists(t, src)
}

func TestMoveDir_CopyDelete(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "f"), []byte("x"), 0644))
	require.NoError(t, os.Symlink("sub/f", filepath.Join(src, "link")))

	require.NoError(t, moveDir(src, dst, false))

	assert.FileExists(t, filepath.Join(dst, "sub", "f"))
	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "sub/f", target)
	assert.NoDirExists(t, src)
}

func TestCopyFile_CleansUpPartialOnError(t *testing.T) {
	tmp := t.TempDir()
	err := copyFile(filepath.Join(tmp, "missing"), filepath.Join(tmp, "dst"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(tmp, "dst"))
}

func TestSameDevice(t *testing.T) {
	tmp := t.TempDir()
	a := filepath.Join(tmp, "a")
	b := filepath.Join(tmp, "b")
	require.NoError(t, os.Mkdir(a, 0755))
	require.NoError(t, os.Mkdir(b, 0755))

	same, err := sameDevice(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	_, err = sameDevice(a, filepath.Join(tmp, "missing"))
	require.Error(t, err)
}

func TestOwnerUID(t *testing.T) {
	tmp := t.TempDir()

	// nearest existing ancestor of a missing leaf is the temp dir itself
	uid, err := ownerUID(filepath.Join(tmp, "missing", "leaf"))
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), uid)
}

func TestPruneEmptyParents(t *testing.T) {
	tmp := t.TempDir()
	stop := filepath.Join(tmp, "module")
	deep := filepath.Join(stop, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stop, "a", "keep"), []byte("x"), 0644))

	require.NoError(t, PruneEmptyParents(deep, stop))

	// c and b are emptied and removed, a survives because of keep
	assert.NoDirExists(t, filepath.Join(stop, "a", "b"))
	assert.DirExists(t, filepath.Join(stop, "a"))
	assert.DirExists(t, stop)
}

func TestPruneEmptyParents_NeverRemovesStop(t *testing.T) {
	tmp := t.TempDir()
	stop := filepath.Join(tmp, "module")
	require.NoError(t, os.MkdirAll(stop, 0755))

	require.NoError(t, PruneEmptyParents(stop, stop))
	assert.DirExists(t, stop)
}
