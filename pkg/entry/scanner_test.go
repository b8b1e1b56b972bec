package entry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configma/configma/pkg/entry"
	"github.com/configma/configma/pkg/paths"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestScanEntrySet(t *testing.T) {
	root := t.TempDir()

	write(t, filepath.Join(root, ".bashrc"), "x")
	write(t, filepath.Join(root, ".config", "git", "config"), "x")

	// stub-marked directory: one atomic leaf, contents not decomposed
	write(t, filepath.Join(root, ".config", "nvim", "init.lua"), "x")
	require.NoError(t, os.WriteFile(paths.SiblingStub(filepath.Join(root, ".config", "nvim")), nil, 0644))

	// legacy in-directory marker form
	write(t, filepath.Join(root, ".config", "tmux", "tmux.conf"), "x")
	require.NoError(t, os.WriteFile(paths.LegacyStub(filepath.Join(root, ".config", "tmux")), nil, 0644))

	// symlinks are not manageable, skipped
	require.NoError(t, os.Symlink(filepath.Join(root, ".bashrc"), filepath.Join(root, ".bash_profile")))

	set, err := entry.ScanEntrySet(root)
	require.NoError(t, err)

	assert.Equal(t, map[string]struct{}{
		".bashrc":            {},
		".config/git/config": {},
		".config/nvim":       {},
		".config/tmux":       {},
	}, set)
}

func TestScanEntrySet_DeepNesting(t *testing.T) {
	root := t.TempDir()

	deep := root
	for i := 0; i < 64; i++ {
		deep = filepath.Join(deep, "d")
	}
	write(t, filepath.Join(deep, "leaf"), "x")

	set, err := entry.ScanEntrySet(root)
	require.NoError(t, err)
	require.Len(t, set, 1)
}

func TestScanEntrySet_EmptyRoot(t *testing.T) {
	set, err := entry.ScanEntrySet(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, set)
}
