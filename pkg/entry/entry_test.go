package entry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/entry"
	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/paths"
	"github.com/configma/configma/pkg/privilege"
)

// newTestCtx builds a run context rooted in a temp directory: a fake home,
// a repository and a dump directory. No root identity, so every operation
// runs with the test user's credentials.
func newTestCtx(t *testing.T) *config.Ctx {
	t.Helper()

	tmp, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	home := filepath.Join(tmp, "home")
	repo := filepath.Join(tmp, "repo")
	require.NoError(t, os.MkdirAll(home, 0755))
	require.NoError(t, os.MkdirAll(repo, 0755))

	return &config.Ctx{
		Invoker:   privilege.Identity{UID: os.Getuid(), GID: os.Getgid(), Home: home},
		HomeDir:   home,
		CanonHome: home,
		Conf:      &config.Config{Repo: repo},
		ConfigDir: tmp,
		DumpDir:   filepath.Join(tmp, "dumps", "1"),
		StateFile: filepath.Join(tmp, config.StateFileName),
		Repo:      repo,
		CanonRepo: repo,
	}
}

// homeEntry builds the entry for a home-relative key against a module dir.
func homeEntry(ctx *config.Ctx, moduleDir, rel string) *entry.Entry {
	key := paths.HomeKey(rel)
	return &entry.Entry{
		Src:  key.SrcPath(ctx.CanonHome),
		Key:  key,
		Dest: filepath.Join(moduleDir, key.RepoPath()),
	}
}

func unixMkfifo(path string) error {
	return unix.Mkfifo(path, 0644)
}

func moduleDir(t *testing.T, ctx *config.Ctx, name string) string {
	t.Helper()
	dir := filepath.Join(ctx.CanonRepo, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func TestAdd_File(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	e := homeEntry(ctx, mod, ".bashrc")
	write(t, e.Src, "export PATH")

	require.NoError(t, e.Add(ctx))

	content, err := os.ReadFile(e.Dest)
	require.NoError(t, err)
	assert.Equal(t, "export PATH", string(content))

	info, err := os.Lstat(e.Src)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	assert.True(t, e.LinksToDest())
}

func TestAdd_Directory(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "editor")

	e := homeEntry(ctx, mod, ".config/nvim")
	write(t, filepath.Join(e.Src, "init.lua"), "vim.o.number = true")
	write(t, filepath.Join(e.Src, "lua", "keymaps.lua"), "-- maps")

	require.NoError(t, e.Add(ctx))

	// the whole subtree moved, one sibling stub marker created
	assert.FileExists(t, filepath.Join(e.Dest, "init.lua"))
	assert.FileExists(t, filepath.Join(e.Dest, "lua", "keymaps.lua"))
	assert.FileExists(t, paths.SiblingStub(e.Dest))
	assert.True(t, e.LinksToDest())
}

func TestAdd_SymlinkPreserved(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	target := filepath.Join(ctx.CanonHome, "real.conf")
	write(t, target, "content")

	e := homeEntry(ctx, mod, ".link.conf")
	require.NoError(t, os.Symlink(target, e.Src))

	require.NoError(t, e.Add(ctx))

	// the link itself was moved, not followed
	got, err := os.Readlink(e.Dest)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestAdd_UnsupportedType(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	e := homeEntry(ctx, mod, "fifo")
	require.NoError(t, unixMkfifo(e.Src))

	err := e.Add(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsupportedType))
}

func TestRemove_RoundTrip(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	e := homeEntry(ctx, mod, ".bashrc")
	write(t, e.Src, "original content")

	require.NoError(t, e.Add(ctx))
	require.NoError(t, e.Remove(ctx))

	// original file restored, nothing left behind
	info, err := os.Lstat(e.Src)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	content, err := os.ReadFile(e.Src)
	require.NoError(t, err)
	assert.Equal(t, "original content", string(content))

	assert.NoFileExists(t, e.Dest)
}

func TestRemove_DirectoryRoundTrip(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "editor")

	e := homeEntry(ctx, mod, ".config/nvim")
	write(t, filepath.Join(e.Src, "init.lua"), "config")

	require.NoError(t, e.Add(ctx))
	require.NoError(t, e.Remove(ctx))

	content, err := os.ReadFile(filepath.Join(e.Src, "init.lua"))
	require.NoError(t, err)
	assert.Equal(t, "config", string(content))

	assert.NoDirExists(t, e.Dest)
	assert.NoFileExists(t, paths.SiblingStub(e.Dest))
}

func TestDump(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	e := homeEntry(ctx, mod, ".bashrc")
	write(t, e.Dest, "repo copy")
	write(t, e.Src, "conflicting local edit")

	require.NoError(t, e.Dump(ctx))

	// the conflicting file is parked in the dump, content intact
	dumped, err := os.ReadFile(filepath.Join(ctx.DumpDir, "home", ".bashrc"))
	require.NoError(t, err)
	assert.Equal(t, "conflicting local edit", string(dumped))
	assert.True(t, e.LinksToDest())
}

func TestEnsureLink(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	e := homeEntry(ctx, mod, ".profile")
	write(t, e.Dest, "repo copy")

	t.Run("creates_missing_link", func(t *testing.T) {
		require.NoError(t, e.EnsureLink(false, ctx))
		assert.True(t, e.LinksToDest())
	})

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, e.EnsureLink(false, ctx))
		require.NoError(t, e.EnsureLink(false, ctx))
		assert.True(t, e.LinksToDest())
	})

	t.Run("conflict_without_force", func(t *testing.T) {
		require.NoError(t, os.Remove(e.Src))
		write(t, e.Src, "unrelated file")

		err := e.EnsureLink(false, ctx)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrConflict))

		// the unrelated file must be untouched
		content, err := os.ReadFile(e.Src)
		require.NoError(t, err)
		assert.Equal(t, "unrelated file", string(content))
	})

	t.Run("force_dumps_conflict", func(t *testing.T) {
		require.NoError(t, e.EnsureLink(true, ctx))
		assert.True(t, e.LinksToDest())

		dumped, err := os.ReadFile(filepath.Join(ctx.DumpDir, "home", ".profile"))
		require.NoError(t, err)
		assert.Equal(t, "unrelated file", string(dumped))
	})
}

func TestRemoveSrcAndSymlinkToSrc(t *testing.T) {
	ctx := newTestCtx(t)
	mod := moduleDir(t, ctx, "shell")

	e := homeEntry(ctx, mod, ".inputrc")
	write(t, e.Dest, "repo copy")

	require.NoError(t, e.SymlinkToSrc(ctx))
	assert.True(t, e.LinksToDest())

	require.NoError(t, e.RemoveSrc(ctx))
	assert.NoFileExists(t, e.Src)
	// repository contents untouched
	assert.FileExists(t, e.Dest)
}
