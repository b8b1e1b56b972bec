package status_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/privilege"
	"github.com/configma/configma/pkg/profile"
	"github.com/configma/configma/pkg/status"
)

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

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRender(t *testing.T) {
	ctx := newTestCtx(t)
	write(t, filepath.Join(ctx.CanonRepo, "base", "home", ".bashrc"), "x")
	write(t, filepath.Join(ctx.CanonRepo, "extra", "home", ".extra.conf"), "y")

	desc := config.ProfileDesc{Name: "main", Modules: []string{"base"}}
	p, err := profile.New(desc, desc, ctx)
	require.NoError(t, err)
	require.NoError(t, p.Sync(false, ctx))

	out := status.Render(p, ctx)

	assert.Contains(t, out, "profile main")
	assert.Contains(t, out, "base (1 entries)")
	assert.Contains(t, out, "✓ ~/.bashrc")
	assert.Contains(t, out, "available (not in profile)")
	assert.Contains(t, out, "extra")
}

func TestRender_UnlinkedEntryMarkedBroken(t *testing.T) {
	ctx := newTestCtx(t)
	write(t, filepath.Join(ctx.CanonRepo, "base", "home", ".bashrc"), "x")

	desc := config.ProfileDesc{Name: "main", Modules: []string{"base"}}
	p, err := profile.New(desc, desc, ctx)
	require.NoError(t, err)

	out := status.Render(p, ctx)
	assert.Contains(t, out, "✗ ~/.bashrc")
}
