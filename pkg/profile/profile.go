// Package profile drives precedence-aware synchronization across an
// ordered collection of modules.
//
// Profiles order modules by name; later entries in the list take precedence
// over earlier ones when both claim the same relative key. Synchronization
// walks the list in reverse so the highest-precedence claimant of each
// real-world path wins without a separate conflict-resolution pass.
package profile

import (
	"os"
	"path/filepath"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/entry"
	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/logging"
	"github.com/configma/configma/pkg/module"
	"github.com/configma/configma/pkg/paths"
)

// Profile is the per-invocation view of every known module plus the
// currently-linked ("active") and desired ("required") module lists.
type Profile struct {
	// Modules holds every module referenced anywhere: discovered under the
	// repository root or declared in configuration with an external path.
	Modules map[string]*module.Module

	// Active is the module list currently reflected by symlinks on disk,
	// read from the state file.
	Active config.ProfileDesc
	// Required is the module list that should be active after this run.
	Required config.ProfileDesc
}

// New discovers modules under the repository root, merges config-declared
// modules and verifies that every name referenced by the active or required
// lists exists.
func New(active, required config.ProfileDesc, ctx *config.Ctx) (*Profile, error) {
	modules := make(map[string]*module.Module)

	ents, err := os.ReadDir(ctx.CanonRepo)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read repository %s", ctx.CanonRepo)
	}
	for _, ent := range ents {
		// dot directories (.git and friends) are repository plumbing,
		// not modules
		if !ent.IsDir() || ent.Name()[0] == '.' {
			continue
		}
		m, err := module.New(ent.Name(), ctx.CanonRepo)
		if err != nil {
			return nil, err
		}
		modules[ent.Name()] = m
	}

	for _, desc := range ctx.Conf.Modules {
		if desc.Path == "" {
			if _, ok := modules[desc.Name]; !ok {
				return nil, errors.Newf(errors.ErrModuleNotFound,
					"no module named %q found in the repository", desc.Name)
			}
			continue
		}
		root := paths.ExpandTilde(desc.Path, ctx.CanonHome)
		m, err := module.New(desc.Name, root)
		if err != nil {
			return nil, err
		}
		modules[desc.Name] = m
	}

	for _, name := range append(append([]string{}, active.Modules...), required.Modules...) {
		if _, ok := modules[name]; !ok {
			return nil, errors.Newf(errors.ErrModuleNotFound, "profile references unknown module %q", name)
		}
	}

	return &Profile{Modules: modules, Active: active, Required: required}, nil
}

// precedence returns the index of a module name in the required list, or -1
// when absent. Higher index means higher precedence.
func (p *Profile) precedence(name string) int {
	for i, n := range p.Required.Modules {
		if n == name {
			return i
		}
	}
	return -1
}

// Sync reconciles the filesystem with the required module list:
// modules no longer wanted are unlinked, then every required entry gets its
// symlink with the highest-precedence claimant of each path winning. The
// required list is persisted as the new active state only after all moves
// succeeded.
func (p *Profile) Sync(force bool, ctx *config.Ctx) error {
	required := make(map[string]struct{}, len(p.Required.Modules))
	for _, name := range p.Required.Modules {
		required[name] = struct{}{}
	}

	for _, name := range p.Active.Modules {
		if _, ok := required[name]; ok {
			continue
		}
		if err := p.Modules[name].UnlinkAll(force, ctx); err != nil {
			return err
		}
	}

	claimed := make(map[string]struct{})
	for i := len(p.Required.Modules) - 1; i >= 0; i-- {
		m := p.Modules[p.Required.Modules[i]]
		for _, e := range m.Entries(ctx) {
			if _, ok := claimed[e.Src]; ok {
				// a higher-precedence module already synced this path
				continue
			}
			claimed[e.Src] = struct{}{}

			if err := e.EnsureLink(force, ctx); err != nil {
				return err
			}
		}
	}

	return ctx.WriteActiveProfile(p.Required)
}

// Validate fails when one module's stub-managed directory is an ancestor of
// a path claimed by a different module: the directory would shadow the
// other module's entry, an unsupported overlap.
func (p *Profile) Validate() error {
	type owner struct{ moduleName string }
	dirs := make(map[string]owner)

	for _, m := range p.Modules {
		for _, key := range m.Keys() {
			dest := filepath.Join(m.Dir, key.RepoPath())
			info, err := os.Stat(dest)
			if err != nil || !info.IsDir() {
				continue
			}
			dirs[key.RepoPath()] = owner{moduleName: m.Name}
		}
	}

	for _, m := range p.Modules {
		for _, key := range m.Keys() {
			for dir := filepath.Dir(key.RepoPath()); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
				o, ok := dirs[dir]
				if ok && o.moduleName != m.Name {
					return errors.Newf(errors.ErrOverlap,
						"directory %q of module %q contains %q of module %q",
						dir, o.moduleName, key.RepoPath(), m.Name)
				}
			}
		}
	}
	return nil
}

// Add resolves the path against the destination module and performs the
// module-level add, unless a strictly higher-precedence module already
// claims the same key, in which case the addition would be silently
// overridden and is rejected.
func (p *Profile) Add(raw string, ctx *config.Ctx, destName string) error {
	dest, ok := p.Modules[destName]
	if !ok {
		return errors.Newf(errors.ErrModuleNotFound, "no module named %q", destName)
	}

	e, err := dest.ResolveEntry(raw, ctx)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrAlreadyManaged) {
			logger := logging.GetLogger("profile")
			logger.Info().Str("path", raw).Msg("path is already in the repository")
			return nil
		}
		return err
	}

	destPrec := p.precedence(destName)
	for i := len(p.Required.Modules) - 1; i > destPrec; i-- {
		m := p.Modules[p.Required.Modules[i]]
		if m.Contains(m.EntryFromKey(e.Key, ctx)) {
			return errors.Newf(errors.ErrShadowed,
				"%s is already claimed by module %q, which takes precedence over %q",
				e.Key, m.Name, destName)
		}
	}

	return dest.Add(raw, ctx)
}

// Remove removes the path from the named module, then re-links the entry of
// the next-highest claimant, if any.
func (p *Profile) Remove(raw string, ctx *config.Ctx, moduleName string) error {
	m, ok := p.Modules[moduleName]
	if !ok {
		return errors.Newf(errors.ErrModuleNotFound, "no module named %q", moduleName)
	}

	e, err := m.ResolveEntry(raw, ctx)
	if err != nil {
		return err
	}
	if err := m.Remove(raw, ctx); err != nil {
		return err
	}
	return p.relinkRevealed(e.Key, ctx)
}

// RemoveFromActive removes the path from the highest-precedence active
// module that contains it.
func (p *Profile) RemoveFromActive(raw string, ctx *config.Ctx) error {
	for i := len(p.Active.Modules) - 1; i >= 0; i-- {
		m := p.Modules[p.Active.Modules[i]]
		e, err := m.ResolveEntry(raw, ctx)
		if err != nil {
			// a repository-side path inside another module's subtree does
			// not resolve against this one; keep searching
			if errors.IsErrorCode(err, errors.ErrInvalidInput) {
				continue
			}
			return err
		}
		if !m.Contains(e) {
			continue
		}
		if err := m.Remove(raw, ctx); err != nil {
			return err
		}
		return p.relinkRevealed(e.Key, ctx)
	}
	return errors.Newf(errors.ErrNotManaged, "path %q is not managed by any active module", raw)
}

// relinkRevealed links the key's entry from the highest-precedence module
// still claiming it. The just-restored real-world copy is parked in the
// dump directory, so removing an override reveals the next module's version
// without losing the removed content.
func (p *Profile) relinkRevealed(key paths.RelativeKey, ctx *config.Ctx) error {
	for i := len(p.Required.Modules) - 1; i >= 0; i-- {
		m := p.Modules[p.Required.Modules[i]]
		e := m.EntryFromKey(key, ctx)
		if !m.Contains(e) {
			continue
		}
		logger := logging.GetLogger("profile")
		logger.Info().
			Str("path", key.String()).
			Str("module", m.Name).
			Msg("re-linking revealed entry")
		return e.EnsureLink(true, ctx)
	}
	return nil
}

// AllEntries returns every entry of every known module; used by status
// rendering.
func (p *Profile) AllEntries(ctx *config.Ctx) map[string][]*entry.Entry {
	out := make(map[string][]*entry.Entry, len(p.Modules))
	for name, m := range p.Modules {
		out[name] = m.Entries(ctx)
	}
	return out
}
