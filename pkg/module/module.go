// Package module implements a named group of managed entries stored as one
// subtree of the repository.
//
// The entry-key sets held in memory are a cache rebuilt from a directory
// scan on every invocation. The directory structure is the authoritative
// state; the sets are derived, mutated alongside add/remove, and never
// persisted.
package module

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/entry"
	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/logging"
	"github.com/configma/configma/pkg/paths"
)

// Module owns one repository subtree of managed entries.
type Module struct {
	Name string
	// Dir is the absolute path of the module's repository subtree.
	Dir string

	// HomeEntries and RootEntries are the cached key sets, split by kind.
	// Home keys are relative to the home/ subtree, root keys to Dir.
	HomeEntries map[string]struct{}
	RootEntries map[string]struct{}
}

// New locates the module directory under root, ensures its home/ subtree
// exists and rebuilds the entry-key sets from disk.
func New(name, root string) (*Module, error) {
	logger := logging.GetLogger("module")

	if _, err := os.Stat(root); err != nil {
		return nil, errors.Wrapf(err, errors.ErrModuleNotFound, "module root does not exist: %s", root)
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create module directory %s", dir)
	}

	home := filepath.Join(dir, paths.HomePrefix)
	if _, err := os.Stat(home); os.IsNotExist(err) {
		if err := os.Mkdir(home, 0755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", home)
		}
	}

	homeEntries, err := entry.ScanEntrySet(home)
	if err != nil {
		return nil, err
	}

	rootEntries := make(map[string]struct{})
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", dir)
	}
	for _, ent := range ents {
		if ent.Name() == paths.HomePrefix {
			continue
		}
		p := filepath.Join(dir, ent.Name())
		switch {
		case paths.IsStubName(ent.Name()):
			// marker for a stub-managed top-level directory
		case ent.Type().IsRegular():
			rootEntries[ent.Name()] = struct{}{}
		case ent.IsDir():
			if paths.HasStub(p) {
				rootEntries[ent.Name()] = struct{}{}
				continue
			}
			sub, err := entry.ScanEntrySet(p)
			if err != nil {
				return nil, err
			}
			for rel := range sub {
				rootEntries[filepath.Join(ent.Name(), rel)] = struct{}{}
			}
		default:
			logger.Warn().Str("path", p).Msg("ignoring path of unsupported type")
		}
	}

	return &Module{
		Name:        name,
		Dir:         dir,
		HomeEntries: homeEntries,
		RootEntries: rootEntries,
	}, nil
}

// EntryFromKey builds the entry a stored key denotes.
func (m *Module) EntryFromKey(key paths.RelativeKey, ctx *config.Ctx) *entry.Entry {
	return &entry.Entry{
		Src:  key.SrcPath(ctx.CanonHome),
		Key:  key,
		Dest: filepath.Join(m.Dir, key.RepoPath()),
	}
}

// EntryFromSrc builds an entry from a canonical real-world path. Paths
// inside the repository are rejected with ErrAlreadyManaged.
func (m *Module) EntryFromSrc(src string, ctx *config.Ctx) (*entry.Entry, error) {
	key, err := paths.Classify(src, ctx.CanonHome, ctx.CanonRepo)
	if err != nil {
		return nil, err
	}
	return &entry.Entry{
		Src:  src,
		Key:  key,
		Dest: filepath.Join(m.Dir, key.RepoPath()),
	}, nil
}

// EntryFromDest builds an entry from a repository-side path by stripping
// the module directory and re-deriving the key.
func (m *Module) EntryFromDest(dest string, ctx *config.Ctx) (*entry.Entry, error) {
	if !paths.IsUnder(dest, m.Dir) {
		return nil, errors.Newf(errors.ErrInvalidInput, "path is not inside module %s: %s", m.Name, dest)
	}
	rel, err := filepath.Rel(m.Dir, dest)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", dest)
	}
	key := paths.KeyFromRepoPath(rel)
	return &entry.Entry{
		Src:  key.SrcPath(ctx.CanonHome),
		Key:  key,
		Dest: dest,
	}, nil
}

// ResolveEntry resolves a user-supplied path and builds its entry. The
// repository-side interpretation is tried first, so the same argument works
// whether the user names the real-world file or the in-repository copy.
func (m *Module) ResolveEntry(raw string, ctx *config.Ctx) (*entry.Entry, error) {
	abs, err := paths.Resolve(raw, ctx.CanonHome)
	if err != nil {
		return nil, err
	}
	if paths.IsUnder(abs, ctx.CanonRepo) {
		return m.EntryFromDest(abs, ctx)
	}
	return m.EntryFromSrc(abs, ctx)
}

// Contains reports whether the entry's key is tracked by this module.
func (m *Module) Contains(e *entry.Entry) bool {
	switch e.Key.Kind() {
	case paths.KindHome:
		_, ok := m.HomeEntries[e.Key.Rel()]
		return ok
	default:
		_, ok := m.RootEntries[e.Key.Rel()]
		return ok
	}
}

// Keys returns every tracked key, sorted for deterministic iteration.
func (m *Module) Keys() []paths.RelativeKey {
	keys := make([]paths.RelativeKey, 0, len(m.HomeEntries)+len(m.RootEntries))
	for rel := range m.HomeEntries {
		keys = append(keys, paths.HomeKey(rel))
	}
	for rel := range m.RootEntries {
		keys = append(keys, paths.RootKey(rel))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].RepoPath() < keys[j].RepoPath() })
	return keys
}

// Entries returns the entry for every tracked key.
func (m *Module) Entries(ctx *config.Ctx) []*entry.Entry {
	keys := m.Keys()
	out := make([]*entry.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.EntryFromKey(k, ctx))
	}
	return out
}

// track records a key in the matching cached set.
func (m *Module) track(key paths.RelativeKey) {
	if key.Kind() == paths.KindHome {
		m.HomeEntries[key.Rel()] = struct{}{}
	} else {
		m.RootEntries[key.Rel()] = struct{}{}
	}
}

// untrack drops a key from the matching cached set.
func (m *Module) untrack(key paths.RelativeKey) {
	if key.Kind() == paths.KindHome {
		delete(m.HomeEntries, key.Rel())
	} else {
		delete(m.RootEntries, key.Rel())
	}
}

// Add moves the object at the given path into this module and links it
// back. Paths already inside the repository or already tracked are
// informational no-ops; paths below an already stub-managed directory are
// rejected.
func (m *Module) Add(raw string, ctx *config.Ctx) error {
	logger := logging.GetLogger("module")

	abs, err := paths.Resolve(raw, ctx.CanonHome)
	if err != nil {
		return err
	}
	e, err := m.EntryFromSrc(abs, ctx)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrAlreadyManaged) {
			logger.Info().Str("path", raw).Msg("path is already in the repository")
			return nil
		}
		return err
	}

	if err := m.rejectNestedUnderStub(raw, e); err != nil {
		return err
	}

	if m.Contains(e) {
		logger.Info().Str("path", raw).Str("module", m.Name).Msg("path is already managed")
		return nil
	}

	if err := e.Add(ctx); err != nil {
		return err
	}
	m.track(e.Key)
	return nil
}

// rejectNestedUnderStub fails when any ancestor directory component of the
// entry is itself a stub-managed directory: nesting a new entry under one
// claimed wholesale is unsupported.
func (m *Module) rejectNestedUnderStub(raw string, e *entry.Entry) error {
	repoPath := e.Key.RepoPath()
	parent := filepath.Dir(repoPath)
	if parent == "." {
		return nil
	}

	dir := m.Dir
	for _, comp := range strings.Split(parent, string(filepath.Separator)) {
		dir = filepath.Join(dir, comp)
		if paths.HasStub(dir) {
			return errors.Newf(errors.ErrAlreadyManaged,
				"path %s is inside a directory already managed by configma: %s", raw, dir)
		}
	}
	return nil
}

// Remove restores the object to its real-world location and untracks it.
// Emptied repository parents are pruned up to the module root.
func (m *Module) Remove(raw string, ctx *config.Ctx) error {
	e, err := m.ResolveEntry(raw, ctx)
	if err != nil {
		return err
	}
	if !m.Contains(e) {
		return errors.Newf(errors.ErrNotManaged, "path %q is not managed by module %q", raw, m.Name)
	}

	if err := e.Remove(ctx); err != nil {
		return err
	}
	if err := entry.PruneEmptyParents(filepath.Dir(e.Dest), m.Dir); err != nil {
		return err
	}
	m.untrack(e.Key)
	return nil
}

// Sync ensures a live symlink exists for every tracked entry. Idempotent:
// entries already resolving to their repository copy are untouched.
func (m *Module) Sync(force bool, ctx *config.Ctx) error {
	for _, e := range m.Entries(ctx) {
		if err := e.EnsureLink(force, ctx); err != nil {
			return err
		}
	}
	return nil
}

// UnlinkAll removes the real-world symlink of every tracked entry, but only
// when it is in fact a symlink resolving to the repository copy. Anything
// else is skipped with ignoreNonLinks, or fails the call: a file the user
// has since un-linked and replaced must not be deleted.
func (m *Module) UnlinkAll(ignoreNonLinks bool, ctx *config.Ctx) error {
	logger := logging.GetLogger("module")

	for _, e := range m.Entries(ctx) {
		if !e.LinksToDest() {
			if ignoreNonLinks {
				continue
			}
			return errors.Newf(errors.ErrBadLink,
				"%s is not a symlink into module %q; resolve it manually or sync with --force", e.Src, m.Name)
		}
		logger.Info().Str("src", e.Src).Msg("deleting symlink")
		if err := e.RemoveSrc(ctx); err != nil {
			return err
		}
	}
	return nil
}
