// Package paths implements path resolution and classification for configma.
//
// Every managed path is identified by a RelativeKey: a relative path tagged
// as either home-relative (rooted at the user's home directory, stored under
// the module's home/ subtree) or root-relative (rooted at /, stored directly
// under the module directory). The key determines both the real-world mount
// point of an entry and its repository-side location.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/configma/configma/pkg/errors"
)

const (
	// HomePrefix is the repository-side subdirectory for home-relative keys.
	HomePrefix = "home"

	// StubSuffix marks a directory as one atomically managed entry.
	// Current form: a zero-byte sibling file ".<dirname>" + StubSuffix.
	// Legacy form: a zero-byte StubSuffix file inside the directory.
	StubSuffix = ".configma.stub"
)

// Kind tags a RelativeKey as home-relative or root-relative.
type Kind int

const (
	KindHome Kind = iota
	KindRoot
)

// RelativeKey is a tagged relative path identifying one managed entry.
// The underlying path is always relative and free of ".." components.
type RelativeKey struct {
	kind Kind
	rel  string
}

// HomeKey builds a home-relative key.
func HomeKey(rel string) RelativeKey {
	return RelativeKey{kind: KindHome, rel: filepath.Clean(rel)}
}

// RootKey builds a root-relative key.
func RootKey(rel string) RelativeKey {
	return RelativeKey{kind: KindRoot, rel: filepath.Clean(rel)}
}

// Kind returns the key's tag.
func (k RelativeKey) Kind() Kind { return k.kind }

// Rel returns the underlying relative path (without the home/ prefix).
func (k RelativeKey) Rel() string { return k.rel }

// RepoPath returns the path of the entry relative to its module directory:
// home-relative keys live under the home/ subtree.
func (k RelativeKey) RepoPath() string {
	if k.kind == KindHome {
		return filepath.Join(HomePrefix, k.rel)
	}
	return k.rel
}

// SrcPath returns the absolute real-world path the key denotes.
func (k RelativeKey) SrcPath(canonHome string) string {
	if k.kind == KindHome {
		return filepath.Join(canonHome, k.rel)
	}
	return string(filepath.Separator) + k.rel
}

func (k RelativeKey) String() string {
	if k.kind == KindHome {
		return "~/" + k.rel
	}
	return "/" + k.rel
}

// KeyFromRepoPath re-derives a key from a module-relative repository path,
// detecting the home/ first component.
func KeyFromRepoPath(rel string) RelativeKey {
	rel = filepath.Clean(rel)
	if rel == HomePrefix {
		return HomeKey(".")
	}
	if strings.HasPrefix(rel, HomePrefix+string(filepath.Separator)) {
		return HomeKey(strings.TrimPrefix(rel, HomePrefix+string(filepath.Separator)))
	}
	return RootKey(rel)
}

// ExpandTilde expands a leading ~ against the given home directory.
func ExpandTilde(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Resolve canonicalizes a user-supplied path. The leaf itself may not exist
// yet, so the parent directory is resolved (symlinks and all) and the file
// name re-joined. Fails with ErrParentMissing when the parent does not
// resolve.
func Resolve(raw, home string) (string, error) {
	expanded := ExpandTilde(raw, home)

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrParentMissing, "failed to absolutize %q", raw)
	}

	parent := filepath.Dir(abs)
	canonParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrParentMissing, "no such directory: %s", parent)
		}
		return "", errors.Wrapf(err, errors.ErrParentMissing, "failed to resolve %s", parent)
	}

	return filepath.Join(canonParent, filepath.Base(abs)), nil
}

// IsUnder reports whether path lies within root (or is root itself).
// Both paths must already be absolute and canonical.
func IsUnder(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// Classify maps a canonical absolute path to its RelativeKey. Paths inside
// the repository are not valid sources and yield ErrAlreadyManaged.
func Classify(abs, canonHome, canonRepo string) (RelativeKey, error) {
	if IsUnder(abs, canonRepo) {
		return RelativeKey{}, errors.Newf(errors.ErrAlreadyManaged, "path is inside the repository: %s", abs)
	}
	if IsUnder(abs, canonHome) {
		rel, err := filepath.Rel(canonHome, abs)
		if err != nil {
			return RelativeKey{}, errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", abs)
		}
		return HomeKey(rel), nil
	}
	if !filepath.IsAbs(abs) {
		return RelativeKey{}, errors.Newf(errors.ErrNotAbsolute, "path must be absolute: %s", abs)
	}
	return RootKey(strings.TrimPrefix(abs, string(filepath.Separator))), nil
}

// SiblingStub returns the path of the sibling marker file for dir.
func SiblingStub(dir string) string {
	return filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+StubSuffix)
}

// LegacyStub returns the path of the in-directory marker file for dir.
func LegacyStub(dir string) string {
	return filepath.Join(dir, StubSuffix)
}

// IsStubName reports whether a file name is a stub marker (either form).
// Any file whose name ends in StubSuffix is treated as a marker and never
// becomes an entry, whatever created it.
func IsStubName(name string) bool {
	return strings.HasSuffix(name, StubSuffix)
}

// HasStub reports whether dir is marked as one atomically managed entry.
func HasStub(dir string) bool {
	if _, err := os.Lstat(SiblingStub(dir)); err == nil {
		return true
	}
	if _, err := os.Lstat(LegacyStub(dir)); err == nil {
		return true
	}
	return false
}
