// Package entry implements the physical operations on one managed
// filesystem object: moving it into the repository, restoring it, parking
// conflicting files in the dump directory and maintaining the real-world
// symlink.
//
// Operations are fail-stop: when a step fails partway the entry is left in
// its intermediate state and the error is surfaced. No multi-step rollback
// is attempted.
package entry

import (
	"os"
	"path/filepath"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/logging"
	"github.com/configma/configma/pkg/paths"
	"github.com/configma/configma/pkg/privilege"
)

// Entry is one managed filesystem object. It is computed on demand and
// never persisted.
type Entry struct {
	// Src is the absolute real-world path.
	Src string
	// Key is the canonical relative key.
	Key paths.RelativeKey
	// Dest is the absolute repository-side path:
	// module_dir joined with Key.RepoPath().
	Dest string
}

// NeedsPrivilege reports whether operating on the entry requires root:
// root-relative keys whose nearest existing ancestor is owned by root.
// Home-relative entries never need privilege.
func (e *Entry) NeedsPrivilege() (bool, error) {
	if e.Key.Kind() == paths.KindHome {
		return false, nil
	}
	uid, err := ownerUID(e.Src)
	if err != nil {
		return false, err
	}
	return uid == 0, nil
}

// maybeEscalate acquires root credentials when the entry needs them.
// The returned guard may be nil; Drop on a nil guard is a no-op.
func (e *Entry) maybeEscalate(ctx *config.Ctx) (*privilege.Guard, error) {
	need, err := e.NeedsPrivilege()
	if err != nil || !need {
		return nil, err
	}
	return ctx.Escalate()
}

// Add moves the real-world object into the repository and replaces it with
// a symlink. Symlinks are moved as links (the link itself is preserved,
// never followed). Directories get a sibling stub marker so future scans
// treat the subtree as one atomic entry.
func (e *Entry) Add(ctx *config.Ctx) error {
	logger := logging.GetLogger("entry")
	logger.Info().Str("src", e.Src).Str("dest", e.Dest).Msg("moving path into repository")

	if err := os.MkdirAll(filepath.Dir(e.Dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(e.Dest))
	}
	sameDev, err := sameDevice(filepath.Dir(e.Src), filepath.Dir(e.Dest))
	if err != nil {
		return err
	}

	guard, err := e.maybeEscalate(ctx)
	if err != nil {
		return err
	}
	defer guard.Drop()

	info, err := os.Lstat(e.Src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", e.Src)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(e.Src)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read link %s", e.Src)
		}
		if err := os.Symlink(target, e.Dest); err != nil {
			return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to create %s", e.Dest)
		}
		if err := os.Remove(e.Src); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove %s", e.Src)
		}
	case info.Mode().IsRegular():
		if err := moveFile(e.Src, e.Dest, sameDev); err != nil {
			return err
		}
	case info.IsDir():
		if err := moveDir(e.Src, e.Dest, sameDev); err != nil {
			return err
		}
		stub, err := os.Create(paths.SiblingStub(e.Dest))
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to create stub marker for %s", e.Dest)
		}
		stub.Close()
	default:
		return errors.Newf(errors.ErrUnsupportedType, "cannot handle this type of file: %s", e.Src)
	}

	if guard != nil {
		if err := chownTree(e.Dest, ctx.Invoker.UID, ctx.Invoker.GID); err != nil {
			return err
		}
	}

	if err := os.Symlink(e.Dest, e.Src); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to link %s to %s", e.Src, e.Dest)
	}
	return nil
}

// Remove restores the repository copy to the real world: delete the
// symlink, copy the object back, delete the repository copy and its stub
// marker. Pruning of emptied repository parents is the module's job since
// it owns the module root.
func (e *Entry) Remove(ctx *config.Ctx) error {
	logger := logging.GetLogger("entry")
	logger.Info().Str("src", e.Src).Str("dest", e.Dest).Msg("restoring path from repository")

	sameDev, err := sameDevice(filepath.Dir(e.Src), filepath.Dir(e.Dest))
	if err != nil {
		return err
	}

	guard, err := e.maybeEscalate(ctx)
	if err != nil {
		return err
	}
	defer guard.Drop()

	if err := os.Remove(e.Src); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove symlink %s", e.Src)
	}

	info, err := os.Stat(e.Dest)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", e.Dest)
	}

	switch {
	case info.IsDir():
		if err := os.Remove(paths.SiblingStub(e.Dest)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove stub marker for %s", e.Dest)
		}
		// Legacy marker form, inside the directory itself.
		if err := os.Remove(paths.LegacyStub(e.Dest)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove stub marker in %s", e.Dest)
		}
		if err := moveDir(e.Dest, e.Src, sameDev); err != nil {
			return err
		}
	case info.Mode().IsRegular():
		if err := moveFile(e.Dest, e.Src, sameDev); err != nil {
			return err
		}
	default:
		return errors.Newf(errors.ErrUnsupportedType, "cannot handle this type of file: %s", e.Dest)
	}

	if guard != nil && ctx.Root != nil {
		if err := chownTree(e.Src, ctx.Root.UID, ctx.Root.GID); err != nil {
			return err
		}
	}
	return nil
}

// Dump relocates whatever occupies Src into the timestamped dump directory
// and then links Src to Dest. Used when a forced sync displaces an
// unexpected conflicting object; the dump is an audit trail, never read
// back.
func (e *Entry) Dump(ctx *config.Ctx) error {
	logger := logging.GetLogger("entry")
	dumpTo := filepath.Join(ctx.DumpDir, e.Key.RepoPath())
	logger.Info().Str("src", e.Src).Str("dump", dumpTo).Msg("moving conflicting path to dump")

	if err := os.MkdirAll(filepath.Dir(dumpTo), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(dumpTo))
	}
	sameDev, err := sameDevice(filepath.Dir(e.Src), filepath.Dir(dumpTo))
	if err != nil {
		return err
	}

	guard, err := e.maybeEscalate(ctx)
	if err != nil {
		return err
	}
	defer guard.Drop()

	info, err := os.Lstat(e.Src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", e.Src)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(e.Src)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read link %s", e.Src)
		}
		if err := os.Symlink(target, dumpTo); err != nil {
			return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to create %s", dumpTo)
		}
		if err := os.Remove(e.Src); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove %s", e.Src)
		}
	case info.Mode().IsRegular():
		if err := moveFile(e.Src, dumpTo, sameDev); err != nil {
			return err
		}
	case info.IsDir():
		if err := moveDir(e.Src, dumpTo, sameDev); err != nil {
			return err
		}
	default:
		return errors.Newf(errors.ErrUnsupportedType, "cannot handle this type of file: %s", e.Src)
	}

	if guard != nil {
		if err := chownTree(dumpTo, ctx.Invoker.UID, ctx.Invoker.GID); err != nil {
			return err
		}
	}

	if err := os.Symlink(e.Dest, e.Src); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to link %s to %s", e.Src, e.Dest)
	}
	return nil
}

// EnsureLink reconciles the real-world location with the repository copy.
// Nothing at Src: create the symlink. Already resolving to Dest: no-op.
// Something else at Src: conflict without force, dump-and-link with force.
func (e *Entry) EnsureLink(force bool, ctx *config.Ctx) error {
	logger := logging.GetLogger("entry")

	guard, err := e.maybeEscalate(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(e.Src), 0755); err != nil {
		guard.Drop()
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(e.Src))
	}
	guard.Drop()

	if _, err := os.Lstat(e.Src); os.IsNotExist(err) {
		logger.Info().Str("src", e.Src).Str("dest", e.Dest).Msg("creating symlink")
		return e.SymlinkToSrc(ctx)
	}

	resolved, err := filepath.EvalSymlinks(e.Src)
	if err == nil && resolved == e.Dest {
		return nil
	}

	if !force {
		return errors.Newf(errors.ErrConflict,
			"there is already a file or directory at %s; use --force to displace it", e.Src)
	}
	return e.Dump(ctx)
}

// LinksToDest reports whether Src is currently a symlink resolving to Dest.
func (e *Entry) LinksToDest() bool {
	info, err := os.Lstat(e.Src)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	resolved, err := filepath.EvalSymlinks(e.Src)
	return err == nil && resolved == e.Dest
}

// SymlinkToSrc creates just the symlink Src -> Dest without touching
// repository contents.
func (e *Entry) SymlinkToSrc(ctx *config.Ctx) error {
	guard, err := e.maybeEscalate(ctx)
	if err != nil {
		return err
	}
	defer guard.Drop()

	if err := os.Symlink(e.Dest, e.Src); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to link %s to %s", e.Src, e.Dest)
	}
	return nil
}

// RemoveSrc deletes just the object at Src without touching repository
// contents.
func (e *Entry) RemoveSrc(ctx *config.Ctx) error {
	guard, err := e.maybeEscalate(ctx)
	if err != nil {
		return err
	}
	defer guard.Drop()

	if err := os.Remove(e.Src); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove %s", e.Src)
	}
	return nil
}
