package entry

import (
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/paths"
)

// sameDevice reports whether two existing paths live on the same filesystem
// device, which decides between rename and copy+delete for moves.
func sameDevice(a, b string) (bool, error) {
	var sa, sb unix.Stat_t
	if err := unix.Stat(a, &sa); err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", a)
	}
	if err := unix.Stat(b, &sb); err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", b)
	}
	return sa.Dev == sb.Dev, nil
}

// ownerUID returns the owning uid of the nearest existing ancestor of path,
// starting at its parent. Privilege need can change between operations when
// intermediate directories appear, so callers re-evaluate this every time.
func ownerUID(path string) (int, error) {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		var st unix.Stat_t
		err := unix.Stat(dir, &st)
		if err == nil {
			return int(st.Uid), nil
		}
		if !os.IsNotExist(err) {
			return 0, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", dir)
		}
		if dir == filepath.Dir(dir) {
			return 0, errors.Newf(errors.ErrParentMissing, "no existing ancestor for %s", path)
		}
	}
}

// copyFile copies a regular file preserving its permission bits. A partial
// destination left behind by a failed copy is removed before returning.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to copy %s to %s", src, dst)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to flush %s", dst)
	}
	return nil
}

// copyTree copies the contents of a directory tree. Symlinks are copied as
// links, never followed. A failed copy removes the partial destination.
func copyTree(src, dst string) error {
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode().IsRegular():
			return copyFile(path, target)
		default:
			return errors.Newf(errors.ErrUnsupportedType, "cannot handle this type of file: %s", path)
		}
	})
	if err != nil {
		_ = os.RemoveAll(dst)
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to copy %s to %s", src, dst)
	}
	return nil
}

// moveFile relocates a regular file: rename on the same device, otherwise
// copy then delete. The original is never deleted before the copy is
// verified present and complete.
func moveFile(src, dst string, sameDev bool) error {
	if sameDev {
		if err := os.Rename(src, dst); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to move %s to %s", src, dst)
		}
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := verifyCopy(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "copied but failed to delete original %s", src)
	}
	return nil
}

// moveDir relocates a directory tree with the same policy as moveFile.
func moveDir(src, dst string, sameDev bool) error {
	if sameDev {
		if err := os.Rename(src, dst); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to move %s to %s", src, dst)
		}
		return nil
	}

	if err := copyTree(src, dst); err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err != nil {
		return errors.Wrapf(err, errors.ErrFileCopy, "copy of %s is not present at %s", src, dst)
	}
	if err := os.RemoveAll(src); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "copied but failed to delete original %s", src)
	}
	return nil
}

// verifyCopy confirms the destination of a file copy exists with the
// expected size before the original may be deleted.
func verifyCopy(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", src)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCopy, "copy of %s is not present at %s", src, dst)
	}
	if srcInfo.Size() != dstInfo.Size() {
		return errors.Newf(errors.ErrFileCopy, "incomplete copy at %s: %d of %d bytes", dst, dstInfo.Size(), srcInfo.Size())
	}
	return nil
}

// chownTree changes ownership of path and everything below it. Symlinks are
// re-owned via lchown and never followed.
func chownTree(path string, uid, gid int) error {
	info, err := os.Lstat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", path)
	}

	if err := os.Lchown(path, uid, gid); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to chown %s", path)
	}
	if !info.IsDir() {
		return nil
	}

	frontier := []string{path}
	for len(frontier) > 0 {
		dir := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		ents, err := os.ReadDir(dir)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", dir)
		}
		for _, ent := range ents {
			p := filepath.Join(dir, ent.Name())
			if err := os.Lchown(p, uid, gid); err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "failed to chown %s", p)
			}
			if ent.IsDir() {
				frontier = append(frontier, p)
			}
		}
	}
	return nil
}

// PruneEmptyParents removes now-empty directories from start walking upward
// until a non-empty directory or stop is reached. Applied as a
// post-condition of every successful remove.
func PruneEmptyParents(start, stop string) error {
	for dir := start; dir != stop && paths.IsUnder(dir, stop); dir = filepath.Dir(dir) {
		ents, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", dir)
		}
		if len(ents) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove empty directory %s", dir)
		}
	}
	return nil
}
