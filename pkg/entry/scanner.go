package entry

import (
	"os"
	"path/filepath"

	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/logging"
	"github.com/configma/configma/pkg/paths"
)

// ScanEntrySet walks a directory tree and returns the relative paths of its
// terminal managed entries: plain files at any depth, and directories
// carrying a stub marker, which are atomic leaves and not recursed into.
//
// Symlinks are skipped with a warning; a symlink found inside the
// repository is usually a leftover of a previous run, not a manageable
// object. Marker files themselves never appear in the result.
//
// The walk keeps an explicit frontier instead of recursing, so arbitrarily
// deep trees cannot exhaust the stack.
func ScanEntrySet(root string) (map[string]struct{}, error) {
	logger := logging.GetLogger("scanner")
	set := make(map[string]struct{})

	frontier := []string{root}
	for len(frontier) > 0 {
		dir := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		ents, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", dir)
		}

		for _, ent := range ents {
			p := filepath.Join(dir, ent.Name())
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", p)
			}

			switch {
			case paths.IsStubName(ent.Name()):
				// marker files denote entries, they are not entries
			case ent.Type()&os.ModeSymlink != 0:
				logger.Warn().Str("path", p).Msg("ignoring symlink in repository")
			case ent.Type().IsRegular():
				set[rel] = struct{}{}
			case ent.IsDir():
				if paths.HasStub(p) {
					set[rel] = struct{}{}
				} else {
					frontier = append(frontier, p)
				}
			default:
				logger.Warn().Str("path", p).Msg("ignoring path of unsupported type")
			}
		}
	}

	return set, nil
}
