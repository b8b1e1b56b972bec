// Package privilege manages the process-wide effective credentials.
//
// configma is expected to be run either as a plain user (in which case no
// elevation is ever possible) or through sudo. When run through sudo the
// process drops its effective uid/gid back to the invoking user at startup
// and re-acquires root only for the duration of individual filesystem
// operations on root-owned paths, through a Guard.
//
// Effective credentials are process-global, so at most one Guard may be
// live at a time. Guards must be acquired immediately before the privileged
// syscall and dropped immediately after.
package privilege

import (
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/logging"
)

// Identity is a resolved system user: the invoking (non-root) user or root.
type Identity struct {
	UID      int
	GID      int
	Username string
	Home     string
}

func identityFromUser(u *user.User) (Identity, error) {
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, errors.Wrapf(err, errors.ErrInternal, "non-numeric uid for user %s", u.Username)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, errors.Wrapf(err, errors.ErrInternal, "non-numeric gid for user %s", u.Username)
	}
	return Identity{UID: uid, GID: gid, Username: u.Username, Home: u.HomeDir}, nil
}

// Detect determines the invoking user and, when the process was started via
// sudo, the root identity. When started as root it immediately drops the
// effective uid/gid to the invoking user; root is then re-acquired only
// through Escalate.
//
// The returned root identity is nil when no elevation is available.
func Detect() (root *Identity, invoker Identity, err error) {
	logger := logging.GetLogger("privilege")

	if os.Geteuid() != 0 {
		cur, err := user.Current()
		if err != nil {
			return nil, Identity{}, errors.Wrap(err, errors.ErrInternal, "failed to look up current user")
		}
		invoker, err := identityFromUser(cur)
		if err != nil {
			return nil, Identity{}, err
		}
		return nil, invoker, nil
	}

	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" || sudoUser == "root" {
		return nil, Identity{}, errors.New(errors.ErrNoPrivilege,
			"configma must be run as a regular user or through sudo, not as root directly")
	}

	u, err := user.Lookup(sudoUser)
	if err != nil {
		return nil, Identity{}, errors.Wrapf(err, errors.ErrNoPrivilege, "failed to look up invoking user %q", sudoUser)
	}
	invoker, err = identityFromUser(u)
	if err != nil {
		return nil, Identity{}, err
	}

	r, err := user.LookupId("0")
	if err != nil {
		return nil, Identity{}, errors.Wrap(err, errors.ErrNoPrivilege, "failed to look up root user")
	}
	rootID, err := identityFromUser(r)
	if err != nil {
		return nil, Identity{}, err
	}

	// Drop effective privileges until an operation needs them. Setregid
	// and Setreuid with a real id of -1 change only the effective id and
	// apply to every thread of the process.
	if err := unix.Setregid(-1, invoker.GID); err != nil {
		return nil, Identity{}, errors.Wrap(err, errors.ErrNoPrivilege, "failed to drop effective gid")
	}
	if err := unix.Setreuid(-1, invoker.UID); err != nil {
		return nil, Identity{}, errors.Wrap(err, errors.ErrNoPrivilege, "failed to drop effective uid")
	}

	logger.Debug().
		Str("invoker", invoker.Username).
		Int("uid", invoker.UID).
		Msg("Dropped effective privileges to invoking user")

	return &rootID, invoker, nil
}

// Guard represents a scoped elevation to root effective credentials.
// Drop restores the invoking user's credentials and must run on every exit
// path; a nil Guard is valid and Drop on it is a no-op, so callers that may
// or may not need elevation can unconditionally defer Drop.
type Guard struct {
	invoker  Identity
	released bool
}

// Escalate raises the effective gid then uid to root. It fails with
// ErrNoPrivilege when the process was not started with a root identity
// available.
func Escalate(root *Identity, invoker Identity) (*Guard, error) {
	if root == nil {
		return nil, errors.New(errors.ErrNoPrivilege,
			"operation requires root privileges; re-run through sudo")
	}

	if err := unix.Setregid(-1, root.GID); err != nil {
		return nil, errors.Wrap(err, errors.ErrNoPrivilege, "failed to raise effective gid")
	}
	if err := unix.Setreuid(-1, root.UID); err != nil {
		// Best effort: do not stay with a raised gid.
		if gerr := unix.Setregid(-1, invoker.GID); gerr != nil {
			logger := logging.GetLogger("privilege")
			logger.Fatal().Err(gerr).Msg("failed to restore effective gid after partial escalation")
		}
		return nil, errors.Wrap(err, errors.ErrNoPrivilege, "failed to raise effective uid")
	}

	return &Guard{invoker: invoker}, nil
}

// Drop restores the invoking user's effective uid/gid. Failing to restore
// is fatal: continuing to run with stale root credentials is worse than
// crashing.
func (g *Guard) Drop() {
	if g == nil || g.released {
		return
	}
	g.released = true

	logger := logging.GetLogger("privilege")
	if err := unix.Setreuid(-1, g.invoker.UID); err != nil {
		logger.Fatal().Err(err).Msg("could not drop effective uid")
	}
	if err := unix.Setregid(-1, g.invoker.GID); err != nil {
		logger.Fatal().Err(err).Msg("could not drop effective gid")
	}
}
