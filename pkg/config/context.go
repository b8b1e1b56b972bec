package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"

	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/paths"
	"github.com/configma/configma/pkg/privilege"
)

// Ctx is the run context: everything an operation needs to locate paths and
// acquire privileges. It is built once per invocation and passed by pointer;
// it is never mutated after construction.
type Ctx struct {
	// Invoker is the (non-root) user the tool acts on behalf of.
	Invoker privilege.Identity
	// Root is non-nil only when the process was started through sudo.
	Root *privilege.Identity

	HomeDir   string
	CanonHome string

	Conf      *Config
	ConfigDir string

	// DumpDir is a timestamped scratch directory where forced syncs park
	// displaced files. Created lazily, never read back by the tool.
	DumpDir string

	// StateFile is the active-profile record.
	StateFile string

	Repo      string
	CanonRepo string
}

// DefaultConfigDir returns the configuration directory for the invoking
// user. Under sudo the XDG variables describe root's environment, so the
// invoker's home is used directly in that case.
func DefaultConfigDir(invoker privilege.Identity, sudo bool) string {
	if sudo {
		return filepath.Join(invoker.Home, ".config", "configma")
	}
	return filepath.Join(xdg.ConfigHome, "configma")
}

// NewCtx builds the run context. configDir may be empty, in which case the
// default location is used (and created when absent).
func NewCtx(configDir string, root *privilege.Identity, invoker privilege.Identity) (*Ctx, error) {
	home := invoker.Home

	if configDir == "" {
		configDir = DefaultConfigDir(invoker, root != nil)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create config directory %s", configDir)
		}
	} else {
		expanded := paths.ExpandTilde(configDir, home)
		canon, err := filepath.EvalSymlinks(expanded)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config directory does not resolve: %s", expanded)
		}
		configDir = canon
	}

	conf, err := Load(configDir)
	if err != nil {
		return nil, err
	}

	repo := paths.ExpandTilde(conf.Repo, home)
	canonRepo, err := filepath.EvalSymlinks(repo)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "repository does not resolve: %s", repo)
	}

	canonHome, err := filepath.EvalSymlinks(home)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "home directory does not resolve: %s", home)
	}

	dumpDir := filepath.Join(configDir, "dumps",
		fmt.Sprintf("%d", time.Now().UnixMilli()))

	return &Ctx{
		Invoker:   invoker,
		Root:      root,
		HomeDir:   home,
		CanonHome: canonHome,
		Conf:      conf,
		ConfigDir: configDir,
		DumpDir:   dumpDir,
		StateFile: filepath.Join(configDir, StateFileName),
		Repo:      repo,
		CanonRepo: canonRepo,
	}, nil
}

// Escalate acquires root effective credentials. Callers must Drop the
// returned guard on every exit path.
func (c *Ctx) Escalate() (*privilege.Guard, error) {
	return privilege.Escalate(c.Root, c.Invoker)
}

// HasActiveProfile reports whether an active-profile record exists.
func (c *Ctx) HasActiveProfile() bool {
	_, err := os.Stat(c.StateFile)
	return err == nil
}

// ReadActiveProfile loads the active-profile record.
func (c *Ctx) ReadActiveProfile() (ProfileDesc, error) {
	data, err := os.ReadFile(c.StateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return ProfileDesc{}, errors.New(errors.ErrNoActiveProfile,
				"no active profile; set one with switch-profile")
		}
		return ProfileDesc{}, errors.Wrapf(err, errors.ErrConfigLoad, "failed to read %s", c.StateFile)
	}
	var desc ProfileDesc
	if err := toml.Unmarshal(data, &desc); err != nil {
		return ProfileDesc{}, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse %s", c.StateFile)
	}
	return desc, nil
}

// WriteActiveProfile persists the active-profile record. Written last in a
// sync, after all filesystem moves succeeded.
func (c *Ctx) WriteActiveProfile(desc ProfileDesc) error {
	data, err := toml.Marshal(desc)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to serialize active profile")
	}
	if err := os.WriteFile(c.StateFile, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to write %s", c.StateFile)
	}
	return nil
}
