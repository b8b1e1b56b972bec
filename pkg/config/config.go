// Package config loads the user-editable configma configuration and holds
// the per-invocation run context (Ctx).
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/configma/configma/pkg/errors"
)

// ConfigFileName is the user-editable configuration file inside the config
// directory.
const ConfigFileName = "config.toml"

// StateFileName records the currently active profile and its module list.
// It is the only mutable state configma persists itself.
const StateFileName = "profile.active.toml"

// Config is the user-editable configuration.
type Config struct {
	// Repo is the path to the version-controlled repository holding the
	// module directories. Supports ~ expansion.
	Repo string `toml:"repo"`

	// DefaultModule, when set, is the module used by add/remove when no
	// module is named explicitly. Active profiles must contain it.
	DefaultModule string `toml:"default_module,omitempty"`

	Profiles []ProfileDesc `toml:"profiles"`
	Modules  []ModuleDesc  `toml:"modules"`
}

// ProfileDesc names a profile and its ordered module list. Later modules in
// the list take precedence over earlier ones.
type ProfileDesc struct {
	Name    string   `toml:"name"`
	Modules []string `toml:"modules"`
}

// ModuleDesc declares a module. Path is only set for modules living outside
// the repository; it names the directory that contains the module directory.
type ModuleDesc struct {
	Name string `toml:"name"`
	Path string `toml:"path,omitempty"`
}

// Profile returns the declared profile with the given name.
func (c *Config) Profile(name string) (ProfileDesc, error) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return ProfileDesc{}, errors.Newf(errors.ErrProfileNotFound, "profile %q not found in configuration", name)
}

// Load reads and parses the configuration file in configDir.
func Load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrConfigLoad,
				"no configuration found; create a repository and point %s at it", path)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to read %s", path)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse %s", path)
	}
	if cfg.Repo == "" {
		return nil, errors.Newf(errors.ErrConfigLoad, "missing required key 'repo' in %s", path)
	}
	return &cfg, nil
}
