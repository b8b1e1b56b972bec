package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/errors"
	"github.com/configma/configma/pkg/profile"
	"github.com/configma/configma/pkg/status"
)

// loadProfile reads the active-profile record and builds the Profile for
// this run. switchTo overrides the required profile name (used by
// switch-profile); everywhere else the active profile's own declaration is
// the required one.
func loadProfile(ctx *config.Ctx, switchTo string) (*profile.Profile, error) {
	var active config.ProfileDesc
	if ctx.HasActiveProfile() {
		var err error
		active, err = ctx.ReadActiveProfile()
		if err != nil {
			return nil, err
		}
	} else {
		if switchTo == "" {
			return nil, errors.New(errors.ErrNoActiveProfile, "no active profile; set one with switch-profile")
		}
		// Bootstrapping: nothing is linked yet, start from an empty
		// active list.
		active = config.ProfileDesc{Name: switchTo}
	}

	name := active.Name
	if switchTo != "" {
		name = switchTo
	}
	required, err := ctx.Conf.Profile(name)
	if err != nil {
		return nil, err
	}

	if def := ctx.Conf.DefaultModule; def != "" {
		found := false
		for _, m := range required.Modules {
			if m == def {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Newf(errors.ErrConfigLoad,
				"profile %q must contain the default module %q", required.Name, def)
		}
	}

	return profile.New(active, required, ctx)
}

// moduleFlagOrDefault resolves the module a path-level command acts on.
func moduleFlagOrDefault(ctx *config.Ctx, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if ctx.Conf.DefaultModule != "" {
		return ctx.Conf.DefaultModule, nil
	}
	return "", errors.New(errors.ErrInvalidInput,
		"no module specified; set default_module in the configuration or use --module")
}

func newAddCmd() *cobra.Command {
	var moduleName string

	cmd := &cobra.Command{
		Use:   "add PATH...",
		Short: "Move paths into the repository and symlink them back",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newRunContext()
			if err != nil {
				return err
			}
			prof, err := loadProfile(ctx, "")
			if err != nil {
				return err
			}
			name, err := moduleFlagOrDefault(ctx, moduleName)
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := prof.Add(path, ctx, name); err != nil {
					return err
				}
				pterm.Success.Printfln("added %s to module %s", path, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&moduleName, "module", "m", "", "Module to add the paths to")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var (
		moduleName  string
		fromActive  bool
		fromDefault bool
	)

	cmd := &cobra.Command{
		Use:   "remove PATH...",
		Short: "Restore paths from the repository to their original location",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newRunContext()
			if err != nil {
				return err
			}
			prof, err := loadProfile(ctx, "")
			if err != nil {
				return err
			}
			for _, path := range args {
				switch {
				case fromActive:
					err = prof.RemoveFromActive(path, ctx)
				case fromDefault:
					var name string
					name, err = moduleFlagOrDefault(ctx, "")
					if err == nil {
						err = prof.Remove(path, ctx, name)
					}
				default:
					err = prof.Remove(path, ctx, moduleName)
				}
				if err != nil {
					return err
				}
				pterm.Success.Printfln("restored %s", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&moduleName, "module", "m", "", "Module to remove the paths from")
	cmd.Flags().BoolVarP(&fromActive, "active", "a", false, "Remove from the highest-precedence active module containing the path")
	cmd.Flags().BoolVarP(&fromDefault, "default", "d", false, "Remove from the default module")
	cmd.MarkFlagsMutuallyExclusive("module", "active", "default")
	cmd.MarkFlagsOneRequired("module", "active", "default")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the filesystem with the active profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newRunContext()
			if err != nil {
				return err
			}
			prof, err := loadProfile(ctx, "")
			if err != nil {
				return err
			}
			if err := prof.Validate(); err != nil {
				return err
			}
			if err := prof.Sync(force, ctx); err != nil {
				return err
			}
			pterm.Success.Printfln("profile %s is in sync", prof.Required.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Displace conflicting files into the dump directory")
	return cmd
}

func newNewProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-profile NAME",
		Short: "Create a profile and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx, err := newRunContext()
			if err != nil {
				return err
			}
			if ctx.HasActiveProfile() {
				return errors.New(errors.ErrInvalidInput,
					"a profile is already active; use switch-profile instead")
			}
			if err := os.MkdirAll(filepath.Join(ctx.CanonRepo, name), 0755); err != nil {
				return errors.Wrapf(err, errors.ErrDirCreate, "failed to create module directory for %s", name)
			}
			if err := ctx.WriteActiveProfile(config.ProfileDesc{Name: name}); err != nil {
				return err
			}
			pterm.Success.Printfln("profile %s is now active; declare it in %s and run sync",
				name, filepath.Join(ctx.ConfigDir, config.ConfigFileName))
			return nil
		},
	}
}

func newSwitchProfileCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "switch-profile NAME",
		Short: "Switch to a different profile and synchronize",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newRunContext()
			if err != nil {
				return err
			}
			prof, err := loadProfile(ctx, args[0])
			if err != nil {
				return err
			}
			if err := prof.Validate(); err != nil {
				return err
			}
			if err := prof.Sync(force, ctx); err != nil {
				return err
			}
			pterm.Success.Printfln("switched to profile %s", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Displace conflicting files into the dump directory")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active profile, its modules and their link state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newRunContext()
			if err != nil {
				return err
			}
			prof, err := loadProfile(ctx, "")
			if err != nil {
				return err
			}
			fmt.Print(status.Render(prof, ctx))
			return nil
		},
	}
}
