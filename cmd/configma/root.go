package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/configma/configma/internal/version"
	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/logging"
	"github.com/configma/configma/pkg/privilege"
)

var (
	verbosity int
	configDir string

	rootIdentity    *privilege.Identity
	invokerIdentity privilege.Identity

	rootCmd = &cobra.Command{
		Use:   "configma",
		Short: "A profile-based configuration symlink manager",
		Long: `configma relocates configuration files into a version-controlled
repository organized by modules grouped into profiles, and replaces the
original locations with symlinks. Edit the repository out-of-band (git pull,
manual edits) and re-run sync to reconcile the filesystem.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Custom config directory (default ~/.config/configma)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newNewProfileCmd())
	rootCmd.AddCommand(newSwitchProfileCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDocsCmd())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("configma version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

// newRunContext builds the per-invocation context from the detected
// identities and the --config-dir flag.
func newRunContext() (*config.Ctx, error) {
	return config.NewCtx(configDir, rootIdentity, invokerIdentity)
}
