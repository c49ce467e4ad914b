// Package cmd implements the noteindex command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile       string
	workspaceFlag string
	rootFlag      string
	logLevelFlag  string
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "noteindex",
		Short:         "Index workspace notes and search them for agent recall",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.noteindex/config.json5, or $NOTEINDEX_CONFIG)")
	pf.StringVarP(&workspaceFlag, "workspace", "w", "", "workspace id (default from config)")
	pf.StringVar(&rootFlag, "root", "", "workspace root directory (overrides config)")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		syncCmd(),
		searchCmd(),
		recentCmd(),
		timelineCmd(),
		getCmd(),
		cleanupCmd(),
		clearCmd(),
		watchCmd(),
		mcpCmd(),
		migrateCmd(),
		configCmd(),
		doctorCmd(),
		versionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
