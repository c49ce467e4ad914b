package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/noteindex/internal/memory"
)

func syncCmd() *cobra.Command {
	var (
		force      bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index new and changed notes in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ws, root, err := a.workspace()
			if err != nil {
				return err
			}
			var opts []memory.SyncOption
			if force {
				opts = append(opts, memory.WithForce())
			}

			start := time.Now()
			stats, err := a.manager.SyncWorkspace(cmd.Context(), ws, root, opts...)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), ws, stats, time.Since(start))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-read every file even if mtime and size are unchanged")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove index entries for files that no longer exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ws, root, err := a.workspace()
			if err != nil {
				return err
			}
			n, err := a.manager.CleanupMissingFiles(cmd.Context(), ws, root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d missing file(s) from %s.\n", n, ws)
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every indexed file and chunk of the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// No root needed: the directory may already be gone.
			ws, err := resolveWorkspaceID(a.cfg, workspaceFlag)
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Clear the index of workspace %q?", ws)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			if err := a.manager.ClearWorkspace(cmd.Context(), ws); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s cleared.\n", ws)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
