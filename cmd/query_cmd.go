package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var (
		limit      int
		noSync     bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Hybrid lexical and vector search over the workspace notes",
		Args:  cobra.MinimumNArgs(1),
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
			// A one-shot process exits before a background refresh would
			// land, so bring the index up to date first.
			if !noSync {
				if _, err := a.manager.SyncWorkspace(cmd.Context(), ws, root); err != nil {
					return err
				}
			}
			if limit <= 0 {
				limit = a.cfg.Tools.DefaultLimit
			}

			results, err := a.manager.Search(cmd.Context(), ws, root, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results, true)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default tools.default_limit)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "search the index as is, without syncing first")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func recentCmd() *cobra.Command {
	var (
		limit      int
		noSync     bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the opening chunk of the most recently modified notes",
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
			if !noSync {
				if _, err := a.manager.SyncWorkspace(cmd.Context(), ws, root); err != nil {
					return err
				}
			}
			if limit <= 0 {
				limit = a.cfg.Tools.DefaultLimit
			}

			results, err := a.manager.GetRecentSnippets(cmd.Context(), ws, root, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results, false)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of files (default tools.default_limit)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "read the index as is, without syncing first")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func timelineCmd() *cobra.Command {
	var (
		window     int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show the chunks surrounding a chunk id in line order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if window < 0 {
				window = a.cfg.Tools.TimelineWindow
			}
			results, err := a.manager.GetTimelineContext(cmd.Context(), args[0], window)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results, false)
			return nil
		},
	}
	cmd.Flags().IntVar(&window, "window", -1, "chunks on each side (default tools.timeline_window)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func getCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "get <id...>",
		Short: "Print the full text of chunks by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			details, err := a.manager.GetDetails(cmd.Context(), args)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), details)
			}
			printDetails(cmd.OutOrStdout(), details)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
