package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/noteindex/internal/mcp"
	"github.com/nextlevelbuilder/noteindex/internal/store"
	"github.com/nextlevelbuilder/noteindex/internal/tools"
)

func mcpCmd() *cobra.Command {
	var (
		userID string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the notes tools to an agent over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ws, root, err := a.workspace()
			if err != nil {
				return err
			}
			if _, err := a.manager.SyncWorkspace(ctx, ws, root); err != nil {
				slog.Warn("initial sync failed", "workspace", ws, "error", err)
			}
			if watch {
				if err := a.manager.Watch(ctx, ws, root); err != nil {
					slog.Warn("watch failed", "workspace", ws, "error", err)
				}
			}

			reg := tools.NewRegistry()
			tools.RegisterNotesTools(reg, a.manager, tools.NotesOptions{
				DefaultWorkspace: ws,
				DefaultRoot:      root,
				DefaultLimit:     a.cfg.Tools.DefaultLimit,
				DefaultWindow:    a.cfg.Tools.TimelineWindow,
			})
			reg.SetRateLimiter(tools.NewToolRateLimiter(a.cfg.Tools.RateLimitPerMin))

			srv, err := mcp.NewServer(reg, Version, mcp.WithContextFunc(func(ctx context.Context) context.Context {
				ctx = store.WithWorkspace(ctx, ws, root)
				if userID != "" {
					ctx = store.WithUserID(ctx, userID)
				}
				return store.WithRunID(ctx, uuid.New())
			}))
			if err != nil {
				return err
			}

			slog.Info("mcp server ready", "workspace", ws, "root", root, "tools", reg.Count())
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "caller id used as the rate limit key")
	cmd.Flags().BoolVar(&watch, "watch", true, "re-sync while serving when notes change")
	return cmd
}
