package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/noteindex/internal/config"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep workspaces indexed as notes change",
		Long: "Syncs the selected workspace (or every configured workspace with watch: true) " +
			"and re-syncs whenever a note changes. Config file edits are applied without restarting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			targets, err := watchTargets(a.cfg)
			if err != nil {
				return err
			}
			ws := &watchSet{app: a, active: make(map[string]string)}
			ws.reconcile(ctx, targets)
			if len(ws.active) == 0 {
				return fmt.Errorf("no workspace could be watched")
			}

			if cw, err := config.NewWatcher(resolveConfigPath()); err != nil {
				slog.Warn("config hot reload disabled", "error", err)
			} else {
				cw.OnChange(func(next *config.Config) {
					a.cfg.ReplaceFrom(next)
					if logLevelFlag == "" {
						logLevel.Set(parseLevel(next.Log.Level))
					}
					// Only re-plan when watching config workspaces; a --workspace
					// or --root selection stays fixed.
					if workspaceFlag == "" && rootFlag == "" {
						if t, err := watchTargets(a.cfg); err == nil {
							ws.reconcile(ctx, t)
						}
					}
				})
				if err := cw.Start(); err != nil {
					slog.Warn("config hot reload disabled", "error", err)
				} else {
					defer cw.Stop()
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d workspace(s). Press Ctrl+C to stop.\n", len(ws.active))
			<-ctx.Done()
			slog.Info("watch stopping")
			return nil
		},
	}
}

// watchTargets maps workspace id to root. An explicit --workspace or --root
// selects a single workspace.
func watchTargets(cfg *config.Config) (map[string]string, error) {
	if workspaceFlag != "" || rootFlag != "" {
		id, root, err := resolveWorkspace(cfg, workspaceFlag, rootFlag)
		if err != nil {
			return nil, err
		}
		return map[string]string{id: root}, nil
	}

	targets := make(map[string]string)
	for _, w := range cfg.Workspaces {
		if !w.Watch {
			continue
		}
		id, root, err := resolveWorkspace(cfg, w.ID, "")
		if err != nil {
			slog.Warn("skip workspace", "workspace", w.ID, "error", err)
			continue
		}
		targets[id] = root
	}
	if len(targets) == 0 {
		id, root, err := resolveWorkspace(cfg, "", "")
		if err != nil {
			return nil, err
		}
		targets[id] = root
	}
	return targets, nil
}

// watchSet tracks the workspaces being watched.
type watchSet struct {
	app *app

	mu     sync.Mutex
	active map[string]string // id -> root
}

// reconcile stops watchers no longer wanted, then syncs and watches new or
// moved workspaces.
func (s *watchSet) reconcile(ctx context.Context, targets map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, root := range s.active {
		if targets[id] != root {
			s.app.manager.Unwatch(id)
			delete(s.active, id)
			slog.Info("stopped watching", "workspace", id)
		}
	}
	for id, root := range targets {
		if _, ok := s.active[id]; ok {
			continue
		}
		stats, err := s.app.manager.SyncWorkspace(ctx, id, root)
		if err != nil {
			slog.Warn("initial sync failed", "workspace", id, "error", err)
		} else {
			slog.Info("initial sync", "workspace", id, "reindexed", stats.Reindexed, "removed", stats.Removed)
		}
		if err := s.app.manager.Watch(ctx, id, root); err != nil {
			slog.Warn("watch failed", "workspace", id, "root", root, "error", err)
			continue
		}
		s.active[id] = root
		slog.Info("watching", "workspace", id, "root", root)
	}
}
