package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/noteindex/internal/config"
	"github.com/nextlevelbuilder/noteindex/internal/memory"
	"github.com/nextlevelbuilder/noteindex/internal/tokens"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration and index health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runDoctor(ctx context.Context, w io.Writer) {
	fmt.Fprintln(w, "noteindex doctor")
	fmt.Fprintf(w, "  Version:  %s\n", Version)
	fmt.Fprintf(w, "  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Go:       %s\n", runtime.Version())
	fmt.Fprintf(w, "  SQLite:   %s driver\n", memory.SQLiteBuildMode)
	fmt.Fprintln(w)

	cfgPath := resolveConfigPath()
	fmt.Fprintf(w, "  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintln(w, " (NOT FOUND, using defaults)")
	} else {
		fmt.Fprintln(w, " (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(w, "  Config load error: %s\n", err)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Database:")
	fmt.Fprintf(w, "    %-12s %s\n", "Driver:", cfg.Database.Driver)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		fmt.Fprintf(w, "    %-12s %s\n", "DSN:", maskSecret(cfg.Database.PostgresDSN))
	default:
		fmt.Fprintf(w, "    %-12s %s\n", "Path:", cfg.Database.Path)
	}
	checkStore(ctx, w, cfg.Database)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Tokens:")
	est := tokens.NewEstimator(cfg.Memory.TokenEncoding)
	est.Count("warm up")
	if est.Exact() {
		fmt.Fprintf(w, "    %-12s %s (exact)\n", "Encoding:", cfg.Memory.TokenEncoding)
	} else {
		fmt.Fprintf(w, "    %-12s approximate (chars/4)\n", "Encoding:")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Workspaces:")
	if len(cfg.Workspaces) == 0 {
		fmt.Fprintln(w, "    (none configured, pass --root)")
	}
	for _, ws := range cfg.Workspaces {
		status := "OK"
		if info, err := os.Stat(ws.Root); err != nil {
			status = "NOT FOUND"
		} else if !info.IsDir() {
			status = "NOT A DIRECTORY"
		}
		marker := ""
		if ws.ID == cfg.DefaultWorkspace {
			marker = " (default)"
		}
		fmt.Fprintf(w, "    %-12s %s [%s]%s\n", ws.ID+":", ws.Root, status, marker)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Doctor check complete.")
}

func checkStore(ctx context.Context, w io.Writer, db config.DatabaseConfig) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := openStore(db)
	if err != nil {
		fmt.Fprintf(w, "    %-12s FAILED (%s)\n", "Open:", err)
		return
	}
	defer st.Close()
	fmt.Fprintf(w, "    %-12s OK\n", "Open:")

	if sq, ok := st.(*memory.SQLiteStore); ok {
		fts := "unavailable (substring fallback)"
		if sq.FTSAvailable() {
			fts = "available"
		}
		fmt.Fprintf(w, "    %-12s %s\n", "FTS5:", fts)
	}
	if _, err := st.ChunkSignature(ctx, config.DefaultWorkspaceID); err != nil {
		fmt.Fprintf(w, "    %-12s FAILED (%s)\n", "Query:", err)
	}
}
