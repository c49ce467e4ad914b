package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/noteindex/internal/config"
	"github.com/nextlevelbuilder/noteindex/internal/memory"
	"github.com/nextlevelbuilder/noteindex/internal/store"
	"github.com/nextlevelbuilder/noteindex/internal/store/pg"
	"github.com/nextlevelbuilder/noteindex/internal/tokens"
	"github.com/nextlevelbuilder/noteindex/internal/tracing/otelexport"
)

func resolveConfigPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	return config.DefaultPath()
}

// loadConfig loads the config file and installs logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

// app is the per-command runtime: config, store, manager and telemetry.
type app struct {
	cfg       *config.Config
	store     memory.Store
	manager   *memory.Manager
	telemetry *otelexport.Exporter
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: st}
	a.telemetry = startTelemetry(ctx, cfg.Telemetry)
	a.manager = memory.NewManager(memoryConfig(cfg.Memory), st)
	return a, nil
}

// Close stops the manager, closes the store and flushes telemetry.
func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		slog.Warn("close store", "error", err)
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}
}

func openStore(db config.DatabaseConfig) (memory.Store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		st, err := pg.Open(db.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		if err := os.MkdirAll(filepath.Dir(db.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		var opts []memory.SQLiteOption
		if db.DisableFTS {
			opts = append(opts, memory.WithoutFTS())
		}
		st, err := memory.NewSQLiteStore(db.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	}
}

func memoryConfig(mc config.MemoryConfig) memory.Config {
	cfg := memory.DefaultConfig()
	if mc.TargetChars > 0 {
		cfg.Chunker = memory.ChunkerConfig{
			TargetChars:  mc.TargetChars,
			MinChars:     mc.MinChars,
			OverlapLines: mc.OverlapLines,
		}
	}
	cfg.Schedule = memory.ScheduleConfig{
		Cooldown:    time.Duration(mc.CooldownMs) * time.Millisecond,
		QuickDelay:  time.Duration(mc.QuickDelayMs) * time.Millisecond,
		ForcedDelay: time.Duration(mc.ForcedDelayMs) * time.Millisecond,
	}
	cfg.Embedder = memory.NewHashEmbedder(mc.EmbeddingDims)
	cfg.Tokens = tokens.NewEstimator(mc.TokenEncoding)
	cfg.CacheSize = mc.CacheSize
	return cfg
}

// workspace resolves the target workspace from flags and config.
func (a *app) workspace() (string, string, error) {
	return resolveWorkspace(a.cfg, workspaceFlag, rootFlag)
}

func resolveWorkspaceID(cfg *config.Config, idFlag string) (string, error) {
	id := cfg.DefaultWorkspace
	if idFlag != "" {
		id = config.NormalizeWorkspaceID(idFlag)
	}
	if err := store.ValidateWorkspaceID(id); err != nil {
		return "", err
	}
	return id, nil
}

func resolveWorkspace(cfg *config.Config, idFlag, rootOverride string) (string, string, error) {
	id, err := resolveWorkspaceID(cfg, idFlag)
	if err != nil {
		return "", "", err
	}

	root := rootOverride
	if root == "" {
		if ws, ok := cfg.Workspace(id); ok {
			root = ws.Root
		}
	}
	if root == "" {
		return "", "", fmt.Errorf("workspace %q has no root: pass --root or add it to %s", id, resolveConfigPath())
	}
	abs, err := filepath.Abs(config.ExpandHome(root))
	if err != nil {
		return "", "", fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return "", "", errors.New("workspace root is not a directory: " + abs)
	}
	return id, abs, nil
}

// startTelemetry installs the OTLP exporter when enabled. Failures only log.
func startTelemetry(ctx context.Context, tc config.TelemetryConfig) *otelexport.Exporter {
	if !tc.Enabled || tc.Endpoint == "" {
		slog.Debug("otel export not enabled (set telemetry.enabled + telemetry.endpoint)")
		return nil
	}
	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint:       tc.Endpoint,
		Protocol:       tc.Protocol,
		Insecure:       tc.Insecure,
		ServiceName:    tc.ServiceName,
		ServiceVersion: Version,
		Headers:        tc.Headers,
	})
	if err != nil {
		slog.Warn("failed to create otel exporter", "error", err)
		return nil
	}
	exp.Install()
	slog.Info("otel export enabled", "endpoint", tc.Endpoint, "protocol", tc.Protocol)
	return exp
}
