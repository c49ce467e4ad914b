package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/noteindex/internal/config"
	"github.com/nextlevelbuilder/noteindex/internal/memory"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCellTruncatesByDisplayWidth(t *testing.T) {
	if got := cell("a\n  b\tc", 20); got != "a b c" {
		t.Errorf("cell flatten = %q", got)
	}
	got := cell("日本語のメモです", 8)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("cell wide = %q, want truncated", got)
	}
}

func TestResolveWorkspace(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "note.md")
	os.WriteFile(file, []byte("x"), 0o644)

	cfg := config.Default()
	cfg.Workspaces = []config.WorkspaceConfig{{ID: "notes", Root: dir}}

	id, root, err := resolveWorkspace(cfg, "Notes", "")
	if err != nil || id != "notes" || root != dir {
		t.Fatalf("resolveWorkspace = %q, %q, %v", id, root, err)
	}

	if _, _, err := resolveWorkspace(cfg, "", ""); err == nil {
		t.Error("default workspace without root should fail")
	}
	if _, root, err := resolveWorkspace(cfg, "", dir); err != nil || root != dir {
		t.Errorf("root override = %q, %v", root, err)
	}
	if _, _, err := resolveWorkspace(cfg, "", file); err == nil {
		t.Error("file root should fail")
	}
	if _, _, err := resolveWorkspace(cfg, "", filepath.Join(dir, "missing")); err == nil {
		t.Error("missing root should fail")
	}
}

func TestRedactConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.PostgresDSN = "postgres://user:hunter2@db:5432/notes"
	cfg.Telemetry.Headers = map[string]string{"authorization": "Bearer abcdefghijkl"}

	raw := redactConfig(cfg)
	db := raw["database"].(map[string]any)
	if dsn := db["postgres_dsn"].(string); strings.Contains(dsn, "hunter2") {
		t.Errorf("dsn not masked: %q", dsn)
	}
	headers := raw["telemetry"].(map[string]any)["headers"].(map[string]any)
	if h := headers["authorization"].(string); strings.Contains(h, "abcdefgh") {
		t.Errorf("header not masked: %q", h)
	}
	if db["path"] == "" {
		t.Error("non-secret fields should be kept")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := maskSecret("short"); got != "****" {
		t.Errorf("short = %q", got)
	}
	if got := maskSecret("0123456789"); got != "0123****6789" {
		t.Errorf("long = %q", got)
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, nil, true)
	if !strings.Contains(buf.String(), "No results.") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	printResults(&buf, []memory.Result{{
		ID: "md:abc", Path: "notes/a.md", StartLine: 1, EndLine: 4,
		Snippet: "deploy checklist", Score: 0.5,
	}}, true)
	out := buf.String()
	for _, want := range []string{"SCORE", "0.500", "md:abc", "notes/a.md:1-4", "deploy checklist"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := rootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "noteindex "+Version) {
		t.Errorf("version output = %q", buf.String())
	}
}
