package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/noteindex/internal/memory"
	"github.com/nextlevelbuilder/noteindex/internal/store"
)

// Tool names.
const (
	NameNotesSearch   = "notes_search"
	NameNotesRecent   = "notes_recent"
	NameNotesTimeline = "notes_timeline"
	NameNotesGet      = "notes_get"
)

const (
	defaultLimit  = 8
	maxLimit      = 50
	defaultWindow = 2
	maxWindow     = 10
	maxDetailIDs  = 20
)

// NoteIndex is the slice of memory.Manager the tools call.
type NoteIndex interface {
	Search(ctx context.Context, workspaceID, root, query string, limit int) ([]memory.Result, error)
	GetRecentSnippets(ctx context.Context, workspaceID, root string, limit int) ([]memory.Result, error)
	GetTimelineContext(ctx context.Context, id string, window int) ([]memory.Result, error)
	GetDetails(ctx context.Context, ids []string) ([]memory.Detail, error)
}

// NotesOptions configures the notes tools.
type NotesOptions struct {
	DefaultWorkspace string // used when the context carries no workspace
	DefaultRoot      string
	DefaultLimit     int
	DefaultWindow    int
}

type notesBase struct {
	index NoteIndex
	opts  NotesOptions
}

// RegisterNotesTools registers notes_search, notes_recent, notes_timeline
// and notes_get on reg.
func RegisterNotesTools(reg *Registry, index NoteIndex, opts NotesOptions) {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultLimit
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = defaultWindow
	}
	base := notesBase{index: index, opts: opts}
	reg.Register(&NotesSearchTool{base})
	reg.Register(&NotesRecentTool{base})
	reg.Register(&NotesTimelineTool{base})
	reg.Register(&NotesGetTool{base})
}

// workspace resolves the target workspace: context first, then the default.
func (b notesBase) workspace(ctx context.Context) (string, string, error) {
	id, root := store.WorkspaceFromContext(ctx)
	if id == "" {
		id, root = b.opts.DefaultWorkspace, b.opts.DefaultRoot
	}
	if err := store.ValidateWorkspaceID(id); err != nil {
		return "", "", err
	}
	if root == "" {
		return "", "", fmt.Errorf("workspace %q has no root directory", id)
	}
	return id, root, nil
}

// intArg reads a JSON number argument. Values below lo take def; values
// above hi are clamped.
func intArg(args map[string]any, key string, def, lo, hi int) int {
	v := def
	switch n := args[key].(type) {
	case float64:
		v = int(n)
	case int:
		v = n
	case int64:
		v = int(n)
	}
	if v < lo {
		v = def
	}
	if v > hi {
		v = hi
	}
	return v
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// NotesSearchTool runs hybrid search over the workspace notes.
type NotesSearchTool struct{ notesBase }

func (t *NotesSearchTool) Name() string { return NameNotesSearch }

func (t *NotesSearchTool) Description() string {
	return "Search the workspace notes (MEMORY.md, notes/*.md) for prior context: decisions, people, dates, todos. Returns ranked snippets with ids, paths and line ranges. Use notes_get with an id to read the full chunk."
}

func (t *NotesSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query. Use the same language as the notes.",
			},
			"limit": map[string]any{
				"type":        "number",
				"description": fmt.Sprintf("Maximum results (default %d, max %d)", t.opts.DefaultLimit, maxLimit),
			},
		},
		"required": []string{"query"},
	}
}

func (t *NotesSearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("query parameter is required")
	}
	ws, root, err := t.workspace(ctx)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	results, err := t.index.Search(ctx, ws, root, query, intArg(args, "limit", t.opts.DefaultLimit, 1, maxLimit))
	if err != nil {
		return ErrorResult(fmt.Sprintf("notes search failed: %v", err)).WithError(err)
	}
	if len(results) == 0 {
		return NewResult("No notes found for query: " + query)
	}
	return JSONResult(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// NotesRecentTool lists the most recently modified notes.
type NotesRecentTool struct{ notesBase }

func (t *NotesRecentTool) Name() string { return NameNotesRecent }

func (t *NotesRecentTool) Description() string {
	return "List the opening snippet of the most recently modified workspace notes."
}

func (t *NotesRecentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "number",
				"description": fmt.Sprintf("Number of files (default %d, max %d)", t.opts.DefaultLimit, maxLimit),
			},
		},
	}
}

func (t *NotesRecentTool) Execute(ctx context.Context, args map[string]any) *Result {
	ws, root, err := t.workspace(ctx)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	results, err := t.index.GetRecentSnippets(ctx, ws, root, intArg(args, "limit", t.opts.DefaultLimit, 1, maxLimit))
	if err != nil {
		return ErrorResult(fmt.Sprintf("recent notes failed: %v", err)).WithError(err)
	}
	if len(results) == 0 {
		return NewResult("No notes indexed yet.")
	}
	return JSONResult(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// NotesTimelineTool returns the chunks around a search hit.
type NotesTimelineTool struct{ notesBase }

func (t *NotesTimelineTool) Name() string { return NameNotesTimeline }

func (t *NotesTimelineTool) Description() string {
	return "Show the chunks surrounding a note chunk id (from notes_search) in line order."
}

func (t *NotesTimelineTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Chunk id, e.g. md:3f2a...",
			},
			"window": map[string]any{
				"type":        "number",
				"description": fmt.Sprintf("Chunks on each side (default %d, max %d)", t.opts.DefaultWindow, maxWindow),
			},
		},
		"required": []string{"id"},
	}
}

func (t *NotesTimelineTool) Execute(ctx context.Context, args map[string]any) *Result {
	id := stringArg(args, "id")
	if id == "" {
		return ErrorResult("id parameter is required")
	}
	if _, ok := memory.NormalizeID(id); !ok {
		return ErrorResult(fmt.Sprintf("invalid id %q: expected %s<id>", id, memory.IDPrefix))
	}
	results, err := t.index.GetTimelineContext(ctx, id, intArg(args, "window", t.opts.DefaultWindow, 0, maxWindow))
	if err != nil {
		return ErrorResult(fmt.Sprintf("timeline failed: %v", err)).WithError(err)
	}
	if len(results) == 0 {
		return NewResult("No chunk found with id: " + id)
	}
	return JSONResult(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// NotesGetTool returns full chunk text for ids.
type NotesGetTool struct{ notesBase }

func (t *NotesGetTool) Name() string { return NameNotesGet }

func (t *NotesGetTool) Description() string {
	return "Read the full text of note chunks by id. Unknown ids are skipped."
}

func (t *NotesGetTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": fmt.Sprintf("Chunk ids (max %d)", maxDetailIDs),
			},
		},
		"required": []string{"ids"},
	}
}

func (t *NotesGetTool) Execute(ctx context.Context, args map[string]any) *Result {
	var ids []string
	switch v := args["ids"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				ids = append(ids, strings.TrimSpace(s))
			}
		}
	case []string:
		ids = v
	case string:
		if s := strings.TrimSpace(v); s != "" {
			ids = []string{s}
		}
	}
	if len(ids) == 0 {
		return ErrorResult("ids parameter is required")
	}
	if len(ids) > maxDetailIDs {
		ids = ids[:maxDetailIDs]
	}

	details, err := t.index.GetDetails(ctx, ids)
	if err != nil {
		return ErrorResult(fmt.Sprintf("notes get failed: %v", err)).WithError(err)
	}
	if len(details) == 0 {
		return NewResult("No chunks found for the given ids.")
	}
	return JSONResult(map[string]any{
		"chunks": details,
		"count":  len(details),
	})
}
