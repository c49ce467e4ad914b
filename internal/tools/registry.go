package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/noteindex/internal/store"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	rateLimiter *ToolRateLimiter // nil = no rate limiting
	scrubbing   bool             // scrub credentials from output (default true)
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		scrubbing: true,
	}
}

// SetRateLimiter enables per-key tool rate limiting.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = rl
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrubbing = enabled
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Execute runs a tool by name. The rate-limit key is the user id from ctx,
// falling back to the workspace id; calls carrying neither are not limited.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	rl, scrub := r.rateLimiter, r.scrubbing
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	if key := rateLimitKey(ctx); rl != nil && key != "" {
		if err := rl.Allow(key); err != nil {
			slog.Warn("tool rate limited", "tool", name, "key", key)
			return ErrorResult(err.Error())
		}
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	if result == nil {
		result = ErrorResult("tool returned no result: " + name)
	}

	if scrub && result.ForLLM != "" {
		result.ForLLM = ScrubCredentials(result.ForLLM)
	}

	attrs := []any{
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"is_error", result.IsError,
	}
	if runID := store.RunIDFromContext(ctx); runID != uuid.Nil {
		attrs = append(attrs, "run_id", runID.String())
	}
	slog.Debug("tool executed", attrs...)
	return result
}

func rateLimitKey(ctx context.Context) string {
	if uid := store.UserIDFromContext(ctx); uid != "" {
		return "user:" + uid
	}
	if ws, _ := store.WorkspaceFromContext(ctx); ws != "" {
		return "workspace:" + ws
	}
	return ""
}

// Definitions returns tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ToDefinition(tool))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
