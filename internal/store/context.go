// Package store holds request-scoped identity shared by the tool surface and
// the storage adapters: which workspace a call targets and who is calling.
package store

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// WorkspaceIDKey is the context key for the target workspace identifier.
	WorkspaceIDKey contextKey = "noteindex_workspace_id"
	// WorkspaceRootKey is the context key for the workspace root directory.
	WorkspaceRootKey contextKey = "noteindex_workspace_root"
	// UserIDKey is the context key for the external caller ID (free-form).
	UserIDKey contextKey = "noteindex_user_id"
	// RunIDKey is the context key for the request correlation UUID.
	RunIDKey contextKey = "noteindex_run_id"
)

// WithWorkspace returns a new context targeting the given workspace.
func WithWorkspace(ctx context.Context, id, root string) context.Context {
	ctx = context.WithValue(ctx, WorkspaceIDKey, id)
	return context.WithValue(ctx, WorkspaceRootKey, root)
}

// WorkspaceFromContext extracts the workspace ID and root. Empty if not set.
func WorkspaceFromContext(ctx context.Context) (id, root string) {
	id, _ = ctx.Value(WorkspaceIDKey).(string)
	root, _ = ctx.Value(WorkspaceRootKey).(string)
	return id, root
}

// WithUserID returns a new context with the given user ID.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// UserIDFromContext extracts the user ID from context. Returns "" if not set.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRunID returns a new context with the given correlation UUID.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunIDFromContext extracts the correlation UUID. Returns uuid.Nil if not set.
func RunIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(RunIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
