package store

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxUserIDLength is the maximum allowed length for caller identifiers.
const MaxUserIDLength = 255

// MaxWorkspaceIDLength matches the VARCHAR(128) workspace columns.
const MaxWorkspaceIDLength = 128

// ErrInvalidWorkspace is returned for empty or malformed workspace identifiers.
var ErrInvalidWorkspace = errors.New("invalid workspace id")

var workspaceIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)

// ValidateUserID checks that a user identifier does not exceed MaxUserIDLength.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}

// ValidateWorkspaceID checks that id is non-empty, bounded and free of path
// separators and whitespace.
func ValidateWorkspaceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidWorkspace)
	}
	if len(id) > MaxWorkspaceIDLength {
		return fmt.Errorf("%w: %d chars (max %d)", ErrInvalidWorkspace, len(id), MaxWorkspaceIDLength)
	}
	if !workspaceIDRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidWorkspace, id)
	}
	return nil
}
