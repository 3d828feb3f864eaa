package permissions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidID marks identifiers rejected at the API boundary before any
// store or cache tier is touched.
var ErrInvalidID = errors.New("permissions: invalid identifier")

// PermissionDecision is an immutable snapshot of a user's rights on a
// page. A grant or revoke produces a new decision; cached copies are
// never mutated in place.
type PermissionDecision struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanShare  bool `json:"can_share"`
	CanDelete bool `json:"can_delete"`
}

// Any reports whether the decision grants at least one right.
func (d PermissionDecision) Any() bool {
	return d.CanView || d.CanEdit || d.CanShare || d.CanDelete
}

// String returns the granted flags as a comma-separated list for logs.
func (d PermissionDecision) String() string {
	flags := make([]string, 0, 4)
	if d.CanView {
		flags = append(flags, "view")
	}
	if d.CanEdit {
		flags = append(flags, "edit")
	}
	if d.CanShare {
		flags = append(flags, "share")
	}
	if d.CanDelete {
		flags = append(flags, "delete")
	}
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, ",")
}

// Page represents a document inside a drive.
type Page struct {
	ID        string    `json:"id"`
	DriveID   string    `json:"drive_id"`
	Title     string    `json:"title"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Drive represents a shared container of pages.
type Drive struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PagePermission is a stored grant row for a (page, user) pair.
type PagePermission struct {
	ID        string             `json:"id"`
	PageID    string             `json:"page_id"`
	UserID    string             `json:"user_id"`
	Flags     PermissionDecision `json:"flags"`
	GrantedBy string             `json:"granted_by"`
	GrantedAt time.Time          `json:"granted_at"`
}

// ValidateID rejects identifiers that cannot participate in cache keys.
// Keys are colon-delimited, so an embedded colon would let two distinct
// subject/object pairs collide. Glob metacharacters are rejected too:
// invalidation purges keys by pattern, and an ID containing `[ab]` or
// `?` would build a pattern that never matches its own literal key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, ": \t\n*?[]\\") {
		return fmt.Errorf("%w: identifier %q contains a reserved character", ErrInvalidID, id)
	}
	return nil
}
