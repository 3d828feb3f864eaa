package permcache

import (
	"fmt"
	"strings"

	"github.com/quillhub/quillhub/pkg/permissions"
)

// Cache keys are colon-delimited and deterministic:
//
//	perm:page:{userID}:{pageID}
//	perm:drive:{userID}:{driveID}
//
// Determinism is what makes invalidation exact. Identifiers are
// validated against the delimiter and every glob metacharacter
// (* ? [ ] \) before a key is ever built, so a purge pattern can never
// match a foreign entry, and every key a pattern should purge is
// matched literally.
const (
	keyPrefix  = "perm"
	scopePage  = "page"
	scopeDrive = "drive"
)

// PageKey returns the cache key for a (user, page) decision.
func PageKey(userID, pageID string) (string, error) {
	if err := validateKeyIDs(userID, pageID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, scopePage, userID, pageID), nil
}

// DriveKey returns the cache key for a (user, drive) access decision.
func DriveKey(userID, driveID string) (string, error) {
	if err := validateKeyIDs(userID, driveID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, scopeDrive, userID, driveID), nil
}

// UserPatterns returns the glob patterns matching every cached decision
// for one user, across both scopes.
func UserPatterns(userID string) []string {
	return []string{
		fmt.Sprintf("%s:%s:%s:*", keyPrefix, scopePage, userID),
		fmt.Sprintf("%s:%s:%s:*", keyPrefix, scopeDrive, userID),
	}
}

// DrivePatterns returns the glob patterns matching every cached decision
// touching one drive: the drive-access entries of all users, plus the
// page entries for each page the drive contains. The page list is the
// reverse index; key shape alone cannot recover a page's drive.
func DrivePatterns(driveID string, pageIDs []string) []string {
	patterns := make([]string, 0, len(pageIDs)+1)
	patterns = append(patterns, fmt.Sprintf("%s:%s:*:%s", keyPrefix, scopeDrive, driveID))
	for _, pageID := range pageIDs {
		patterns = append(patterns, fmt.Sprintf("%s:%s:*:%s", keyPrefix, scopePage, pageID))
	}
	return patterns
}

// parseKey splits a cache key into its scope, user and object parts.
// Used when walking the in-process tier during invalidation.
func parseKey(key string) (scope, userID, objectID string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != keyPrefix {
		return "", "", "", false
	}
	if parts[1] != scopePage && parts[1] != scopeDrive {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

func validateKeyIDs(ids ...string) error {
	for _, id := range ids {
		if err := permissions.ValidateID(id); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	}
	return nil
}
