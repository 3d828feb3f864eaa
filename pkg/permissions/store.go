package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is the authoritative source of permission data. Implementations
// are slow but always correct; callers are expected to sit a cache in
// front of reads and to invalidate that cache after every mutation.
type Store interface {
	// GetPagePermission returns the decision for a (user, page) pair, or
	// nil when the store has no record of a grant for that pair.
	GetPagePermission(ctx context.Context, userID, pageID string) (*PermissionDecision, error)

	// GetPagePermissionsBatch resolves many pages for one user in a
	// single query. Pages without a grant row are absent from the result.
	GetPagePermissionsBatch(ctx context.Context, userID string, pageIDs []string) (map[string]*PermissionDecision, error)

	// GetDriveAccess reports whether the user owns the drive, is an
	// explicit member, or holds any page-level permission inside it.
	GetDriveAccess(ctx context.Context, userID, driveID string) (bool, error)

	// ListDrivePages returns the IDs of every page in a drive. Used as
	// the reverse index for drive-scoped cache invalidation.
	ListDrivePages(ctx context.Context, driveID string) ([]string, error)

	// GrantPagePermission upserts a grant row for a (page, user) pair.
	GrantPagePermission(ctx context.Context, pageID, userID string, flags PermissionDecision, grantedBy string) error

	// RevokePagePermission removes the grant row for a (page, user) pair.
	RevokePagePermission(ctx context.Context, pageID, userID string) error

	// AddDriveMember makes the user an explicit member of a drive.
	AddDriveMember(ctx context.Context, driveID, userID, addedBy string) error

	// RemoveDriveMember removes the user's explicit membership.
	RemoveDriveMember(ctx context.Context, driveID, userID string) error

	// SetDriveOwner transfers drive ownership.
	SetDriveOwner(ctx context.Context, driveID, ownerID string) error
}

// PostgresStore implements Store on a relational database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new permission store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetPagePermission returns the decision for a (user, page) pair
func (s *PostgresStore) GetPagePermission(ctx context.Context, userID, pageID string) (*PermissionDecision, error) {
	query := `
		SELECT can_view, can_edit, can_share, can_delete
		FROM page_permissions
		WHERE user_id = $1 AND page_id = $2
	`

	var d PermissionDecision
	err := s.db.QueryRowContext(ctx, query, userID, pageID).Scan(
		&d.CanView,
		&d.CanEdit,
		&d.CanShare,
		&d.CanDelete,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page permission: %w", err)
	}

	return &d, nil
}

// GetPagePermissionsBatch resolves many pages for one user in a single query
func (s *PostgresStore) GetPagePermissionsBatch(ctx context.Context, userID string, pageIDs []string) (map[string]*PermissionDecision, error) {
	if len(pageIDs) == 0 {
		return map[string]*PermissionDecision{}, nil
	}

	query := `
		SELECT page_id, can_view, can_edit, can_share, can_delete
		FROM page_permissions
		WHERE user_id = $1 AND page_id = ANY($2)
	`

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(pageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to batch get page permissions: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*PermissionDecision, len(pageIDs))
	for rows.Next() {
		var pageID string
		var d PermissionDecision
		if err := rows.Scan(&pageID, &d.CanView, &d.CanEdit, &d.CanShare, &d.CanDelete); err != nil {
			return nil, fmt.Errorf("failed to scan page permission: %w", err)
		}
		result[pageID] = &d
	}

	return result, rows.Err()
}

// GetDriveAccess reports whether the user can reach the drive at all
func (s *PostgresStore) GetDriveAccess(ctx context.Context, userID, driveID string) (bool, error) {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM drives WHERE owner_id = $1 AND id = $2)
			OR EXISTS(SELECT 1 FROM drive_members WHERE user_id = $1 AND drive_id = $2)
			OR EXISTS(
				SELECT 1 FROM page_permissions pp
				JOIN pages p ON p.id = pp.page_id
				WHERE pp.user_id = $1 AND p.drive_id = $2
			)
	`

	var allowed bool
	if err := s.db.QueryRowContext(ctx, query, userID, driveID).Scan(&allowed); err != nil {
		return false, fmt.Errorf("failed to get drive access: %w", err)
	}

	return allowed, nil
}

// ListDrivePages returns the IDs of every page in a drive
func (s *PostgresStore) ListDrivePages(ctx context.Context, driveID string) ([]string, error) {
	query := `SELECT id FROM pages WHERE drive_id = $1`

	rows, err := s.db.QueryContext(ctx, query, driveID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drive pages: %w", err)
	}
	defer rows.Close()

	var pageIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan page id: %w", err)
		}
		pageIDs = append(pageIDs, id)
	}

	return pageIDs, rows.Err()
}

// GrantPagePermission upserts a grant row for a (page, user) pair
func (s *PostgresStore) GrantPagePermission(ctx context.Context, pageID, userID string, flags PermissionDecision, grantedBy string) error {
	query := `
		INSERT INTO page_permissions (id, page_id, user_id, can_view, can_edit, can_share, can_delete, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (page_id, user_id)
		DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_edit = EXCLUDED.can_edit,
			can_share = EXCLUDED.can_share,
			can_delete = EXCLUDED.can_delete,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		pageID,
		userID,
		flags.CanView,
		flags.CanEdit,
		flags.CanShare,
		flags.CanDelete,
		grantedBy,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to grant page permission: %w", err)
	}

	return nil
}

// RevokePagePermission removes the grant row for a (page, user) pair
func (s *PostgresStore) RevokePagePermission(ctx context.Context, pageID, userID string) error {
	query := `DELETE FROM page_permissions WHERE page_id = $1 AND user_id = $2`

	if _, err := s.db.ExecContext(ctx, query, pageID, userID); err != nil {
		return fmt.Errorf("failed to revoke page permission: %w", err)
	}

	return nil
}

// AddDriveMember makes the user an explicit member of a drive
func (s *PostgresStore) AddDriveMember(ctx context.Context, driveID, userID, addedBy string) error {
	query := `
		INSERT INTO drive_members (drive_id, user_id, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (drive_id, user_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, driveID, userID, addedBy, time.Now()); err != nil {
		return fmt.Errorf("failed to add drive member: %w", err)
	}

	return nil
}

// RemoveDriveMember removes the user's explicit membership
func (s *PostgresStore) RemoveDriveMember(ctx context.Context, driveID, userID string) error {
	query := `DELETE FROM drive_members WHERE drive_id = $1 AND user_id = $2`

	if _, err := s.db.ExecContext(ctx, query, driveID, userID); err != nil {
		return fmt.Errorf("failed to remove drive member: %w", err)
	}

	return nil
}

// SetDriveOwner transfers drive ownership
func (s *PostgresStore) SetDriveOwner(ctx context.Context, driveID, ownerID string) error {
	query := `UPDATE drives SET owner_id = $1 WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, ownerID, driveID)
	if err != nil {
		return fmt.Errorf("failed to set drive owner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("drive not found: %s", driveID)
	}

	return nil
}
