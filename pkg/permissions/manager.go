package permissions

import (
	"context"
	"fmt"

	"github.com/quillhub/quillhub/pkg/observability"
)

// Invalidator purges cached authorization decisions. It is implemented
// by the permission cache service; the indirection keeps this package
// free of a dependency on the cache internals.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateDrive(ctx context.Context, driveID string) error
}

// Manager is the sanctioned mutation entry point. Every write goes to
// the store first and then awaits the matching cache invalidation, so a
// read issued after a Manager call in the same process can never observe
// the pre-mutation decision.
type Manager struct {
	store       Store
	invalidator Invalidator
	logger      *observability.Logger
}

// NewManager creates a new permission manager
func NewManager(store Store, invalidator Invalidator, logger *observability.Logger) *Manager {
	return &Manager{
		store:       store,
		invalidator: invalidator,
		logger:      logger,
	}
}

// GrantPagePermission writes a grant and invalidates the grantee's cached decisions
func (m *Manager) GrantPagePermission(ctx context.Context, pageID, userID string, flags PermissionDecision, grantedBy string) error {
	if err := validateIDs(pageID, userID); err != nil {
		return err
	}

	if err := m.store.GrantPagePermission(ctx, pageID, userID, flags, grantedBy); err != nil {
		return fmt.Errorf("grant failed: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"page_id": pageID,
		"user_id": userID,
		"flags":   flags.String(),
	}).Info("page permission granted")

	return m.invalidator.InvalidateUser(ctx, userID)
}

// RevokePagePermission removes a grant and invalidates the user's cached decisions
func (m *Manager) RevokePagePermission(ctx context.Context, pageID, userID string) error {
	if err := validateIDs(pageID, userID); err != nil {
		return err
	}

	if err := m.store.RevokePagePermission(ctx, pageID, userID); err != nil {
		return fmt.Errorf("revoke failed: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"page_id": pageID,
		"user_id": userID,
	}).Info("page permission revoked")

	return m.invalidator.InvalidateUser(ctx, userID)
}

// AddDriveMember adds an explicit member and invalidates their cached decisions
func (m *Manager) AddDriveMember(ctx context.Context, driveID, userID, addedBy string) error {
	if err := validateIDs(driveID, userID); err != nil {
		return err
	}

	if err := m.store.AddDriveMember(ctx, driveID, userID, addedBy); err != nil {
		return fmt.Errorf("add member failed: %w", err)
	}

	return m.invalidator.InvalidateUser(ctx, userID)
}

// RemoveDriveMember removes an explicit member and invalidates their cached decisions
func (m *Manager) RemoveDriveMember(ctx context.Context, driveID, userID string) error {
	if err := validateIDs(driveID, userID); err != nil {
		return err
	}

	if err := m.store.RemoveDriveMember(ctx, driveID, userID); err != nil {
		return fmt.Errorf("remove member failed: %w", err)
	}

	return m.invalidator.InvalidateUser(ctx, userID)
}

// TransferDriveOwnership changes the drive owner. Ownership affects
// every user's derived drive access, so this fans out a drive-scoped
// invalidation rather than a per-user one.
func (m *Manager) TransferDriveOwnership(ctx context.Context, driveID, newOwnerID string) error {
	if err := validateIDs(driveID, newOwnerID); err != nil {
		return err
	}

	if err := m.store.SetDriveOwner(ctx, driveID, newOwnerID); err != nil {
		return fmt.Errorf("ownership transfer failed: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"drive_id": driveID,
		"owner_id": newOwnerID,
	}).Info("drive ownership transferred")

	return m.invalidator.InvalidateDrive(ctx, driveID)
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}
