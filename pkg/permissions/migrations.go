package permissions

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all permission schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create drives table",
			SQL: `
				CREATE TABLE IF NOT EXISTS drives (
					id VARCHAR(255) PRIMARY KEY,
					owner_id VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_drives_owner_id ON drives(owner_id);
			`,
		},
		{
			Version:     2,
			Description: "Create pages table",
			SQL: `
				CREATE TABLE IF NOT EXISTS pages (
					id VARCHAR(255) PRIMARY KEY,
					drive_id VARCHAR(255) NOT NULL REFERENCES drives(id) ON DELETE CASCADE,
					title VARCHAR(1024) NOT NULL DEFAULT '',
					created_by VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_pages_drive_id ON pages(drive_id);
			`,
		},
		{
			Version:     3,
			Description: "Create drive_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS drive_members (
					drive_id VARCHAR(255) NOT NULL REFERENCES drives(id) ON DELETE CASCADE,
					user_id VARCHAR(255) NOT NULL,
					added_by VARCHAR(255),
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (drive_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_drive_members_user_id ON drive_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create page_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS page_permissions (
					id VARCHAR(255) PRIMARY KEY,
					page_id VARCHAR(255) NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
					user_id VARCHAR(255) NOT NULL,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_share BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					granted_by VARCHAR(255),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE (page_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_page_permissions_user_id ON page_permissions(user_id);
				CREATE INDEX IF NOT EXISTS idx_page_permissions_page_id ON page_permissions(page_id);
			`,
		},
	}
}

// RunMigrations applies all permission schema migrations in order
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, migration := range GetMigrations() {
		if _, err := db.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
	}
	return nil
}
