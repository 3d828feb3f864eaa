package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()
	dbErr := errors.New("connection reset by peer")

	t.Run("GetPagePermission", func(t *testing.T) {
		mock.ExpectQuery("SELECT can_view").WillReturnError(dbErr)

		d, err := store.GetPagePermission(ctx, "user-1", "page-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Nil(t, d)
	})

	t.Run("GetPagePermissionsBatch", func(t *testing.T) {
		mock.ExpectQuery("SELECT page_id").WillReturnError(dbErr)

		result, err := store.GetPagePermissionsBatch(ctx, "user-1", []string{"page-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Nil(t, result)
	})

	t.Run("GetDriveAccess", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(dbErr)

		allowed, err := store.GetDriveAccess(ctx, "user-1", "drive-1")
		require.Error(t, err)
		assert.False(t, allowed, "an error must never report access")
	})

	t.Run("ListDrivePages", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM pages").WillReturnError(dbErr)

		pages, err := store.ListDrivePages(ctx, "drive-1")
		require.Error(t, err)
		assert.Nil(t, pages)
	})

	t.Run("GrantPagePermission", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO page_permissions").WillReturnError(dbErr)

		err := store.GrantPagePermission(ctx, "page-1", "user-1", PermissionDecision{CanView: true}, "owner-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BatchScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"page_id", "can_view", "can_edit", "can_share", "can_delete"}).
		AddRow("page-1", "not-a-bool", false, false, false)
	mock.ExpectQuery("SELECT page_id").WillReturnRows(rows)

	_, err = store.GetPagePermissionsBatch(context.Background(), "user-1", []string{"page-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan")
}
