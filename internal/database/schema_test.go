package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Tomlord1122/tasklist/internal/database"
	"github.com/Tomlord1122/tasklist/internal/database/dbtest"
	"github.com/Tomlord1122/tasklist/internal/domain"
)

func tableExists(t *testing.T, db *gorm.DB, table string) bool {
	t.Helper()
	var exists bool
	err := db.Raw(
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?)",
		table,
	).Scan(&exists).Error
	require.NoError(t, err)
	return exists
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSchemaAndEstablish(t *testing.T) {
	dsn := dbtest.StartPostgres(t)
	ctx := context.Background()

	svc, err := database.Establish(ctx, database.Config{
		DSN:            dsn,
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	db := svc.GetDB()

	t.Run("Should report a healthy pool", func(t *testing.T) {
		stats := svc.Health(ctx)
		assert.Equal(t, "up", stats["status"])
		assert.Equal(t, "5", stats["max_open_connections"])
	})

	t.Run("Should create both tables on Initialize", func(t *testing.T) {
		require.NoError(t, database.Initialize(ctx, db))
		assert.True(t, tableExists(t, db, "todos"))
		assert.True(t, tableExists(t, db, "archived"))
	})

	t.Run("Should wipe existing rows when Initialize runs again", func(t *testing.T) {
		require.NoError(t, database.Initialize(ctx, db))
		require.NoError(t, db.Create(&domain.Todo{Title: "before reset"}).Error)
		require.NoError(t, db.Create(&domain.ArchivedTodo{Title: "old", Completed: true, CreatedAt: time.Now()}).Error)

		require.NoError(t, database.Initialize(ctx, db))
		assert.Zero(t, countRows(t, db, &domain.Todo{}))
		assert.Zero(t, countRows(t, db, &domain.ArchivedTodo{}))
	})

	t.Run("Should keep existing rows on Ensure", func(t *testing.T) {
		require.NoError(t, database.Initialize(ctx, db))
		require.NoError(t, db.Create(&domain.Todo{Title: "survivor"}).Error)

		require.NoError(t, database.Ensure(ctx, db))
		require.NoError(t, database.Ensure(ctx, db))
		assert.Equal(t, int64(1), countRows(t, db, &domain.Todo{}))
	})

	t.Run("Should recreate a missing table on Ensure", func(t *testing.T) {
		require.NoError(t, database.Initialize(ctx, db))
		require.NoError(t, db.Migrator().DropTable(&domain.ArchivedTodo{}))
		assert.False(t, tableExists(t, db, "archived"))

		require.NoError(t, database.Ensure(ctx, db))
		assert.True(t, tableExists(t, db, "archived"))
	})

	t.Run("Should assign defaults in the store", func(t *testing.T) {
		require.NoError(t, database.Initialize(ctx, db))
		todo := domain.Todo{Title: "defaults"}
		require.NoError(t, db.Create(&todo).Error)
		assert.Positive(t, todo.ID)

		var stored domain.Todo
		require.NoError(t, db.First(&stored, todo.ID).Error)
		assert.Equal(t, int64(0), stored.Priority)
		assert.False(t, stored.Completed)
		assert.False(t, stored.CreatedAt.IsZero())
	})
}
