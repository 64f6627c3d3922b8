package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Tomlord1122/tasklist/internal/domain"
	"github.com/Tomlord1122/tasklist/internal/logger"
)

// schemaModels lists the tables in creation order. Drops run in reverse.
func schemaModels() []any {
	return []any{&domain.Todo{}, &domain.ArchivedTodo{}}
}

// Initialize drops both tables if present and recreates them empty.
// It is destructive: every todo and archived todo is lost.
func Initialize(ctx context.Context, db *gorm.DB) error {
	migrator := db.WithContext(ctx).Migrator()
	models := schemaModels()
	for i := len(models) - 1; i >= 0; i-- {
		if err := migrator.DropTable(models[i]); err != nil {
			return fmt.Errorf("drop table %T: %w", models[i], err)
		}
	}
	if err := migrator.CreateTable(models...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	logger.FromContext(ctx).Info("Database schema initialized", "tables", tableNames(models))
	return nil
}

// Ensure creates any missing table and leaves existing ones untouched.
func Ensure(ctx context.Context, db *gorm.DB) error {
	migrator := db.WithContext(ctx).Migrator()
	var created []string
	for _, model := range schemaModels() {
		if migrator.HasTable(model) {
			continue
		}
		if err := migrator.CreateTable(model); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
		created = append(created, tableNames([]any{model})...)
	}
	logger.FromContext(ctx).Info("Database schema ensured", "created", created)
	return nil
}

func tableNames(models []any) []string {
	names := make([]string, 0, len(models))
	for _, model := range models {
		if tabler, ok := model.(interface{ TableName() string }); ok {
			names = append(names, tabler.TableName())
		}
	}
	return names
}
