package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tomlord1122/tasklist/internal/domain"
)

// archiveCompletedSQL moves every completed todo into the archive. The
// DELETE ... RETURNING feeds the INSERT so the copied set is exactly the
// removed set.
const archiveCompletedSQL = `
WITH moved AS (
	DELETE FROM todos
	WHERE completed
	RETURNING title, priority, completed, created_at
)
INSERT INTO archived (title, priority, completed, created_at, archived_at)
SELECT title, priority, completed, created_at, now()
FROM moved
ORDER BY created_at ASC`

// TodoRepository defines the persistence operations for todos and the archive.
type TodoRepository interface {
	Save(ctx context.Context, title string, priority int64, completed bool) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Todo, error)
	List(ctx context.Context) ([]domain.Todo, error)
	Rename(ctx context.Context, id int64, title string) (*domain.Todo, error)
	ToggleCompletion(ctx context.Context, id int64) (*domain.Todo, error)
	IncreasePriority(ctx context.Context, id int64) (*domain.Todo, error)
	DecreasePriority(ctx context.Context, id int64) (*domain.Todo, error)
	Delete(ctx context.Context, id int64) (int64, error)
	ClearAll(ctx context.Context) error
	ArchiveCompleted(ctx context.Context) (int64, error)
	ListArchived(ctx context.Context) ([]domain.ArchivedTodo, error)
}

// gormTodoRepository implements TodoRepository using GORM
type gormTodoRepository struct {
	db *gorm.DB
}

// NewGormTodoRepository creates a repository over the shared pool.
func NewGormTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

func storageError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrTodoNotFound
	}
	return &domain.StorageError{Op: op, Err: err}
}

// Save inserts a todo and returns the id the store assigned.
func (r *gormTodoRepository) Save(ctx context.Context, title string, priority int64, completed bool) (int64, error) {
	todo := domain.Todo{Title: title, Priority: priority, Completed: completed}
	if err := r.db.WithContext(ctx).Create(&todo).Error; err != nil {
		return 0, storageError("save", err)
	}
	return todo.ID, nil
}

func (r *gormTodoRepository) FindByID(ctx context.Context, id int64) (*domain.Todo, error) {
	var todo domain.Todo
	if err := r.db.WithContext(ctx).First(&todo, id).Error; err != nil {
		return nil, storageError("find", err)
	}
	return &todo, nil
}

// List returns todos by priority, highest first, oldest first within a tier.
func (r *gormTodoRepository) List(ctx context.Context) ([]domain.Todo, error) {
	todos := make([]domain.Todo, 0)
	result := r.db.WithContext(ctx).
		Order("priority DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&todos)
	if result.Error != nil {
		return nil, storageError("list", result.Error)
	}
	return todos, nil
}

func (r *gormTodoRepository) Rename(ctx context.Context, id int64, title string) (*domain.Todo, error) {
	return r.updateReturning(ctx, "rename", id, "title", title)
}

func (r *gormTodoRepository) ToggleCompletion(ctx context.Context, id int64) (*domain.Todo, error) {
	return r.updateReturning(ctx, "toggle_completion", id, "completed", gorm.Expr("NOT completed"))
}

func (r *gormTodoRepository) IncreasePriority(ctx context.Context, id int64) (*domain.Todo, error) {
	return r.updateReturning(ctx, "increase_priority", id, "priority", gorm.Expr("priority + ?", 1))
}

func (r *gormTodoRepository) DecreasePriority(ctx context.Context, id int64) (*domain.Todo, error) {
	return r.updateReturning(ctx, "decrease_priority", id, "priority", gorm.Expr("priority - ?", 1))
}

// updateReturning runs a single-column UPDATE and scans the new row back.
// Zero matched rows yields domain.ErrTodoNotFound.
func (r *gormTodoRepository) updateReturning(ctx context.Context, op string, id int64, column string, value any) (*domain.Todo, error) {
	var todo domain.Todo
	result := r.db.WithContext(ctx).
		Model(&todo).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Update(column, value)
	if result.Error != nil {
		return nil, storageError(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrTodoNotFound
	}
	return &todo, nil
}

// Delete hard-deletes a todo. A missing id is not an error; the caller
// gets zero rows affected.
func (r *gormTodoRepository) Delete(ctx context.Context, id int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Todo{})
	if result.Error != nil {
		return 0, storageError("delete", result.Error)
	}
	return result.RowsAffected, nil
}

// ClearAll empties the active table. The id sequence keeps counting and
// the archive is untouched.
func (r *gormTodoRepository) ClearAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("TRUNCATE TABLE todos").Error; err != nil {
		return storageError("clear_all", err)
	}
	return nil
}

// ArchiveCompleted moves completed todos to the archive in one transaction
// and returns how many moved.
func (r *gormTodoRepository) ArchiveCompleted(ctx context.Context) (int64, error) {
	var archived int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(archiveCompletedSQL)
		if result.Error != nil {
			return result.Error
		}
		archived = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, storageError("archive_completed", err)
	}
	return archived, nil
}

// ListArchived returns the archive, most recently archived first.
func (r *gormTodoRepository) ListArchived(ctx context.Context) ([]domain.ArchivedTodo, error) {
	archived := make([]domain.ArchivedTodo, 0)
	result := r.db.WithContext(ctx).
		Order("archived_at DESC").
		Order("id DESC").
		Find(&archived)
	if result.Error != nil {
		return nil, storageError("list_archived", result.Error)
	}
	return archived, nil
}
