package service

import (
	"context"
	"strings"
	"time"

	"github.com/Tomlord1122/tasklist/internal/domain"
	"github.com/Tomlord1122/tasklist/internal/logger"
	"github.com/Tomlord1122/tasklist/internal/repository"
)

// CreateTodoRequest holds the data needed to create a new todo.
// A nil Priority means "use the configured default".
type CreateTodoRequest struct {
	Title    string `json:"title"`
	Priority *int64 `json:"priority,omitempty"`
}

type IDRequest struct {
	ID int64 `json:"id"`
}

type RenameTodoRequest struct {
	ID       int64  `json:"id"`
	NewTitle string `json:"new_title"`
}

// TodoResponse is the standard representation of a Todo returned by the service.
type TodoResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Priority  int64  `json:"priority"`
	Completed bool   `json:"completed"`
}

type ArchivedTodoResponse struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Priority   int64  `json:"priority"`
	Completed  bool   `json:"completed"`
	CreatedAt  string `json:"created_at"`
	ArchivedAt string `json:"archived_at"`
}

// TodoService defines the operations for managing todos.
type TodoService interface {
	CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error)
	GetTodoByID(ctx context.Context, id int64) (*TodoResponse, error)
	GetAllTodos(ctx context.Context) ([]TodoResponse, error)
	RenameTodo(ctx context.Context, req RenameTodoRequest) (*TodoResponse, error)
	ToggleTodo(ctx context.Context, id int64) (*TodoResponse, error)
	IncreasePriority(ctx context.Context, id int64) (*TodoResponse, error)
	DecreasePriority(ctx context.Context, id int64) (*TodoResponse, error)
	// DeleteTodo returns the number of rows removed (0 or 1).
	DeleteTodo(ctx context.Context, id int64) (int64, error)
	ClearTodos(ctx context.Context) error
	// ArchiveCompleted returns how many todos moved to the archive.
	ArchiveCompleted(ctx context.Context) (int64, error)
	GetArchivedTodos(ctx context.Context) ([]ArchivedTodoResponse, error)
}

// OperationObserver receives the outcome of every repository call.
type OperationObserver interface {
	ObserveOperation(op string, err error)
	ObserveArchived(count int64)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, error) {}
func (noopObserver) ObserveArchived(int64)          {}

type Option func(*todoService)

// WithDefaultPriority sets the priority used when a create request omits it.
func WithDefaultPriority(priority int64) Option {
	return func(s *todoService) { s.defaultPriority = priority }
}

func WithObserver(observer OperationObserver) Option {
	return func(s *todoService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// todoService implements the TodoService interface.
type todoService struct {
	repo            repository.TodoRepository
	defaultPriority int64
	observer        OperationObserver
}

// NewTodoService creates a new instance of todoService.
func NewTodoService(repo repository.TodoRepository, opts ...Option) TodoService {
	s := &todoService{
		repo:     repo,
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func toResponse(todo *domain.Todo) *TodoResponse {
	return &TodoResponse{
		ID:        todo.ID,
		Title:     todo.Title,
		Priority:  todo.Priority,
		Completed: todo.Completed,
	}
}

// observe records the outcome of op and logs storage failures.
func (s *todoService) observe(ctx context.Context, op string, err error, keyvals ...any) {
	s.observer.ObserveOperation(op, err)
	if err != nil && domain.IsStorageError(err) {
		args := append([]any{"op", op, "error", err}, keyvals...)
		logger.FromContext(ctx).Error("Repository operation failed", args...)
	}
}

func validateID(id int64) error {
	if id <= 0 {
		return domain.ErrInvalidID
	}
	return nil
}

func (s *todoService) CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	priority := s.defaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	id, err := s.repo.Save(ctx, title, priority, false)
	s.observe(ctx, "save", err, "title", title)
	if err != nil {
		return nil, err
	}
	return &TodoResponse{ID: id, Title: title, Priority: priority, Completed: false}, nil
}

func (s *todoService) GetTodoByID(ctx context.Context, id int64) (*TodoResponse, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	todo, err := s.repo.FindByID(ctx, id)
	s.observe(ctx, "find", err, "id", id)
	if err != nil {
		return nil, err
	}
	return toResponse(todo), nil
}

func (s *todoService) GetAllTodos(ctx context.Context) ([]TodoResponse, error) {
	todos, err := s.repo.List(ctx)
	s.observe(ctx, "list", err)
	if err != nil {
		return nil, err
	}
	responses := make([]TodoResponse, 0, len(todos))
	for i := range todos {
		responses = append(responses, *toResponse(&todos[i]))
	}
	return responses, nil
}

func (s *todoService) RenameTodo(ctx context.Context, req RenameTodoRequest) (*TodoResponse, error) {
	if err := validateID(req.ID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.NewTitle)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	todo, err := s.repo.Rename(ctx, req.ID, title)
	s.observe(ctx, "rename", err, "id", req.ID)
	if err != nil {
		return nil, err
	}
	return toResponse(todo), nil
}

func (s *todoService) ToggleTodo(ctx context.Context, id int64) (*TodoResponse, error) {
	return s.updateByID(ctx, "toggle_completion", id, s.repo.ToggleCompletion)
}

func (s *todoService) IncreasePriority(ctx context.Context, id int64) (*TodoResponse, error) {
	return s.updateByID(ctx, "increase_priority", id, s.repo.IncreasePriority)
}

func (s *todoService) DecreasePriority(ctx context.Context, id int64) (*TodoResponse, error) {
	return s.updateByID(ctx, "decrease_priority", id, s.repo.DecreasePriority)
}

func (s *todoService) updateByID(
	ctx context.Context,
	op string,
	id int64,
	update func(context.Context, int64) (*domain.Todo, error),
) (*TodoResponse, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	todo, err := update(ctx, id)
	s.observe(ctx, op, err, "id", id)
	if err != nil {
		return nil, err
	}
	return toResponse(todo), nil
}

func (s *todoService) DeleteTodo(ctx context.Context, id int64) (int64, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	affected, err := s.repo.Delete(ctx, id)
	s.observe(ctx, "delete", err, "id", id)
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *todoService) ClearTodos(ctx context.Context) error {
	err := s.repo.ClearAll(ctx)
	s.observe(ctx, "clear_all", err)
	return err
}

func (s *todoService) ArchiveCompleted(ctx context.Context) (int64, error) {
	count, err := s.repo.ArchiveCompleted(ctx)
	s.observe(ctx, "archive_completed", err)
	if err != nil {
		return 0, err
	}
	s.observer.ObserveArchived(count)
	logger.FromContext(ctx).Info("Archived completed todos", "count", count)
	return count, nil
}

func (s *todoService) GetArchivedTodos(ctx context.Context) ([]ArchivedTodoResponse, error) {
	archived, err := s.repo.ListArchived(ctx)
	s.observe(ctx, "list_archived", err)
	if err != nil {
		return nil, err
	}
	responses := make([]ArchivedTodoResponse, 0, len(archived))
	for _, a := range archived {
		responses = append(responses, ArchivedTodoResponse{
			ID:         a.ID,
			Title:      a.Title,
			Priority:   a.Priority,
			Completed:  a.Completed,
			CreatedAt:  a.CreatedAt.Format(time.RFC3339),
			ArchivedAt: a.ArchivedAt.Format(time.RFC3339),
		})
	}
	return responses, nil
}
