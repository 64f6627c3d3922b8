package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Tomlord1122/tasklist/internal/domain"
	"github.com/Tomlord1122/tasklist/internal/logger"
	"github.com/Tomlord1122/tasklist/internal/service"
)

const helloText = "Hello from backend!"

// textResponse is the body of every plain acknowledgement.
type textResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Request any    `json:"request,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.helloHandler)
	r.Get("/health", s.healthHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/todos", func(r chi.Router) {
		r.Get("/", s.getAllTodosHandler)
		r.Post("/", s.createTodoHandler)
		r.Get("/archived", s.getArchivedTodosHandler)
		r.Get("/{id}", s.getTodoByIDHandler)
		r.Post("/complete", s.toggleTodoHandler)
		r.Post("/rename", s.renameTodoHandler)
		r.Post("/increase_priority", s.increasePriorityHandler)
		r.Post("/decrease_priority", s.decreasePriorityHandler)
		r.Post("/delete", s.deleteTodoHandler)
		r.Post("/clear", s.clearTodosHandler)
		r.Post("/archive_completed", s.archiveCompletedHandler)
	})

	return r
}

// requestLogger attaches a request-scoped logger to the context and logs
// each completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.log.With("request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(logger.ContextWithLogger(r.Context(), log)))

		log.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) helloHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, r, http.StatusOK, textResponse{Text: helloText})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthStats := s.db.Health(r.Context())
	if status, ok := healthStats["status"]; ok && status == "down" {
		respondWithJSON(w, r, http.StatusServiceUnavailable, healthStats)
		return
	}
	respondWithJSON(w, r, http.StatusOK, healthStats)
}

func (s *Server) getAllTodosHandler(w http.ResponseWriter, r *http.Request) {
	todos, err := s.todoService.GetAllTodos(r.Context())
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to retrieve todos", nil)
		return
	}
	respondWithJSON(w, r, http.StatusOK, todos)
}

func (s *Server) getArchivedTodosHandler(w http.ResponseWriter, r *http.Request) {
	archived, err := s.todoService.GetArchivedTodos(r.Context())
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to retrieve archived todos", nil)
		return
	}
	respondWithJSON(w, r, http.StatusOK, archived)
}

func (s *Server) getTodoByIDHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, r, http.StatusBadRequest, "Invalid todo ID provided")
		return
	}

	todo, err := s.todoService.GetTodoByID(r.Context(), id)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to retrieve todo", service.IDRequest{ID: id})
		return
	}
	respondWithJSON(w, r, http.StatusOK, todo)
}

func (s *Server) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTodoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	todoResp, err := s.todoService.CreateTodo(r.Context(), req)
	if err != nil {
		echo := service.TodoResponse{Title: req.Title}
		if req.Priority != nil {
			echo.Priority = *req.Priority
		}
		s.respondWithServiceError(w, r, err, "Failed to create todo", echo)
		return
	}
	respondWithJSON(w, r, http.StatusCreated, todoResp)
}

func (s *Server) toggleTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.IDRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	todo, err := s.todoService.ToggleTodo(r.Context(), req.ID)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to toggle todo", req)
		return
	}
	respondWithJSON(w, r, http.StatusAccepted, todo)
}

func (s *Server) renameTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.RenameTodoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	todo, err := s.todoService.RenameTodo(r.Context(), req)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to rename todo", req)
		return
	}
	respondWithJSON(w, r, http.StatusAccepted, todo)
}

func (s *Server) increasePriorityHandler(w http.ResponseWriter, r *http.Request) {
	var req service.IDRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := s.todoService.IncreasePriority(r.Context(), req.ID); err != nil {
		s.respondWithServiceError(w, r, err, "Failed to increase priority", req)
		return
	}
	respondWithJSON(w, r, http.StatusAccepted, textResponse{
		Text: fmt.Sprintf("Todo with id %d priority increased", req.ID),
	})
}

func (s *Server) decreasePriorityHandler(w http.ResponseWriter, r *http.Request) {
	var req service.IDRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := s.todoService.DecreasePriority(r.Context(), req.ID); err != nil {
		s.respondWithServiceError(w, r, err, "Failed to decrease priority", req)
		return
	}
	respondWithJSON(w, r, http.StatusAccepted, textResponse{
		Text: fmt.Sprintf("Todo with id %d priority decreased", req.ID),
	})
}

func (s *Server) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.IDRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	affected, err := s.todoService.DeleteTodo(r.Context(), req.ID)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to delete todo", req)
		return
	}
	if affected == 0 {
		respondWithError(w, r, http.StatusNotFound, fmt.Sprintf("Todo with id %d not found", req.ID))
		return
	}
	respondWithJSON(w, r, http.StatusOK, textResponse{
		Text: fmt.Sprintf("Todo with id %d deleted successfully", req.ID),
	})
}

func (s *Server) clearTodosHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.todoService.ClearTodos(r.Context()); err != nil {
		s.respondWithServiceError(w, r, err, "Failed to clear todos", nil)
		return
	}
	respondWithJSON(w, r, http.StatusOK, textResponse{Text: "All todos have been deleted"})
}

func (s *Server) archiveCompletedHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.todoService.ArchiveCompleted(r.Context())
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to archive completed todos", nil)
		return
	}
	respondWithJSON(w, r, http.StatusOK, textResponse{
		Text: fmt.Sprintf("Archived %d completed todo(s)", count),
	})
}

// decodeJSONBody decodes a single JSON object into dst and writes a 400 on
// malformed input. It reports whether the handler should continue.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dst)
	if err == nil {
		return true
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError):
		msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
		respondWithError(w, r, http.StatusBadRequest, msg)
	case errors.Is(err, io.ErrUnexpectedEOF):
		respondWithError(w, r, http.StatusBadRequest, "Request body contains badly-formed JSON")
	case errors.As(err, &unmarshalTypeError):
		msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		respondWithError(w, r, http.StatusBadRequest, msg)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
		respondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("Request body contains unknown field %s", fieldName))
	case errors.Is(err, io.EOF):
		respondWithError(w, r, http.StatusBadRequest, "Request body must not be empty")
	default:
		logger.FromContext(r.Context()).Error("Error decoding request body", "error", err)
		respondWithError(w, r, http.StatusInternalServerError, "Error processing request")
	}
	return false
}

// respondWithServiceError maps the service error taxonomy onto HTTP status
// codes. Unclassified failures echo the decoded request back to the caller.
func (s *Server) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, failure string, request any) {
	switch {
	case errors.Is(err, domain.ErrEmptyTitle), errors.Is(err, domain.ErrInvalidID):
		respondWithError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTodoNotFound):
		msg := err.Error()
		if req, ok := request.(service.IDRequest); ok {
			msg = fmt.Sprintf("Todo with id %d not found", req.ID)
		} else if req, ok := request.(service.RenameTodoRequest); ok {
			msg = fmt.Sprintf("Todo with id %d not found", req.ID)
		}
		respondWithError(w, r, http.StatusNotFound, msg)
	default:
		logger.FromContext(r.Context()).Error(failure, "error", err)
		respondWithJSON(w, r, http.StatusInternalServerError, errorResponse{
			Error:   fmt.Sprintf("%s: %v", failure, err),
			Request: request,
		})
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	respondWithJSON(w, r, code, errorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error marshaling JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
