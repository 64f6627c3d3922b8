package server

import (
	"fmt"
	"net/http"

	"github.com/Tomlord1122/tasklist/internal/config"
	"github.com/Tomlord1122/tasklist/internal/database"
	"github.com/Tomlord1122/tasklist/internal/logger"
	"github.com/Tomlord1122/tasklist/internal/metrics"
	"github.com/Tomlord1122/tasklist/internal/service"
)

type Server struct {
	port        int
	todoService service.TodoService
	db          database.Service
	metrics     *metrics.Metrics
	log         logger.Logger
}

// New builds the handler side of the server. A nil metrics disables the
// middleware and the /metrics route.
func New(todoService service.TodoService, dbService database.Service, m *metrics.Metrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Server{
		todoService: todoService,
		db:          dbService,
		metrics:     m,
		log:         log,
	}
}

func NewServer(
	cfg config.ServerConfig,
	todoService service.TodoService,
	dbService database.Service,
	m *metrics.Metrics,
	log logger.Logger,
) *http.Server {
	appServer := New(todoService, dbService, m, log)
	appServer.port = cfg.Port

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.port),
		Handler:      appServer.RegisterRoutes(),
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}
