package api

import (
	"log/slog"

	"github.com/shaiso/Maestro/internal/service"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows *service.WorkflowService
	tasks     *service.TaskService
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows *service.WorkflowService
	Tasks     *service.TaskService
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		workflows: cfg.Workflows,
		tasks:     cfg.Tasks,
		logger:    cfg.Logger,
	}
}
