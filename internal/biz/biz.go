package biz

import (
	"log/slog"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Task     *usecase.TaskUsecase
	Dispatch *usecase.DispatchUsecase
	Purge    *usecase.PurgeUsecase
}

// NewUsecases wires the usecases against one store and one gateway on the system clock
func NewUsecases(taskRepo repo.TaskRepo, gateway repo.ChannelGateway, logger *slog.Logger) *Usecases {
	clock := usecase.SystemClock{}
	return &Usecases{
		Task:     usecase.NewTaskUsecase(taskRepo, gateway, clock),
		Dispatch: usecase.NewDispatchUsecase(taskRepo, gateway, clock, logger),
		Purge:    usecase.NewPurgeUsecase(taskRepo, gateway, clock, logger),
	}
}
