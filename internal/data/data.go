package data

import (
	"log/slog"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"
	"github.com/DevRickLin/feishu-task-engine/internal/infra/feishu"
)

// Repositories contains all repositories
type Repositories struct {
	Task    repo.TaskRepo
	Gateway repo.ChannelGateway
}

// NewRepositories opens the task store and wraps the Feishu client.
// feishuClient may be nil for commands that only touch the store.
func NewRepositories(feishuClient *feishu.Client, dbPath string, logger *slog.Logger) (*Repositories, error) {
	taskRepo, err := NewTaskRepo(dbPath)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{Task: taskRepo}
	if feishuClient != nil {
		repos.Gateway = NewFeishuGateway(feishuClient, logger)
	}
	return repos, nil
}

// Close releases the store
func (r *Repositories) Close() error {
	return r.Task.Close()
}
