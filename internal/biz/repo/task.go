package repo

import (
	"context"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

// TaskRepo defines durable storage for scheduled messages and purge rules.
// Every write touches a single row.
type TaskRepo interface {
	// Scheduled message operations used by the engine
	CreateMessage(ctx context.Context, msg *domain.ScheduledMessage) (int64, error)
	ListDueMessages(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledMessage, error)
	AdvanceMessage(ctx context.Context, id int64, nextDue time.Time) error
	DeactivateMessage(ctx context.Context, id int64) error
	RecordMessageError(ctx context.Context, id int64, retryAt time.Time, errText string) error

	// Scheduled message operator CRUD, scoped by tenant
	GetMessage(ctx context.Context, scopeID string, id int64) (*domain.ScheduledMessage, error)
	ListMessages(ctx context.Context, scopeID, channelID string, limit int) ([]*domain.ScheduledMessage, error)
	PauseMessage(ctx context.Context, scopeID string, id int64) (bool, error)
	ResumeMessage(ctx context.Context, scopeID string, id int64, earliest time.Time) (bool, error)
	DeleteMessage(ctx context.Context, scopeID string, id int64) (bool, error)

	// Purge rule operations used by the engine
	UpsertPurgeRule(ctx context.Context, rule *domain.PurgeRule) (int64, error)
	ListDuePurgeRules(ctx context.Context, now time.Time, limit int) ([]*domain.PurgeRule, error)
	AdvancePurgeRule(ctx context.Context, id int64, nextRun time.Time) error
	RecordPurgeRuleError(ctx context.Context, id int64, nextRun time.Time, errText string) error

	// Purge rule operator CRUD, scoped by tenant
	GetPurgeRule(ctx context.Context, scopeID string, id int64) (*domain.PurgeRule, error)
	ListPurgeRules(ctx context.Context, scopeID string, limit int) ([]*domain.PurgeRule, error)
	PausePurgeRule(ctx context.Context, scopeID string, id int64) (bool, error)
	ResumePurgeRule(ctx context.Context, scopeID string, id int64, earliest time.Time) (bool, error)
	DeletePurgeRule(ctx context.Context, scopeID string, id int64) (bool, error)

	Close() error
}
