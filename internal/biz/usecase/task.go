package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"
)

// ListLimit caps operator listings
const ListLimit = 30

// TaskUsecase handles operator requests to manage scheduled messages and purge rules
type TaskUsecase struct {
	taskRepo repo.TaskRepo
	gateway  repo.ChannelGateway
	clock    Clock
}

// NewTaskUsecase creates a new task usecase. gateway may be nil to skip channel checks.
func NewTaskUsecase(taskRepo repo.TaskRepo, gateway repo.ChannelGateway, clock Clock) *TaskUsecase {
	return &TaskUsecase{
		taskRepo: taskRepo,
		gateway:  gateway,
		clock:    clockOrDefault(clock),
	}
}

// ========== Scheduled Message Operations ==========

// ScheduleMessage validates and stores a new scheduled message
func (uc *TaskUsecase) ScheduleMessage(ctx context.Context, in domain.ScheduledMessageInput) (*domain.ScheduledMessage, error) {
	msg, err := domain.NewScheduledMessage(in, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.checkChannel(ctx, msg.ChannelID); err != nil {
		return nil, err
	}

	id, err := uc.taskRepo.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// ListMessages lists the latest scheduled messages of a scope, optionally for one channel
func (uc *TaskUsecase) ListMessages(ctx context.Context, scopeID, channelID string) ([]*domain.ScheduledMessage, error) {
	if err := requireScope(scopeID); err != nil {
		return nil, err
	}
	return uc.taskRepo.ListMessages(ctx, scopeID, channelID, ListLimit)
}

// PauseMessage stops a scheduled message from firing
func (uc *TaskUsecase) PauseMessage(ctx context.Context, scopeID string, id int64) error {
	if err := requireScope(scopeID); err != nil {
		return err
	}
	return found(uc.taskRepo.PauseMessage(ctx, scopeID, id))
}

// ResumeMessage reactivates a message, never sooner than ResumeGrace from now
func (uc *TaskUsecase) ResumeMessage(ctx context.Context, scopeID string, id int64) error {
	if err := requireScope(scopeID); err != nil {
		return err
	}
	earliest := uc.clock.Now().Add(domain.ResumeGrace)
	return found(uc.taskRepo.ResumeMessage(ctx, scopeID, id, earliest))
}

// RemoveMessage deletes a scheduled message
func (uc *TaskUsecase) RemoveMessage(ctx context.Context, scopeID string, id int64) error {
	if err := requireScope(scopeID); err != nil {
		return err
	}
	return found(uc.taskRepo.DeleteMessage(ctx, scopeID, id))
}

// ========== Purge Rule Operations ==========

// SetPurgeRule creates the rule for a channel or replaces the existing one
func (uc *TaskUsecase) SetPurgeRule(ctx context.Context, in domain.PurgeRuleInput) (*domain.PurgeRule, error) {
	rule, err := domain.NewPurgeRule(in, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.checkChannel(ctx, rule.ChannelID); err != nil {
		return nil, err
	}

	id, err := uc.taskRepo.UpsertPurgeRule(ctx, rule)
	if err != nil {
		return nil, err
	}
	rule.ID = id
	return rule, nil
}

// ListPurgeRules lists the latest purge rules of a scope
func (uc *TaskUsecase) ListPurgeRules(ctx context.Context, scopeID string) ([]*domain.PurgeRule, error) {
	if err := requireScope(scopeID); err != nil {
		return nil, err
	}
	return uc.taskRepo.ListPurgeRules(ctx, scopeID, ListLimit)
}

// PausePurgeRule stops a purge rule from running
func (uc *TaskUsecase) PausePurgeRule(ctx context.Context, scopeID string, id int64) error {
	if err := requireScope(scopeID); err != nil {
		return err
	}
	return found(uc.taskRepo.PausePurgeRule(ctx, scopeID, id))
}

// ResumePurgeRule reactivates a purge rule
func (uc *TaskUsecase) ResumePurgeRule(ctx context.Context, scopeID string, id int64) error {
	if err := requireScope(scopeID); err != nil {
		return err
	}
	earliest := uc.clock.Now().Add(domain.ResumeGrace)
	return found(uc.taskRepo.ResumePurgeRule(ctx, scopeID, id, earliest))
}

// RemovePurgeRule deletes a purge rule
func (uc *TaskUsecase) RemovePurgeRule(ctx context.Context, scopeID string, id int64) error {
	if err := requireScope(scopeID); err != nil {
		return err
	}
	return found(uc.taskRepo.DeletePurgeRule(ctx, scopeID, id))
}

func (uc *TaskUsecase) checkChannel(ctx context.Context, channelID string) error {
	if uc.gateway == nil {
		return nil
	}
	if _, err := uc.gateway.ResolveChannel(ctx, channelID); err != nil {
		return fmt.Errorf("failed to resolve channel %s: %w", channelID, err)
	}
	return nil
}

func requireScope(scopeID string) error {
	if strings.TrimSpace(scopeID) == "" {
		return &domain.ValidationError{Field: "scope_id", Message: "is required"}
	}
	return nil
}

func found(changed bool, err error) error {
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrNotFound
	}
	return nil
}
