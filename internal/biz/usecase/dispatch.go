package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"
)

// MessageBatchSize is the max number of due messages handled per pass
const MessageBatchSize = 20

// DispatchUsecase sends due scheduled messages and does their bookkeeping
type DispatchUsecase struct {
	taskRepo repo.TaskRepo
	gateway  repo.ChannelGateway
	clock    Clock
	logger   *slog.Logger
}

// NewDispatchUsecase creates a new dispatch usecase
func NewDispatchUsecase(taskRepo repo.TaskRepo, gateway repo.ChannelGateway, clock Clock, logger *slog.Logger) *DispatchUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchUsecase{
		taskRepo: taskRepo,
		gateway:  gateway,
		clock:    clockOrDefault(clock),
		logger:   logger.With("component", "Dispatch"),
	}
}

// RunDue dispatches one batch of due messages, earliest first.
// Only a failure to query the store is returned; row failures are recorded on the row.
func (uc *DispatchUsecase) RunDue(ctx context.Context) (processed, failed int, err error) {
	due, err := uc.taskRepo.ListDueMessages(ctx, uc.clock.Now(), MessageBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list due messages: %w", err)
	}

	for _, msg := range due {
		if err := uc.Dispatch(ctx, msg); err != nil {
			failed++
		}
		processed++
	}
	return processed, failed, nil
}

// Dispatch runs a single due row to its terminal outcome for this attempt
func (uc *DispatchUsecase) Dispatch(ctx context.Context, msg *domain.ScheduledMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while dispatching: %v", r)
			uc.recordFailure(ctx, msg, err)
		}
	}()

	if err := uc.send(ctx, msg); err != nil {
		uc.recordFailure(ctx, msg, err)
		return err
	}

	now := uc.clock.Now()
	if msg.IsRepeating() {
		next := msg.NextDueAfter(now)
		if err := uc.taskRepo.AdvanceMessage(ctx, msg.ID, next); err != nil {
			uc.logger.Error("sent but failed to advance", "id", msg.ID, "error", err)
			return fmt.Errorf("failed to advance message %d: %w", msg.ID, err)
		}
		uc.logger.Info("message sent", "id", msg.ID, "channel", msg.ChannelID, "next_due", next.Unix())
		return nil
	}

	if err := uc.taskRepo.DeactivateMessage(ctx, msg.ID); err != nil {
		uc.logger.Error("sent but failed to deactivate", "id", msg.ID, "error", err)
		return fmt.Errorf("failed to deactivate message %d: %w", msg.ID, err)
	}
	uc.logger.Info("one-time message sent", "id", msg.ID, "channel", msg.ChannelID)
	return nil
}

func (uc *DispatchUsecase) send(ctx context.Context, msg *domain.ScheduledMessage) error {
	ch, err := uc.gateway.ResolveChannel(ctx, msg.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to resolve channel %s: %w", msg.ChannelID, err)
	}

	payload := msg.Payload()
	if payload.IsEmpty() {
		return domain.ErrEmptyPayload
	}

	if err := uc.gateway.Send(ctx, ch, payload); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// recordFailure keeps the row active and pushes it out by the retry delay
func (uc *DispatchUsecase) recordFailure(ctx context.Context, msg *domain.ScheduledMessage, cause error) {
	retryAt := uc.clock.Now().Add(domain.RetryDelay)
	uc.logger.Warn("scheduled send failed", "id", msg.ID, "channel", msg.ChannelID, "retry_at", retryAt.Unix(), "error", cause)
	if err := uc.taskRepo.RecordMessageError(ctx, msg.ID, retryAt, domain.TruncateError(cause)); err != nil {
		uc.logger.Error("failed to record send error", "id", msg.ID, "error", err)
	}
}
