package repo

import (
	"context"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

// ChannelGateway is what the engine needs from the chat platform
type ChannelGateway interface {
	// ResolveChannel looks up a chat; returns domain.ErrChannelNotFound when missing or inaccessible
	ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error)

	// Send delivers text and media to the chat
	Send(ctx context.Context, ch *domain.Channel, payload domain.Payload) error

	// PageRecent returns up to limit items older than the before cursor, newest first.
	// An empty next cursor means the history is exhausted.
	PageRecent(ctx context.Context, ch *domain.Channel, limit int, before string) (items []domain.ChannelItem, next string, err error)

	// BulkRemove deletes at most domain.BulkRemoveLimit items and reports how many were removed
	BulkRemove(ctx context.Context, ch *domain.Channel, ids []string) (int, error)

	// IsPrivileged reports whether the author administers the chat
	IsPrivileged(ctx context.Context, ch *domain.Channel, authorID string) (bool, error)
}
