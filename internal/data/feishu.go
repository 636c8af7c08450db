package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"
	"github.com/DevRickLin/feishu-task-engine/internal/infra/feishu"
	"golang.org/x/sync/errgroup"
)

// deleteConcurrency bounds parallel recalls within one chunk
const deleteConcurrency = 4

// FeishuAPI is the subset of the Feishu client used by the gateway
type FeishuAPI interface {
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
	SendText(ctx context.Context, chatID, text string) error
	SendPost(ctx context.Context, chatID, title string, content [][]map[string]interface{}) error
	UploadImage(ctx context.Context, image io.Reader) (string, error)
	FetchMedia(ctx context.Context, url string) (io.ReadCloser, string, error)
	ListMessages(ctx context.Context, chatID string, pageSize int, pageToken string) (*feishu.MessagePage, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// feishuGateway implements the channel gateway on Feishu chats
type feishuGateway struct {
	client FeishuAPI
	logger *slog.Logger
}

// NewFeishuGateway creates a new Feishu channel gateway
func NewFeishuGateway(client FeishuAPI, logger *slog.Logger) repo.ChannelGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &feishuGateway{
		client: client,
		logger: logger.With("component", "Gateway"),
	}
}

// ResolveChannel looks up a chat by id
func (g *feishuGateway) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	info, err := g.client.GetChatInfo(ctx, channelID)
	if err != nil {
		if errors.Is(err, feishu.ErrChatNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return &domain.Channel{
		ID:      channelID,
		ScopeID: info.TenantKey,
		Name:    info.Name,
		OwnerID: info.OwnerID,
	}, nil
}

// Send delivers text alone as a text message; anything with media goes out as one post.
// Image URLs are uploaded and embedded, other URLs become links.
func (g *feishuGateway) Send(ctx context.Context, ch *domain.Channel, payload domain.Payload) error {
	if payload.IsEmpty() {
		return domain.ErrEmptyPayload
	}
	if len(payload.Media) == 0 {
		return g.client.SendText(ctx, ch.ID, payload.Text)
	}

	var content [][]map[string]interface{}
	if payload.Text != "" {
		content = append(content, []map[string]interface{}{
			{"tag": "text", "text": payload.Text},
		})
	}
	for _, url := range payload.Media {
		content = append(content, []map[string]interface{}{g.mediaElement(ctx, url)})
	}
	return g.client.SendPost(ctx, ch.ID, "", content)
}

// mediaElement falls back to a link when the URL is not an uploadable image
func (g *feishuGateway) mediaElement(ctx context.Context, url string) map[string]interface{} {
	link := map[string]interface{}{"tag": "a", "text": url, "href": url}

	body, contentType, err := g.client.FetchMedia(ctx, url)
	if err != nil {
		g.logger.Warn("media fetch failed, sending link", "url", url, "error", err)
		return link
	}
	defer body.Close()
	if !feishu.IsImageContentType(contentType) {
		return link
	}

	key, err := g.client.UploadImage(ctx, body)
	if err != nil {
		g.logger.Warn("image upload failed, sending link", "url", url, "error", err)
		return link
	}
	return map[string]interface{}{"tag": "img", "image_key": key}
}

// PageRecent fills up to limit items from consecutive list pages.
// The before cursor is the Feishu page token.
func (g *feishuGateway) PageRecent(ctx context.Context, ch *domain.Channel, limit int, before string) ([]domain.ChannelItem, string, error) {
	var items []domain.ChannelItem
	token := before
	for len(items) < limit {
		page, err := g.client.ListMessages(ctx, ch.ID, limit-len(items), token)
		if err != nil {
			if errors.Is(err, feishu.ErrChatNotFound) {
				return items, "", domain.ErrChannelNotFound
			}
			return items, "", err
		}
		for _, m := range page.Items {
			if m.Deleted || m.MsgID == "" {
				continue
			}
			items = append(items, toChannelItem(m))
		}

		if !page.HasMore || page.PageToken == "" {
			return items, "", nil
		}
		token = page.PageToken
	}
	return items, token, nil
}

func toChannelItem(m *feishu.HistoryMessage) domain.ChannelItem {
	item := domain.ChannelItem{
		ID:             m.MsgID,
		MsgType:        m.MsgType,
		CreatedAt:      time.UnixMilli(m.CreateTime),
		HasAttachments: m.HasAttachments(),
	}
	if m.Sender != nil {
		item.AuthorID = m.Sender.SenderID
	}
	return item
}

// BulkRemove recalls each message. Feishu has no batch delete, so every id is one call.
func (g *feishuGateway) BulkRemove(ctx context.Context, ch *domain.Channel, ids []string) (int, error) {
	if len(ids) > domain.BulkRemoveLimit {
		return 0, fmt.Errorf("bulk remove of %d exceeds limit %d", len(ids), domain.BulkRemoveLimit)
	}

	var deleted atomic.Int64
	var mu sync.Mutex
	var errs []error

	var eg errgroup.Group
	eg.SetLimit(deleteConcurrency)
	for _, id := range ids {
		eg.Go(func() error {
			if err := g.client.DeleteMessage(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	eg.Wait()

	n := int(deleted.Load())
	if len(errs) > 0 {
		g.logger.Warn("some recalls failed", "channel", ch.ID, "deleted", n, "failed", len(errs))
		return n, errors.Join(errs...)
	}
	return n, nil
}

// IsPrivileged reports whether the author owns or manages the chat
func (g *feishuGateway) IsPrivileged(ctx context.Context, ch *domain.Channel, authorID string) (bool, error) {
	info, err := g.client.GetChatInfo(ctx, ch.ID)
	if err != nil {
		return false, err
	}
	return info.IsManager(authorID), nil
}
