package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"golang.org/x/time/rate"
)

// ListPageMax is the largest page the message list API returns
const ListPageMax = 50

// MaxMediaBytes caps a single fetched attachment
const MaxMediaBytes = 10 << 20

// ErrChatNotFound is returned when the chat does not exist or the bot is not a member
var ErrChatNotFound = errors.New("feishu: chat not found")

// Chat lookup codes meaning "missing or not visible to this bot"
var chatMissingCodes = map[int]bool{
	230002: true, // bot not in chat
	232010: true, // chat does not exist
	232011: true, // operator not in chat
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id for users, app_id for bots
	SenderType string // user, app
	TenantKey  string
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID     string   `json:"chat_id"`
	Name       string   `json:"name"`
	OwnerID    string   `json:"owner_id"`
	ManagerIDs []string `json:"manager_ids"`
	TenantKey  string   `json:"tenant_key"`
}

// IsManager reports whether the open_id owns or co-manages the chat
func (c *ChatInfo) IsManager(openID string) bool {
	if openID == "" {
		return false
	}
	if openID == c.OwnerID {
		return true
	}
	for _, id := range c.ManagerIDs {
		if id == openID {
			return true
		}
	}
	return false
}

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID      string
	MsgType    string
	Content    string // Raw JSON body
	CreateTime int64  // Unix milliseconds
	Deleted    bool
	Sender     *Sender
}

// HasAttachments reports whether the message carries files, images or other media
func (m *HistoryMessage) HasAttachments() bool {
	return HasAttachments(m.MsgType, m.Content)
}

// MessagePage is one page of chat history, newest first
type MessagePage struct {
	Items     []*HistoryMessage
	PageToken string
	HasMore   bool
}

// Option configures a Client
type Option func(*Client)

// WithRateLimit caps outgoing API calls per second
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger used by the client and the lark SDK
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug raises the lark SDK log level
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithHTTPClient sets the client used to fetch media URLs
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is the Feishu API client
type Client struct {
	larkCli    *lark.Client
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
	debug      bool
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, opts ...Option) *Client {
	c := &Client{
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "Feishu")

	level := larkcore.LogLevelWarn
	if c.debug {
		level = larkcore.LogLevelDebug
	}
	c.larkCli = lark.NewClient(appID, appSecret,
		lark.WithLogger(&larkLogger{logger: c.logger}),
		lark.WithLogLevel(level),
		lark.WithReqTimeout(30*time.Second),
	)
	return c
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("feishu rate limiter: %w", err)
	}
	return nil
}

// GetChatInfo retrieves the chat's owner and managers
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		if chatMissingCodes[resp.Code] {
			return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
		}
		return nil, fmt.Errorf("get chat info error: %s", resp.Msg)
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	if resp.Data.OwnerId != nil {
		info.OwnerID = *resp.Data.OwnerId
	}
	if resp.Data.TenantKey != nil {
		info.TenantKey = *resp.Data.TenantKey
	}
	info.ManagerIDs = append(info.ManagerIDs, resp.Data.UserManagerIdList...)

	c.logger.Debug("got chat info", "chat", chatID, "name", info.Name, "managers", len(info.ManagerIDs))
	return info, nil
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})
	return c.create(ctx, chatID, larkim.MsgTypeText, string(contentJSON))
}

// SendPost sends a rich text (post) message to a chat
func (c *Client) SendPost(ctx context.Context, chatID, title string, content [][]map[string]interface{}) error {
	post := map[string]interface{}{
		"zh_cn": map[string]interface{}{
			"title":   title,
			"content": content,
		},
	}
	contentJSON, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encode post: %w", err)
	}
	return c.create(ctx, chatID, larkim.MsgTypePost, string(contentJSON))
}

func (c *Client) create(ctx context.Context, chatID, msgType, content string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		if chatMissingCodes[resp.Code] {
			return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
		}
		return fmt.Errorf("send message error: %s", resp.Msg)
	}

	c.logger.Debug("message sent", "chat", chatID, "type", msgType)
	return nil
}

// UploadImage uploads an image for use in messages and returns its image_key
func (c *Client) UploadImage(ctx context.Context, image io.Reader) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(image).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload image failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("upload image error: %s", resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", errors.New("upload image: empty image_key")
	}
	return *resp.Data.ImageKey, nil
}

// FetchMedia downloads a media URL. The caller closes the body.
func (c *Client) FetchMedia(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	body := struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, MaxMediaBytes), resp.Body}
	return body, resp.Header.Get("Content-Type"), nil
}

// ListMessages returns one page of a chat's history, newest first.
// pageSize is capped at ListPageMax.
func (c *Client) ListMessages(ctx context.Context, chatID string, pageSize int, pageToken string) (*MessagePage, error) {
	if pageSize > ListPageMax {
		pageSize = ListPageMax
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	builder := larkim.NewListMessageReqBuilder().
		ContainerIdType("chat").
		ContainerId(chatID).
		SortType("ByCreateTimeDesc").
		PageSize(pageSize)
	if pageToken != "" {
		builder = builder.PageToken(pageToken)
	}

	resp, err := c.larkCli.Im.Message.List(ctx, builder.Build())
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	if !resp.Success() {
		if chatMissingCodes[resp.Code] {
			return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
		}
		return nil, fmt.Errorf("list messages error: %s", resp.Msg)
	}

	page := &MessagePage{}
	if resp.Data == nil {
		return page, nil
	}
	for _, item := range resp.Data.Items {
		page.Items = append(page.Items, convertMessage(item))
	}
	if resp.Data.HasMore != nil {
		page.HasMore = *resp.Data.HasMore
	}
	if resp.Data.PageToken != nil {
		page.PageToken = *resp.Data.PageToken
	}

	c.logger.Debug("listed messages", "chat", chatID, "count", len(page.Items), "has_more", page.HasMore)
	return page, nil
}

func convertMessage(item *larkim.Message) *HistoryMessage {
	msg := &HistoryMessage{}
	if item.MessageId != nil {
		msg.MsgID = *item.MessageId
	}
	if item.MsgType != nil {
		msg.MsgType = *item.MsgType
	}
	if item.CreateTime != nil {
		msg.CreateTime, _ = strconv.ParseInt(*item.CreateTime, 10, 64)
	}
	if item.Deleted != nil {
		msg.Deleted = *item.Deleted
	}
	if item.Body != nil && item.Body.Content != nil {
		msg.Content = *item.Body.Content
	}
	if item.Sender != nil {
		msg.Sender = &Sender{}
		if item.Sender.Id != nil {
			msg.Sender.SenderID = *item.Sender.Id
		}
		if item.Sender.SenderType != nil {
			msg.Sender.SenderType = *item.Sender.SenderType
		}
		if item.Sender.TenantKey != nil {
			msg.Sender.TenantKey = *item.Sender.TenantKey
		}
	}
	return msg
}

// DeleteMessage recalls a message
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := c.larkCli.Im.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("delete message %s error: %s", messageID, resp.Msg)
	}
	return nil
}

// attachmentTypes are message types that are themselves an attachment
var attachmentTypes = map[string]bool{
	"image":   true,
	"file":    true,
	"media":   true,
	"audio":   true,
	"sticker": true,
}

// HasAttachments reports whether a message of msgType with the given raw body carries media.
// Posts count when any element is an image or a video.
func HasAttachments(msgType, content string) bool {
	if attachmentTypes[msgType] {
		return true
	}
	if msgType != "post" || content == "" {
		return false
	}

	var parsed struct {
		Content [][]struct {
			Tag string `json:"tag"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return false
	}
	for _, line := range parsed.Content {
		for _, elem := range line {
			if elem.Tag == "img" || elem.Tag == "media" {
				return true
			}
		}
	}
	return false
}

// IsImageContentType reports whether a fetched media URL can be uploaded as an image
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// larkLogger routes lark SDK logs to slog
type larkLogger struct {
	logger *slog.Logger
}

func (l *larkLogger) Debug(ctx context.Context, args ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprint(args...))
}

func (l *larkLogger) Info(ctx context.Context, args ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprint(args...))
}

func (l *larkLogger) Warn(ctx context.Context, args ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprint(args...))
}

func (l *larkLogger) Error(ctx context.Context, args ...interface{}) {
	l.logger.ErrorContext(ctx, fmt.Sprint(args...))
}
