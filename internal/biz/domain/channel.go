package domain

import "time"

// Channel is a resolved chat the engine can send to or purge
type Channel struct {
	ID      string
	ScopeID string // Tenant that owns the chat
	Name    string
	OwnerID string
}

// ChannelItem is one message as seen while paging a channel's history
type ChannelItem struct {
	ID             string
	AuthorID       string
	MsgType        string // text, image, post, file, etc.
	CreatedAt      time.Time
	HasAttachments bool
}

// Age returns how old the item is at the given moment
func (i *ChannelItem) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}

// Payload is the outbound content of a scheduled message
type Payload struct {
	Text  string
	Media []string // http(s) URLs
}

// IsEmpty checks if there is nothing to send
func (p Payload) IsEmpty() bool {
	return p.Text == "" && len(p.Media) == 0
}
