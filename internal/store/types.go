package store

import (
	"github.com/matheus3301/chatsync/internal/model"
)

type chatRow struct {
	ID                   string `db:"id"`
	Position             int64  `db:"position"`
	CounterpartUserID    string `db:"counterpart_user_id"`
	CounterpartUsername  string `db:"counterpart_username"`
	CounterpartAvatarURL string `db:"counterpart_avatar_url"`
	LastMessagePreview   string `db:"last_message_preview"`
	LastMessageTime      int64  `db:"last_message_time"`
	LastMessageID        string `db:"last_message_id"`
	LastMessageSenderID  string `db:"last_message_sender_id"`
	CreatedAt            int64  `db:"created_at"`
	UpdatedAt            int64  `db:"updated_at"`
	CachedAt             int64  `db:"cached_at"`
}

func newChatRow(c model.ChatSummary, position, cachedAt int64) chatRow {
	return chatRow{
		ID:                   c.ID,
		Position:             position,
		CounterpartUserID:    c.CounterpartUserID,
		CounterpartUsername:  c.CounterpartUsername,
		CounterpartAvatarURL: c.CounterpartAvatarURL,
		LastMessagePreview:   c.LastMessagePreview,
		LastMessageTime:      toMillis(c.LastMessageTime),
		LastMessageID:        c.LastMessageID,
		LastMessageSenderID:  c.LastMessageSenderID,
		CreatedAt:            toMillis(c.CreatedAt),
		UpdatedAt:            toMillis(c.UpdatedAt),
		CachedAt:             cachedAt,
	}
}

func (r chatRow) summary() model.ChatSummary {
	return model.ChatSummary{
		ID:                   r.ID,
		CounterpartUserID:    r.CounterpartUserID,
		CounterpartUsername:  r.CounterpartUsername,
		CounterpartAvatarURL: r.CounterpartAvatarURL,
		LastMessagePreview:   r.LastMessagePreview,
		LastMessageTime:      fromMillis(r.LastMessageTime),
		LastMessageID:        r.LastMessageID,
		LastMessageSenderID:  r.LastMessageSenderID,
		CreatedAt:            fromMillis(r.CreatedAt),
		UpdatedAt:            fromMillis(r.UpdatedAt),
	}
}

type detailRow struct {
	ID       string `db:"id"`
	Position int64  `db:"position"`
	Payload  string `db:"payload"`
	CachedAt int64  `db:"cached_at"`
}

type userRow struct {
	UserID    string `db:"user_id"`
	Position  int64  `db:"position"`
	Username  string `db:"username"`
	AvatarURL string `db:"avatar_url"`
	CachedAt  int64  `db:"cached_at"`
}

type seenRow struct {
	ChatID    string `db:"chat_id"`
	MessageID string `db:"message_id"`
	UpdatedAt int64  `db:"updated_at"`
}

type credentialsRow struct {
	Token     string `db:"token"`
	ExpiresAt int64  `db:"expires_at"`
	UserID    string `db:"user_id"`
	Username  string `db:"username"`
	Remember  bool   `db:"remember"`
	UpdatedAt int64  `db:"updated_at"`
}

// Stats counts the rows held by each cache table.
type Stats struct {
	Chats       int64 `db:"chats" json:"chats"`
	ChatDetails int64 `db:"chat_details" json:"chat_details"`
	Users       int64 `db:"users" json:"users"`
	Seen        int64 `db:"seen" json:"seen"`
}
