// Package model holds the chat domain types shared by the caches, the sync
// coordinator and the RPC surface.
package model

import "time"

// ChatSummary is one entry of the chat list. Optional fields are left at
// their zero value when the server omits them.
type ChatSummary struct {
	ID                   string    `json:"id"`
	CounterpartUserID    string    `json:"counterpart_user_id"`
	CounterpartUsername  string    `json:"counterpart_username"`
	CounterpartAvatarURL string    `json:"counterpart_avatar_url,omitempty"`
	LastMessagePreview   string    `json:"last_message_preview,omitempty"`
	LastMessageTime      time.Time `json:"last_message_time,omitzero"`
	LastMessageID        string    `json:"last_message_id,omitempty"`
	LastMessageSenderID  string    `json:"last_message_sender_id,omitempty"`
	CreatedAt            time.Time `json:"created_at,omitzero"`
	UpdatedAt            time.Time `json:"updated_at,omitzero"`
}

// Recency is the timestamp the chat list is ordered by: the last message
// time when known, otherwise the chat's update time. Zero means unknown.
func (c ChatSummary) Recency() time.Time {
	if !c.LastMessageTime.IsZero() {
		return c.LastMessageTime
	}
	return c.UpdatedAt
}

// Message is a single chat message. Messages are immutable once received.
type Message struct {
	ID                 string    `json:"id"`
	SenderID           string    `json:"sender_id"`
	Content            string    `json:"content,omitempty"`
	AttachmentURL      string    `json:"attachment_url,omitempty"`
	AttachmentMimeType string    `json:"attachment_mime_type,omitempty"`
	IsDeleted          bool      `json:"is_deleted"`
	CreatedAt          time.Time `json:"created_at,omitzero"`
	UpdatedAt          time.Time `json:"updated_at,omitzero"`
}

// ChatDetail is a chat with its full message list, oldest first.
type ChatDetail struct {
	ID                   string    `json:"id"`
	CounterpartUserID    string    `json:"counterpart_user_id"`
	CounterpartUsername  string    `json:"counterpart_username"`
	CounterpartAvatarURL string    `json:"counterpart_avatar_url,omitempty"`
	Messages             []Message `json:"messages"`
	CreatedAt            time.Time `json:"created_at,omitzero"`
	UpdatedAt            time.Time `json:"updated_at,omitzero"`
}

// LastMessage returns the newest message of the chat, if any.
func (d ChatDetail) LastMessage() (Message, bool) {
	if len(d.Messages) == 0 {
		return Message{}, false
	}
	return d.Messages[len(d.Messages)-1], true
}

// UserSummary is a directory entry for another user.
type UserSummary struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Attachment is a file sent along with a message.
type Attachment struct {
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// SendResult is the server acknowledgement of a write.
type SendResult struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chat_id,omitempty"`
}

// Credentials is the authenticated session held by the client.
type Credentials struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Remember  bool      `json:"remember"`
}

// Valid reports whether the credentials carry a token that has not expired.
// A zero ExpiresAt means the server did not announce an expiry.
func (c Credentials) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}
