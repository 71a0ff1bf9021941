package rpc

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type LoginResponse struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Remembered bool      `json:"remembered"`
}

type LogoutRequest struct{}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type GetStatusRequest struct{}

// ResourceStatus is the fetch state of one cached resource.
type ResourceStatus struct {
	Resource  string    `json:"resource"`
	State     string    `json:"state"`
	FromCache bool      `json:"from_cache"`
	Error     string    `json:"error,omitempty"`
	Fresh     bool      `json:"fresh"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

type GetStatusResponse struct {
	Session    string           `json:"session"`
	LoggedIn   bool             `json:"logged_in"`
	UserID     string           `json:"user_id,omitempty"`
	Username   string           `json:"username,omitempty"`
	Remembered bool             `json:"remembered"`
	Online     bool             `json:"online"`
	Polling    bool             `json:"polling"`
	UptimeMs   int64            `json:"uptime_ms"`
	Resources  []ResourceStatus `json:"resources"`
	// Unread lists cached chats with a message not yet seen.
	Unread     []string         `json:"unread,omitempty"`
}

type ListChatsRequest struct{}

type ListChatsResponse struct {
	Chats     []model.ChatSummary `json:"chats"`
	FromCache bool                `json:"from_cache"`
}

type GetChatRequest struct {
	ChatID string `json:"chat_id"`
}

type GetChatResponse struct {
	Chat      model.ChatDetail `json:"chat"`
	FromCache bool             `json:"from_cache"`
}

type FollowChatRequest struct {
	ChatID string `json:"chat_id"`
	// IntervalMs overrides the daemon's refresh interval when positive.
	IntervalMs int64 `json:"interval_ms,omitempty"`
}

// ChatUpdate is one tick of a followed chat. Error is set when the tick
// failed; the stream keeps going.
type ChatUpdate struct {
	Chat      model.ChatDetail `json:"chat"`
	FromCache bool             `json:"from_cache"`
	Initial   bool             `json:"initial"`
	Error     string           `json:"error,omitempty"`
}

type SendMessageRequest struct {
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Attachment *model.Attachment `json:"attachment,omitempty"`
}

type CreateChatRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

type SendResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chat_id,omitempty"`
}

type FindChatByUserRequest struct {
	UserID string `json:"user_id"`
}

type FindChatByUserResponse struct {
	Found bool              `json:"found"`
	Chat  model.ChatSummary `json:"chat"`
}

type SearchUsersRequest struct {
	Query string `json:"query"`
}

type SearchUsersResponse struct {
	Users     []model.UserSummary `json:"users"`
	FromCache bool                `json:"from_cache"`
}

// LoadAvatarRequest names an image by URL. The cache key defaults to the
// username based key when Key is empty.
type LoadAvatarRequest struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Key      string `json:"key,omitempty"`
}

type LoadAvatarResponse struct {
	Key  string `json:"key"`
	Data []byte `json:"data"`
}

type CacheStatsRequest struct{}

type CacheStatsResponse struct {
	Chats       int   `json:"chats"`
	ChatDetails int   `json:"chat_details"`
	Users       int   `json:"users"`
	Seen        int   `json:"seen"`
	ImageBytes  int64 `json:"image_bytes"`
}

type ClearCacheRequest struct {
	Target string `json:"target"`
}

type ClearCacheResponse struct {
	Target string `json:"target"`
}

// WatchRequest filters the event stream by kind prefix; no prefixes means
// notifications and chat list changes.
type WatchRequest struct {
	Prefixes []string `json:"prefixes,omitempty"`
}

type Event struct {
	ID         string          `json:"id"`
	Session    string          `json:"session"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
