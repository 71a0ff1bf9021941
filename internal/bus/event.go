package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter on the namespace before the dot.
const (
	KindNewMessages    = "notify.new_messages"
	KindChatsChanged   = "chats.changed"
	KindChatUpdated    = "chats.detail_updated"
	KindStatusChanged  = "sync.status_changed"
	KindSessionChanged = "session.changed"
)

// NewMessages announces chats whose last message arrived since the previous
// poll and was sent by someone else.
type NewMessages struct {
	Count int      `json:"count"`
	Chats []string `json:"chats"`
}

// ChatsChanged is published after every chat list fetch, fresh or cached.
type ChatsChanged struct {
	Count     int  `json:"count"`
	FromCache bool `json:"from_cache"`
}

// ChatUpdated is published after a chat detail fetch.
type ChatUpdated struct {
	ChatID    string `json:"chat_id"`
	Messages  int    `json:"messages"`
	FromCache bool   `json:"from_cache"`
}

// SessionChanged is published on login and logout.
type SessionChanged struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
}
