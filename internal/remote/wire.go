package remote

import (
	"mime"
	"path"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

type chatItem struct {
	ID                  string `json:"id"`
	User                string `json:"user"`
	Username            string `json:"username"`
	ProfileImg          string `json:"profile_img"`
	LastMessage         string `json:"last_message"`
	LastMessageTime     string `json:"last_message_time"`
	LastMessageID       string `json:"last_message_id"`
	LastMessageSenderID string `json:"last_message_sender_id"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

type chatsListResponse struct {
	Chats []chatItem `json:"chats"`
}

type messageItem struct {
	ID                 string `json:"id"`
	SenderID           string `json:"sender_id"`
	Content            string `json:"content"`
	AttachmentURL      string `json:"attachment_url"`
	AttachmentMimeType string `json:"attachment_mime_type"`
	IsDeleted          bool   `json:"is_deleted"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

type chatDetailResponse struct {
	ID         string        `json:"id"`
	User       string        `json:"user"`
	Username   string        `json:"username"`
	ProfileImg string        `json:"profile_img"`
	Messages   []messageItem `json:"messages"`
	CreatedAt  string        `json:"created_at"`
	UpdatedAt  string        `json:"updated_at"`
}

type userItem struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type usersListResponse struct {
	Users []userItem `json:"users"`
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	LoginRemember bool   `json:"login_remember"`
}

type loginResponse struct {
	JWT            string `json:"jwt"`
	ExpirationDate string `json:"expiration_date"`
}

type profileResponse struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	EmailIsVerified bool   `json:"email_is_verified"`
	ProfileImageURL string `json:"profile_image_url"`
}

type createChatRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

type successResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chat_id"`
}

type sessionValidationRequest struct {
	Token string `json:"token"`
}

type sessionValidationResponse struct {
	Valid bool `json:"valid"`
}

// timeLayouts lists the timestamp shapes the API has been seen to emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTime is lenient: an unknown or empty timestamp becomes the zero time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (c chatItem) toModel() model.ChatSummary {
	return model.ChatSummary{
		ID:                   c.ID,
		CounterpartUserID:    c.User,
		CounterpartUsername:  c.Username,
		CounterpartAvatarURL: c.ProfileImg,
		LastMessagePreview:   c.LastMessage,
		LastMessageTime:      parseTime(c.LastMessageTime),
		LastMessageID:        c.LastMessageID,
		LastMessageSenderID:  c.LastMessageSenderID,
		CreatedAt:            parseTime(c.CreatedAt),
		UpdatedAt:            parseTime(c.UpdatedAt),
	}
}

func (m messageItem) toModel() model.Message {
	mimeType := m.AttachmentMimeType
	if mimeType == "" && m.AttachmentURL != "" {
		mimeType = guessMimeType(m.AttachmentURL)
	}
	return model.Message{
		ID:                 m.ID,
		SenderID:           m.SenderID,
		Content:            m.Content,
		AttachmentURL:      m.AttachmentURL,
		AttachmentMimeType: mimeType,
		IsDeleted:          m.IsDeleted,
		CreatedAt:          parseTime(m.CreatedAt),
		UpdatedAt:          parseTime(m.UpdatedAt),
	}
}

func (d chatDetailResponse) toModel() model.ChatDetail {
	msgs := make([]model.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		msgs = append(msgs, m.toModel())
	}
	return model.ChatDetail{
		ID:                   d.ID,
		CounterpartUserID:    d.User,
		CounterpartUsername:  d.Username,
		CounterpartAvatarURL: d.ProfileImg,
		Messages:             msgs,
		CreatedAt:            parseTime(d.CreatedAt),
		UpdatedAt:            parseTime(d.UpdatedAt),
	}
}

func (u userItem) toModel() model.UserSummary {
	return model.UserSummary{
		UserID:    u.UserID,
		Username:  u.Username,
		AvatarURL: u.ProfileImageURL,
	}
}

// guessMimeType derives a MIME type from the extension of an attachment URL.
func guessMimeType(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.Index(t, ";"); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}
