// Package remote speaks the chat service's JSON API on top of transport and
// converts its payloads into model types.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://moviles-api-085771307784.herokuapp.com/"

// DefaultDownloadTimeout bounds a single image or attachment download.
const DefaultDownloadTimeout = 10 * time.Second

const (
	pathChatsAll        = "api/chats/all/"
	pathChats           = "api/chats/"
	pathChatByID        = "api/chats/id/%s/"
	pathMessages        = "api/chats/messages"
	pathUsersAll        = "api/users/all/"
	pathProfile         = "api/users/"
	pathLogin           = "api/users/login"
	pathLogout          = "api/users//logout"
	pathSessionValidate = "api/users/sessions/validate"
)

// ErrEmptyMessage is returned when a message has neither text nor attachment.
var ErrEmptyMessage = errors.New("message needs content or an attachment")

// LoginResult is the token issued by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
}

// Profile is the authenticated user's own profile.
type Profile struct {
	UserID        string
	Username      string
	EmailVerified bool
	AvatarURL     string
}

// Client calls the chat service endpoints.
type Client struct {
	t               *transport.Client
	downloadTimeout time.Duration
	logger          *zap.Logger
}

// New creates an API client over t.
func New(t *transport.Client, downloadTimeout time.Duration, logger *zap.Logger) *Client {
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{t: t, downloadTimeout: downloadTimeout, logger: logger}
}

// ListChats fetches the chat list of the authenticated user.
func (c *Client) ListChats(ctx context.Context, token string) ([]model.ChatSummary, error) {
	var resp chatsListResponse
	if err := c.t.GetJSON(ctx, pathChatsAll, token, &resp); err != nil {
		return nil, err
	}
	chats := make([]model.ChatSummary, 0, len(resp.Chats))
	for _, item := range resp.Chats {
		chats = append(chats, item.toModel())
	}
	return chats, nil
}

// GetChat fetches one chat with its messages.
func (c *Client) GetChat(ctx context.Context, token, chatID string) (model.ChatDetail, error) {
	var resp chatDetailResponse
	if err := c.t.GetJSON(ctx, fmt.Sprintf(pathChatByID, url.PathEscape(chatID)), token, &resp); err != nil {
		return model.ChatDetail{}, err
	}
	detail := resp.toModel()
	if detail.ID == "" {
		detail.ID = chatID
	}
	return detail, nil
}

// CreateChat opens a conversation with userID, seeded with content.
func (c *Client) CreateChat(ctx context.Context, token, userID, content string) (model.SendResult, error) {
	var resp successResponse
	req := createChatRequest{UserID: userID, Content: content}
	if err := c.t.PostJSON(ctx, pathChats, req, token, &resp); err != nil {
		return model.SendResult{}, err
	}
	return model.SendResult{Success: resp.Success, ChatID: resp.ChatID}, nil
}

// SendMessage posts a message to chatID as multipart form data, with the
// attachment as a file part when present.
func (c *Client) SendMessage(ctx context.Context, token, chatID, content string, att *model.Attachment) (model.SendResult, error) {
	if content == "" && att == nil {
		return model.SendResult{}, ErrEmptyMessage
	}
	fields := []transport.FormField{
		{Name: "chat_id", Value: chatID},
		{Name: "content", Value: content},
	}
	if att != nil {
		fields = append(fields, transport.FormField{
			Name: "attachment",
			File: &transport.FilePart{Data: att.Data, Filename: att.Filename, MimeType: att.MimeType},
		})
	}
	var resp successResponse
	if err := c.t.PostMultipart(ctx, pathMessages, fields, token, &resp); err != nil {
		return model.SendResult{}, err
	}
	return model.SendResult{Success: resp.Success, ChatID: chatID}, nil
}

// ListUsers fetches the user directory.
func (c *Client) ListUsers(ctx context.Context, token string) ([]model.UserSummary, error) {
	var resp usersListResponse
	if err := c.t.GetJSON(ctx, pathUsersAll, token, &resp); err != nil {
		return nil, err
	}
	users := make([]model.UserSummary, 0, len(resp.Users))
	for _, u := range resp.Users {
		users = append(users, u.toModel())
	}
	return users, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
	var resp loginResponse
	req := loginRequest{Email: email, Password: password, LoginRemember: remember}
	if err := c.t.PostJSON(ctx, pathLogin, req, "", &resp); err != nil {
		return LoginResult{}, err
	}
	if resp.JWT == "" {
		return LoginResult{}, &transport.DecodeError{Err: errors.New("login response has no token")}
	}
	return LoginResult{Token: resp.JWT, ExpiresAt: parseTime(resp.ExpirationDate)}, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var resp profileResponse
	if err := c.t.GetJSON(ctx, pathProfile, token, &resp); err != nil {
		return Profile{}, err
	}
	return Profile{
		UserID:        resp.ID,
		Username:      resp.Username,
		EmailVerified: resp.EmailIsVerified,
		AvatarURL:     resp.ProfileImageURL,
	}, nil
}

// Logout invalidates token on the server.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.t.PostJSON(ctx, pathLogout, nil, token, nil)
}

// ValidateSession asks the server whether token is still accepted.
func (c *Client) ValidateSession(ctx context.Context, token string) (bool, error) {
	var resp sessionValidationResponse
	if err := c.t.PostJSON(ctx, pathSessionValidate, sessionValidationRequest{Token: token}, token, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// Download fetches an image or attachment, relative or absolute.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()
	data, err := c.t.GetBytes(ctx, ref, "")
	if err != nil {
		c.logger.Debug("download failed", zap.String("ref", ref), zap.Error(err))
		return nil, err
	}
	return data, nil
}
