// Package transport is the HTTP collaborator of the sync engine: JSON reads,
// JSON and multipart writes, and raw byte downloads, all with bearer auth.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every API request.
	DefaultTimeout = 15 * time.Second
	// TokenPrefix is prepended to the session token in the Authorization header.
	TokenPrefix = "Bearer "
)

// Client issues authenticated requests against a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "chatsync",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root, always ending in a slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Resolve turns a path relative to the API root into an absolute URL.
// Absolute URLs are returned unchanged.
func (c *Client) Resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return c.baseURL + strings.TrimLeft(ref, "/")
}

// FilePart is the file half of a multipart field.
type FilePart struct {
	Data     []byte
	Filename string
	MimeType string
}

// FormField is one multipart field: a plain value, or a file when File is set.
type FormField struct {
	Name  string
	Value string
	File  *FilePart
}

// GetJSON fetches path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path, token string, out any) error {
	data, err := c.do(ctx, http.MethodGet, c.Resolve(path), nil, "", token)
	if err != nil {
		return err
	}
	return decode(data, out)
}

// PostJSON sends body as JSON and decodes the response into out (may be nil).
func (c *Client) PostJSON(ctx context.Context, path string, body any, token string, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	data, err := c.do(ctx, http.MethodPost, c.Resolve(path), r, "application/json", token)
	if err != nil {
		return err
	}
	return decode(data, out)
}

// PostMultipart sends fields as multipart/form-data and decodes the response into out.
func (c *Client) PostMultipart(ctx context.Context, path string, fields []FormField, token string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.File == nil {
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return fmt.Errorf("write field %q: %w", f.Name, err)
			}
			continue
		}
		part, err := w.CreatePart(fileHeader(f.Name, f.File))
		if err != nil {
			return fmt.Errorf("create form file %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.File.Data); err != nil {
			return fmt.Errorf("write file data: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.Resolve(path), &buf, w.FormDataContentType(), token)
	if err != nil {
		return err
	}
	return decode(data, out)
}

// GetBytes downloads ref (absolute or relative to the API root).
func (c *Client) GetBytes(ctx context.Context, ref, token string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.Resolve(ref), nil, "", token)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", TokenPrefix+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, &NetworkError{Op: method, URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method, URL: target, Err: err}
	}
	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

func decode(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Err: err, Body: truncate(string(data), maxErrorBody)}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileHeader(name string, f *FilePart) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(f.Filename)))
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	return h
}
