package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls every daemon service over one connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath. The connection is
// lazy; an absent daemon surfaces as codes.Unavailable on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(CallOption()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection, which must default to the JSON
// codec.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

func (c *Client) Close() error { return c.conn.Close() }

func invoke[Req, Resp any](ctx context.Context, c *Client, service, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func stream[Req, Resp any](ctx context.Context, c *Client, desc *grpc.ServiceDesc, idx int, in *Req, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Resp], error) {
	sd := &desc.Streams[idx]
	cs, err := c.conn.NewStream(ctx, sd, "/"+desc.ServiceName+"/"+sd.StreamName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Resp]{ClientStream: cs}
	if err := x.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) Login(ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
	return invoke[LoginRequest, LoginResponse](ctx, c, SessionServiceName, "Login", in)
}

func (c *Client) Logout(ctx context.Context) (*LogoutResponse, error) {
	return invoke[LogoutRequest, LogoutResponse](ctx, c, SessionServiceName, "Logout", &LogoutRequest{})
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusRequest, GetStatusResponse](ctx, c, SessionServiceName, "GetStatus", &GetStatusRequest{})
}

func (c *Client) ListChats(ctx context.Context) (*ListChatsResponse, error) {
	return invoke[ListChatsRequest, ListChatsResponse](ctx, c, ChatServiceName, "ListChats", &ListChatsRequest{})
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*GetChatResponse, error) {
	return invoke[GetChatRequest, GetChatResponse](ctx, c, ChatServiceName, "GetChat", &GetChatRequest{ChatID: chatID})
}

func (c *Client) FollowChat(ctx context.Context, in *FollowChatRequest) (grpc.ServerStreamingClient[ChatUpdate], error) {
	return stream[FollowChatRequest, ChatUpdate](ctx, c, &ChatServiceDesc, 0, in)
}

func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest) (*SendResponse, error) {
	return invoke[SendMessageRequest, SendResponse](ctx, c, ChatServiceName, "SendMessage", in)
}

func (c *Client) CreateChat(ctx context.Context, in *CreateChatRequest) (*SendResponse, error) {
	return invoke[CreateChatRequest, SendResponse](ctx, c, ChatServiceName, "CreateChat", in)
}

func (c *Client) FindChatByUser(ctx context.Context, userID string) (*FindChatByUserResponse, error) {
	return invoke[FindChatByUserRequest, FindChatByUserResponse](ctx, c, ChatServiceName, "FindChatByUser", &FindChatByUserRequest{UserID: userID})
}

func (c *Client) SearchUsers(ctx context.Context, query string) (*SearchUsersResponse, error) {
	return invoke[SearchUsersRequest, SearchUsersResponse](ctx, c, UserServiceName, "SearchUsers", &SearchUsersRequest{Query: query})
}

func (c *Client) LoadAvatar(ctx context.Context, in *LoadAvatarRequest) (*LoadAvatarResponse, error) {
	return invoke[LoadAvatarRequest, LoadAvatarResponse](ctx, c, MediaServiceName, "LoadAvatar", in)
}

func (c *Client) CacheStats(ctx context.Context) (*CacheStatsResponse, error) {
	return invoke[CacheStatsRequest, CacheStatsResponse](ctx, c, CacheServiceName, "Stats", &CacheStatsRequest{})
}

func (c *Client) ClearCache(ctx context.Context, target string) (*ClearCacheResponse, error) {
	return invoke[ClearCacheRequest, ClearCacheResponse](ctx, c, CacheServiceName, "Clear", &ClearCacheRequest{Target: target})
}

func (c *Client) Watch(ctx context.Context, prefixes ...string) (grpc.ServerStreamingClient[Event], error) {
	return stream[WatchRequest, Event](ctx, c, &EventServiceDesc, 0, &WatchRequest{Prefixes: prefixes})
}
