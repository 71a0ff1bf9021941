package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName = "chatsync.v1.SessionService"
	ChatServiceName    = "chatsync.v1.ChatService"
	UserServiceName    = "chatsync.v1.UserService"
	MediaServiceName   = "chatsync.v1.MediaService"
	CacheServiceName   = "chatsync.v1.CacheService"
	EventServiceName   = "chatsync.v1.EventService"
)

type SessionServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
}

type ChatServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	GetChat(context.Context, *GetChatRequest) (*GetChatResponse, error)
	FollowChat(*FollowChatRequest, grpc.ServerStreamingServer[ChatUpdate]) error
	SendMessage(context.Context, *SendMessageRequest) (*SendResponse, error)
	CreateChat(context.Context, *CreateChatRequest) (*SendResponse, error)
	FindChatByUser(context.Context, *FindChatByUserRequest) (*FindChatByUserResponse, error)
}

type UserServer interface {
	SearchUsers(context.Context, *SearchUsersRequest) (*SearchUsersResponse, error)
}

type MediaServer interface {
	LoadAvatar(context.Context, *LoadAvatarRequest) (*LoadAvatarResponse, error)
}

type CacheServer interface {
	Stats(context.Context, *CacheStatsRequest) (*CacheStatsResponse, error)
	Clear(context.Context, *ClearCacheRequest) (*ClearCacheResponse, error)
}

type EventServer interface {
	Watch(*WatchRequest, grpc.ServerStreamingServer[Event]) error
}

// unary builds the method descriptor for a request/response call on a
// server of type S.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		},
	}
}

// serverStream builds the descriptor for a call answered with a stream.
func serverStream[S, Req, Resp any](method string, call func(S, *Req, grpc.ServerStreamingServer[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(S), in, &grpc.GenericServerStream[Req, Resp]{ServerStream: stream})
		},
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
	},
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListChats", ChatServer.ListChats),
		unary(ChatServiceName, "GetChat", ChatServer.GetChat),
		unary(ChatServiceName, "SendMessage", ChatServer.SendMessage),
		unary(ChatServiceName, "CreateChat", ChatServer.CreateChat),
		unary(ChatServiceName, "FindChatByUser", ChatServer.FindChatByUser),
	},
	Streams: []grpc.StreamDesc{
		serverStream("FollowChat", ChatServer.FollowChat),
	},
}

var UserServiceDesc = grpc.ServiceDesc{
	ServiceName: UserServiceName,
	HandlerType: (*UserServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(UserServiceName, "SearchUsers", UserServer.SearchUsers),
	},
}

var MediaServiceDesc = grpc.ServiceDesc{
	ServiceName: MediaServiceName,
	HandlerType: (*MediaServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MediaServiceName, "LoadAvatar", MediaServer.LoadAvatar),
	},
}

var CacheServiceDesc = grpc.ServiceDesc{
	ServiceName: CacheServiceName,
	HandlerType: (*CacheServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(CacheServiceName, "Stats", CacheServer.Stats),
		unary(CacheServiceName, "Clear", CacheServer.Clear),
	},
}

var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: EventServiceName,
	HandlerType: (*EventServer)(nil),
	Streams: []grpc.StreamDesc{
		serverStream("Watch", EventServer.Watch),
	},
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

func RegisterUserServer(s grpc.ServiceRegistrar, srv UserServer) {
	s.RegisterService(&UserServiceDesc, srv)
}

func RegisterMediaServer(s grpc.ServiceRegistrar, srv MediaServer) {
	s.RegisterService(&MediaServiceDesc, srv)
}

func RegisterCacheServer(s grpc.ServiceRegistrar, srv CacheServer) {
	s.RegisterService(&CacheServiceDesc, srv)
}

func RegisterEventServer(s grpc.ServiceRegistrar, srv EventServer) {
	s.RegisterService(&EventServiceDesc, srv)
}
