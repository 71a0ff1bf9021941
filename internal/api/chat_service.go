package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/rpc"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService implements rpc.ChatServer.
type ChatService struct {
	coord          *intsync.Coordinator
	followInterval time.Duration
	logger         *zap.Logger
}

// NewChatService creates a chat service. followInterval is the default
// refresh period of FollowChat streams.
func NewChatService(coord *intsync.Coordinator, followInterval time.Duration, logger *zap.Logger) *ChatService {
	if followInterval <= 0 {
		followInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{coord: coord, followInterval: followInterval, logger: logger}
}

func (s *ChatService) ListChats(ctx context.Context, _ *rpc.ListChatsRequest) (*rpc.ListChatsResponse, error) {
	tok, err := token(s.coord)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.FetchChatList(ctx, tok)
	if err != nil {
		return nil, toStatus("list chats", err)
	}
	return &rpc.ListChatsResponse{Chats: res.Data, FromCache: res.FromCache}, nil
}

func (s *ChatService) GetChat(ctx context.Context, req *rpc.GetChatRequest) (*rpc.GetChatResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	tok, err := token(s.coord)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.FetchChatDetail(ctx, tok, req.ChatID)
	if err != nil {
		return nil, toStatus("get chat", err)
	}
	return &rpc.GetChatResponse{Chat: res.Data, FromCache: res.FromCache}, nil
}

// FollowChat streams the chat on every refresh tick until the client goes
// away. A failed tick is reported in the update and the stream continues.
func (s *ChatService) FollowChat(req *rpc.FollowChatRequest, stream grpc.ServerStreamingServer[rpc.ChatUpdate]) error {
	if req.ChatID == "" {
		return grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	tok, err := token(s.coord)
	if err != nil {
		return err
	}
	interval := s.followInterval
	if req.IntervalMs > 0 {
		interval = time.Duration(req.IntervalMs) * time.Millisecond
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	var sendErr error
	handle := s.coord.StartAutoRefresh(ctx, interval, func(ctx context.Context, r intsync.Refresh) {
		update := &rpc.ChatUpdate{Initial: r.Initial}
		res, err := s.coord.FetchChatDetail(ctx, tok, req.ChatID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			update.Error = grpcstatus.Convert(toStatus("get chat", err)).Message()
		} else {
			update.Chat, update.FromCache = res.Data, res.FromCache
		}
		if err := stream.Send(update); err != nil {
			sendErr = err
			cancel()
		}
	})
	s.logger.Debug("following chat", zap.String("chat_id", req.ChatID), zap.Duration("interval", interval))

	<-handle.Done()
	s.logger.Debug("stopped following chat", zap.String("chat_id", req.ChatID))
	return sendErr
}

func (s *ChatService) FindChatByUser(_ context.Context, req *rpc.FindChatByUserRequest) (*rpc.FindChatByUserResponse, error) {
	chat, ok := s.coord.OpenChatFor(req.UserID)
	return &rpc.FindChatByUserResponse{Found: ok, Chat: chat}, nil
}
