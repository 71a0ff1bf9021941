package api

import (
	"context"
	"strings"

	"github.com/matheus3301/chatsync/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SendMessage posts a message. Writes are never answered from the cache.
func (s *ChatService) SendMessage(ctx context.Context, req *rpc.SendMessageRequest) (*rpc.SendResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	if strings.TrimSpace(req.Content) == "" && req.Attachment == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message needs content or an attachment")
	}
	tok, err := token(s.coord)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.SendMessage(ctx, tok, req.ChatID, req.Content, req.Attachment)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	s.logger.Debug("message sent", zap.String("chat_id", req.ChatID), zap.Bool("attachment", req.Attachment != nil))
	return &rpc.SendResponse{Success: res.Success, ChatID: res.ChatID}, nil
}

// CreateChat starts a conversation. Callers should try FindChatByUser first
// so an existing chat is reused.
func (s *ChatService) CreateChat(ctx context.Context, req *rpc.CreateChatRequest) (*rpc.SendResponse, error) {
	if req.UserID == "" || strings.TrimSpace(req.Content) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user_id and content are required")
	}
	tok, err := token(s.coord)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.CreateChat(ctx, tok, req.UserID, req.Content)
	if err != nil {
		return nil, toStatus("create chat", err)
	}
	return &rpc.SendResponse{Success: res.Success, ChatID: res.ChatID}, nil
}
