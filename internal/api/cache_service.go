package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/rpc"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// CacheService implements rpc.CacheServer.
type CacheService struct {
	coord  *intsync.Coordinator
	logger *zap.Logger
}

func NewCacheService(coord *intsync.Coordinator, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{coord: coord, logger: logger}
}

func (s *CacheService) Stats(_ context.Context, _ *rpc.CacheStatsRequest) (*rpc.CacheStatsResponse, error) {
	st, err := s.coord.Stats()
	if err != nil {
		return nil, toStatus("cache stats", err)
	}
	return &rpc.CacheStatsResponse{
		Chats:       st.Chats,
		ChatDetails: st.ChatDetails,
		Users:       st.Users,
		Seen:        st.Seen,
		ImageBytes:  st.ImageBytes,
	}, nil
}

func (s *CacheService) Clear(ctx context.Context, req *rpc.ClearCacheRequest) (*rpc.ClearCacheResponse, error) {
	target, err := intsync.ParseCacheTarget(req.Target)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.coord.Clear(ctx, target); err != nil {
		return nil, toStatus("clear cache", err)
	}
	s.logger.Info("cache cleared", zap.String("target", string(target)))
	return &rpc.ClearCacheResponse{Target: string(target)}, nil
}
