package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/imagecache"
	"github.com/matheus3301/chatsync/internal/rpc"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// UserService implements rpc.UserServer.
type UserService struct {
	coord *intsync.Coordinator
}

func NewUserService(coord *intsync.Coordinator) *UserService {
	return &UserService{coord: coord}
}

func (s *UserService) SearchUsers(ctx context.Context, req *rpc.SearchUsersRequest) (*rpc.SearchUsersResponse, error) {
	tok, err := token(s.coord)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.SearchUsers(ctx, tok, req.Query)
	if err != nil {
		return nil, toStatus("search users", err)
	}
	return &rpc.SearchUsersResponse{Users: res.Data, FromCache: res.FromCache}, nil
}

// MediaService implements rpc.MediaServer.
type MediaService struct {
	coord *intsync.Coordinator
}

func NewMediaService(coord *intsync.Coordinator) *MediaService {
	return &MediaService{coord: coord}
}

func (s *MediaService) LoadAvatar(ctx context.Context, req *rpc.LoadAvatarRequest) (*rpc.LoadAvatarResponse, error) {
	if req.URL == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "url is required")
	}
	key := req.Key
	if key == "" && req.Username != "" {
		key = imagecache.KeyForUsername(req.Username)
	}
	data, err := s.coord.LoadAvatar(ctx, req.URL, key)
	if err != nil {
		return nil, toStatus("load avatar", err)
	}
	return &rpc.LoadAvatarResponse{Key: key, Data: data}, nil
}
