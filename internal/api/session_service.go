package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/rpc"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SessionService implements rpc.SessionServer.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	coord       *intsync.Coordinator
	engine      *intsync.Engine
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, coord *intsync.Coordinator, engine *intsync.Engine) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		coord:       coord,
		engine:      engine,
	}
}

func (s *SessionService) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "email and password are required")
	}
	creds, err := s.coord.Login(ctx, req.Email, req.Password, req.Remember)
	if err != nil {
		return nil, toStatus("login", err)
	}
	return &rpc.LoginResponse{
		UserID:     creds.UserID,
		Username:   creds.Username,
		ExpiresAt:  creds.ExpiresAt,
		Remembered: creds.Remember,
	}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *rpc.LogoutRequest) (*rpc.LogoutResponse, error) {
	if err := s.coord.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return &rpc.LogoutResponse{Success: true, Message: "logged out"}, nil
}

func (s *SessionService) GetStatus(ctx context.Context, _ *rpc.GetStatusRequest) (*rpc.GetStatusResponse, error) {
	resp := &rpc.GetStatusResponse{
		Session:  s.sessionName,
		Online:   s.coord.Online(ctx),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if creds, ok := s.coord.Session().Current(); ok {
		resp.LoggedIn = true
		resp.UserID = creds.UserID
		resp.Username = creds.Username
		resp.Remembered = creds.Remember
		resp.Unread = s.coord.Unread()
	}
	if s.engine != nil {
		resp.Polling = s.engine.Running()
	}
	for _, snap := range s.coord.Status().All() {
		resp.Resources = append(resp.Resources, rpc.ResourceStatus{
			Resource:  snap.Resource,
			State:     string(snap.State),
			FromCache: snap.FromCache,
			Error:     snap.Error,
			Fresh:     s.coord.Fresh(snap.Resource, ""),
			UpdatedAt: snap.UpdatedAt,
		})
	}
	return resp, nil
}
