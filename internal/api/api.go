// Package api implements the daemon's gRPC services on top of the sync
// coordinator.
package api

import "github.com/matheus3301/chatsync/internal/rpc"

var (
	_ rpc.SessionServer = (*SessionService)(nil)
	_ rpc.ChatServer    = (*ChatService)(nil)
	_ rpc.UserServer    = (*UserService)(nil)
	_ rpc.MediaServer   = (*MediaService)(nil)
	_ rpc.CacheServer   = (*CacheService)(nil)
	_ rpc.EventServer   = (*EventService)(nil)
)
