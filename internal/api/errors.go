package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/chatsync/internal/imagecache"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/session"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/transport"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps a coordinator failure onto a gRPC status, prefixing the
// message with op.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		he *transport.HTTPError
		ne *transport.NetworkError
		de *transport.DecodeError
	)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return grpcstatus.Errorf(codes.Unauthenticated, "%s: not logged in", op)
	case intsync.IsNoData(err):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.As(err, &he):
		if he.Status == http.StatusUnauthorized || he.Code == transport.CodeInvalidSession {
			return grpcstatus.Errorf(codes.Unauthenticated, "%s: %s", op, he.UserMessage())
		}
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %s", op, he.UserMessage())
	case errors.As(err, &ne):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.As(err, &de):
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	case errors.Is(err, remote.ErrEmptyMessage), errors.Is(err, imagecache.ErrInvalidKey):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return grpcstatus.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	}
	return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
}

// token returns the session's bearer token or an Unauthenticated status.
func token(c *intsync.Coordinator) (string, error) {
	t, err := c.Session().Token()
	if err != nil {
		return "", toStatus("session", err)
	}
	return t, nil
}
