package api

import (
	"encoding/json"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// DefaultWatchPrefixes are streamed when a watcher names none.
var DefaultWatchPrefixes = []string{"notify.", "chats."}

// EventService implements rpc.EventServer over the bus.
type EventService struct {
	bus         *bus.Bus
	sessionName string
	logger      *zap.Logger
}

func NewEventService(b *bus.Bus, sessionName string, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{bus: b, sessionName: sessionName, logger: logger}
}

func (s *EventService) Watch(req *rpc.WatchRequest, stream grpc.ServerStreamingServer[rpc.Event]) error {
	prefixes := req.Prefixes
	if len(prefixes) == 0 {
		prefixes = DefaultWatchPrefixes
	}
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if !matches(evt.Kind, prefixes) {
				continue
			}
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.Send(&rpc.Event{
				ID:         evt.ID,
				Session:    s.sessionName,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
				Payload:    payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func matches(kind string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}
