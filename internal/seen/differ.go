package seen

import (
	"context"

	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

// DiffResult summarizes one poll cycle.
type DiffResult struct {
	// Notify holds the chats whose new message should raise a notification.
	Notify []model.ChatSummary
	// Baselined counts chats recorded for the first time.
	Baselined int
	// Updated counts chats whose last message changed, notified or not.
	Updated int
}

// Differ compares a freshly polled chat list against the tracker.
type Differ struct {
	tracker *Tracker
	logger  *zap.Logger
}

// NewDiffer creates a differ over tracker.
func NewDiffer(tracker *Tracker, logger *zap.Logger) *Differ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Differ{tracker: tracker, logger: logger}
}

// Diff walks chats in order. A chat with no last message is skipped; one seen
// for the first time is recorded silently; one whose last message changed is
// recorded and, unless localUserID sent it, added to Notify. With an empty
// localUserID nothing can be told apart from a self-sent message, so changes
// are only recorded.
func (d *Differ) Diff(ctx context.Context, chats []model.ChatSummary, localUserID string) DiffResult {
	var res DiffResult
	for _, chat := range chats {
		current := chat.LastMessageID
		if current == "" {
			continue
		}

		last, ok := d.tracker.LastSeen(chat.ID)
		switch {
		case !ok:
			res.Baselined++
		case last != current:
			res.Updated++
			if localUserID != "" && chat.LastMessageSenderID != localUserID {
				res.Notify = append(res.Notify, chat)
			}
		default:
			continue
		}

		if err := d.tracker.RecordSeen(ctx, chat.ID, current); err != nil {
			d.logger.Warn("failed to persist seen message",
				zap.String("chat_id", chat.ID), zap.Error(err))
		}
	}
	return res
}
