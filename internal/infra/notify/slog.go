package notify

import (
	"context"
	"log/slog"

	"libcirc/internal/usecase/shared"
)

// SlogSink is the fallback sink used when no redis address is configured:
// events still land in the structured log, nothing is silently dropped.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Publish(_ context.Context, event shared.Event) error {
	args := []any{
		slog.String("kind", string(event.Kind)),
		slog.String("book_id", event.BookID.String()),
		slog.String("user_id", event.UserID.String()),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.RecordID != nil {
		args = append(args, slog.String("record_id", event.RecordID.String()))
	}
	s.logger.Info("circulation event", args...)
	return nil
}

var _ shared.NotificationSink = (*SlogSink)(nil)
