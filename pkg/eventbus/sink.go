package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
)

// LogSink stores automation log entries.
type LogSink interface {
	InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error
}

// NotifyingSink stores each entry and then announces it on the bus. A
// failed publish is logged; the entry is already durable.
type NotifyingSink struct {
	logger    *slog.Logger
	sink      LogSink
	publisher EventPublisher
}

func NewNotifyingSink(logger *slog.Logger, sink LogSink, publisher EventPublisher) *NotifyingSink {
	return &NotifyingSink{
		logger:    logger.With("module", "log_notifier"),
		sink:      sink,
		publisher: publisher,
	}
}

func (s *NotifyingSink) InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error {
	err := s.sink.InsertLogEntry(ctx, entry)
	if err != nil {
		return err
	}

	err = s.publisher.Publish(ctx, entry.RunID, events.NewLogEntryAppended(entry.Clone()))
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish log entry",
			"run_id", entry.RunID, "action", entry.Action, "error", err)
	}

	return nil
}
