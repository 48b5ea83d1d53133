// Package schedule fires triggers on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/triggers"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Entry is one configured schedule.
type Entry struct {
	ID            string
	CronExpr      string
	IntegrationID string
	TriggerType   string
	Data          map[string]any
}

// ParseEntry reads "<cron>|<integration_id>|<trigger_type>", the format used
// by the --schedule flag.
func ParseEntry(spec string) (Entry, error) {
	parts := strings.Split(spec, "|")
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("invalid schedule %q: want <cron>|<integration_id>|<trigger_type>", spec)
	}

	e := Entry{
		ID:            strings.TrimSpace(parts[2]) + "@" + strings.TrimSpace(parts[0]),
		CronExpr:      strings.TrimSpace(parts[0]),
		IntegrationID: strings.TrimSpace(parts[1]),
		TriggerType:   strings.TrimSpace(parts[2]),
	}

	return e, e.Validate()
}

func (e Entry) Validate() error {
	if e.ID == "" {
		return errors.New("schedule trigger ID is required")
	}

	if e.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if e.IntegrationID == "" || e.TriggerType == "" {
		return errors.New("schedule trigger integration and trigger type are required")
	}

	if _, err := cron.ParseStandard(e.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// ScheduleTrigger runs a set of entries on one cron scheduler. Overlapping
// firings of the same entry are skipped.
type ScheduleTrigger struct {
	entries   []Entry
	processor triggers.Processor
	clock     clockwork.Clock
	cron      *cron.Cron
	logger    *slog.Logger
}

func NewScheduleTrigger(logger *slog.Logger, processor triggers.Processor, clock clockwork.Clock, entries ...Entry) (*ScheduleTrigger, error) {
	for _, e := range entries {
		err := e.Validate()
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.ID, err)
		}
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &ScheduleTrigger{
		entries:   entries,
		processor: processor,
		clock:     clock,
		logger:    logger.With("module", "schedule_trigger"),
	}, nil
}

func (t *ScheduleTrigger) Start(ctx context.Context) error {
	if len(t.entries) == 0 {
		t.logger.InfoContext(ctx, "No schedules configured")

		return nil
	}

	cronLogger := cronLogger{t.logger}

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	for _, e := range t.entries {
		entry := e

		id, err := t.cron.AddFunc(entry.CronExpr, func() {
			t.Fire(context.WithoutCancel(ctx), entry)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron job for schedule %s: %w", entry.ID, err)
		}

		t.logger.InfoContext(ctx, "Added cron job", "schedule_id", entry.ID, "cron", entry.CronExpr, "entry_id", id)
	}

	t.cron.Start()

	return nil
}

// Fire dispatches one firing of entry synchronously.
func (t *ScheduleTrigger) Fire(ctx context.Context, entry Entry) {
	data := models.CloneMap(entry.Data)
	if data == nil {
		data = map[string]any{}
	}

	data["schedule_id"] = entry.ID
	data["timestamp"] = t.clock.Now().UTC().Format(time.RFC3339)

	_, _ = triggers.Dispatch(ctx, t.logger, t.processor, entry.IntegrationID, entry.TriggerType, data)
}

// Stop waits for running jobs or for ctx.
func (t *ScheduleTrigger) Stop(ctx context.Context) error {
	if t.cron == nil {
		return nil
	}

	t.logger.InfoContext(ctx, "Stopping ScheduleTrigger")

	select {
	case <-t.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
