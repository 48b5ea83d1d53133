package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/channels/kafka"
	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/triggers"
	"github.com/dukex/conduit/pkg/triggers/bus"
	kafkatrigger "github.com/dukex/conduit/pkg/triggers/kafka"
	"github.com/dukex/conduit/pkg/triggers/queue"
	"github.com/dukex/conduit/pkg/triggers/schedule"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNoTriggers     = errors.New("no triggers configured")
	ErrQueueNeedRedis = errors.New("--queue requires --redis-url")
)

const stopTimeout = 30 * time.Second

type triggerSettings struct {
	Schedules     []string
	Queue         string
	KafkaTriggers []string
	KafkaBrokers  string
	ConsumeEvents bool
}

// triggerSet starts its triggers together and stops them in reverse order.
type triggerSet struct {
	logger   *slog.Logger
	triggers []triggers.Trigger
}

func buildTriggers(logger *slog.Logger, rt *cmd.Runtime, settings triggerSettings) (*triggerSet, error) {
	set := &triggerSet{logger: logger}

	if settings.ConsumeEvents {
		set.triggers = append(set.triggers, bus.NewConsumer(logger, rt.EventBus, rt.Engine))
	}

	if len(settings.Schedules) > 0 {
		entries := make([]schedule.Entry, 0, len(settings.Schedules))

		for _, spec := range settings.Schedules {
			entry, err := schedule.ParseEntry(spec)
			if err != nil {
				return nil, err
			}

			entries = append(entries, entry)
		}

		t, err := schedule.NewScheduleTrigger(logger, rt.Engine, clockwork.NewRealClock(), entries...)
		if err != nil {
			return nil, err
		}

		set.triggers = append(set.triggers, t)
	}

	if settings.Queue != "" {
		if rt.Redis == nil {
			return nil, ErrQueueNeedRedis
		}

		set.triggers = append(set.triggers, queue.NewTrigger(logger, rt.Redis, settings.Queue, rt.Engine))
	}

	for _, spec := range settings.KafkaTriggers {
		cfg, err := parseKafkaTrigger(spec, settings.KafkaBrokers)
		if err != nil {
			return nil, err
		}

		t, err := kafkatrigger.NewTrigger(logger, cfg, rt.Engine)
		if err != nil {
			return nil, err
		}

		set.triggers = append(set.triggers, t)
	}

	if len(set.triggers) == 0 {
		return nil, ErrNoTriggers
	}

	return set, nil
}

// parseKafkaTrigger reads "topic|integration|trigger_type".
func parseKafkaTrigger(spec, brokers string) (kafkatrigger.Config, error) {
	parts := strings.Split(spec, "|")
	if len(parts) != 3 {
		return kafkatrigger.Config{}, fmt.Errorf("invalid kafka trigger %q: want topic|integration|trigger_type", spec)
	}

	return kafkatrigger.Config{
		Topic:         strings.TrimSpace(parts[0]),
		IntegrationID: strings.TrimSpace(parts[1]),
		TriggerType:   strings.TrimSpace(parts[2]),
		Brokers:       kafka.ParseBrokers(brokers),
	}, nil
}

// Run starts every trigger and blocks until ctx is done.
func (s *triggerSet) Run(ctx context.Context) error {
	started := 0

	for _, t := range s.triggers {
		err := t.Start(ctx)
		if err != nil {
			s.stop(ctx, s.triggers[:started])

			return fmt.Errorf("failed to start trigger: %w", err)
		}

		started++
	}

	s.logger.InfoContext(ctx, "Worker started", "triggers", started)

	<-ctx.Done()

	s.stop(ctx, s.triggers)

	return nil
}

func (s *triggerSet) stop(ctx context.Context, started []triggers.Trigger) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	for i := len(started) - 1; i >= 0; i-- {
		err := started[i].Stop(stopCtx)
		if err != nil {
			s.logger.ErrorContext(stopCtx, "Failed to stop trigger", "error", err)
		}
	}
}
