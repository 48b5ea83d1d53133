// Package queue consumes trigger messages from a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/triggers"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultQueue   = "conduit:triggers"
	popTimeout     = time.Second
	errorBackoff   = time.Second
	deadLetterSuffix = ":dead"
)

var ErrInvalidMessage = errors.New("invalid trigger message")

// Message is the JSON document pushed onto the list.
type Message struct {
	IntegrationID string         `json:"integration_id"`
	TriggerType   string         `json:"trigger_type"`
	Data          map[string]any `json:"data"`
}

// ParseMessage decodes and checks a raw list item.
func ParseMessage(raw string) (Message, error) {
	var m Message

	err := json.Unmarshal([]byte(raw), &m)
	if err != nil {
		return m, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if m.IntegrationID == "" || m.TriggerType == "" {
		return m, fmt.Errorf("%w: integration_id and trigger_type are required", ErrInvalidMessage)
	}

	if m.Data == nil {
		m.Data = map[string]any{}
	}

	return m, nil
}

// Trigger pops messages with BLPOP and processes them one at a time, in
// list order. Undecodable messages are moved to "<queue>:dead".
type Trigger struct {
	Queue string

	client    redis.UniversalClient
	processor triggers.Processor
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewTrigger(logger *slog.Logger, client redis.UniversalClient, queue string, processor triggers.Processor) *Trigger {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Trigger{
		Queue:     queue,
		client:    client,
		processor: processor,
		stopCh:    make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}
}

func (t *Trigger) Start(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Starting QueueTrigger")

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := t.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
		}

		err := t.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			t.logger.ErrorContext(ctx, "Error processing message", "error", err)

			select {
			case <-time.After(errorBackoff):
			case <-t.stopCh:
			case <-ctx.Done():
			}
		}
	}
}

// Poll waits up to one second for a message and processes it.
func (t *Trigger) Poll(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, popTimeout, t.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	raw := result[1]

	msg, err := ParseMessage(raw)
	if err != nil {
		t.logger.WarnContext(ctx, "Moving invalid message to dead letter list", "error", err)

		pushErr := t.client.RPush(ctx, t.Queue+deadLetterSuffix, raw).Err()
		if pushErr != nil {
			return fmt.Errorf("failed to dead-letter message: %w", pushErr)
		}

		return nil
	}

	_, err = triggers.Dispatch(ctx, t.logger, t.processor, msg.IntegrationID, msg.TriggerType, msg.Data)

	return err
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping QueueTrigger")

	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()

	return nil
}
