// Package bus moves triggers through the event bus: producers enqueue
// TriggerReceived events and a consumer feeds them to the engine.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/triggers"
)

// Publisher enqueues triggers on the bus.
type Publisher struct {
	publisher eventbus.EventPublisher
}

func NewPublisher(publisher eventbus.EventPublisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Enqueue publishes the trigger keyed by integration so a partitioned
// broker keeps one integration's triggers in order.
func (p *Publisher) Enqueue(ctx context.Context, trigger models.Trigger) error {
	return p.publisher.Publish(ctx, trigger.IntegrationID, events.NewTriggerReceived(trigger))
}

// Consumer processes queued triggers and announces each finished run.
type Consumer struct {
	logger    *slog.Logger
	bus       eventbus.EventBus
	processor triggers.Processor
}

func NewConsumer(logger *slog.Logger, bus eventbus.EventBus, processor triggers.Processor) *Consumer {
	return &Consumer{
		logger:    logger.With("module", "trigger_consumer"),
		bus:       bus,
		processor: processor,
	}
}

// Start registers the handler and begins consuming until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	err := c.bus.Handle(events.TriggerReceivedEvent, c.handle)
	if err != nil {
		return err
	}

	return c.bus.Subscribe(ctx)
}

func (c *Consumer) Stop(context.Context) error {
	return nil
}

func (c *Consumer) handle(ctx context.Context, event any) error {
	received, ok := event.(*events.TriggerReceived)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	t := received.Trigger

	results, err := triggers.Dispatch(ctx, c.logger, c.processor, t.IntegrationID, t.TriggerType, t.Data)
	if err != nil {
		return err
	}

	for _, r := range results {
		err := c.bus.Publish(ctx, r.RunID, events.NewRunFinished(r))
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to publish run result", "run_id", r.RunID, "error", err)
		}
	}

	return nil
}
