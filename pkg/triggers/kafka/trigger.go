// Package kafka starts scenario runs from messages on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dukex/conduit/pkg/triggers"
)

var (
	ErrMissingTopic   = errors.New("kafka trigger topic is required")
	ErrMissingBrokers = errors.New("kafka trigger brokers are required")
	ErrMissingTarget  = errors.New("kafka trigger integration and trigger type are required")
)

const (
	DefaultConsumerGroup = "conduit-triggers"

	kafkaSessionTimeout    = 10 * time.Second
	kafkaHeartbeatInterval = 3 * time.Second
	kafkaRetryInterval     = 5 * time.Second
)

// Config binds one topic to one integration trigger type.
type Config struct {
	Topic         string
	Brokers       []string
	ConsumerGroup string
	IntegrationID string
	TriggerType   string
}

func (c Config) Validate() error {
	if c.Topic == "" {
		return ErrMissingTopic
	}

	if len(c.Brokers) == 0 {
		return ErrMissingBrokers
	}

	if c.IntegrationID == "" || c.TriggerType == "" {
		return ErrMissingTarget
	}

	return nil
}

type Trigger struct {
	config    Config
	processor triggers.Processor
	logger    *slog.Logger
	consumer  sarama.ConsumerGroup
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewTrigger(logger *slog.Logger, config Config, processor triggers.Processor) (*Trigger, error) {
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = DefaultConsumerGroup
	}

	err := config.Validate()
	if err != nil {
		return nil, err
	}

	return &Trigger{
		config:    config,
		processor: processor,
		logger: logger.With(
			"module", "kafka_trigger",
			"topic", config.Topic,
			"consumer_group", config.ConsumerGroup,
		),
	}, nil
}

func (t *Trigger) Start(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Starting Kafka trigger", "brokers", t.config.Brokers)

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(t.config.Brokers, t.config.ConsumerGroup, config)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	t.consumer = consumer

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel

	t.wg.Add(2)

	go t.consume(runCtx)
	go t.monitorErrors(runCtx)

	return nil
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping Kafka trigger")

	if t.cancel == nil {
		return nil
	}

	t.cancel()
	t.wg.Wait()

	return t.consumer.Close()
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	handler := &consumerGroupHandler{trigger: t}

	for {
		err := t.consumer.Consume(ctx, []string{t.config.Topic}, handler)
		if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
			t.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)

			select {
			case <-ctx.Done():
			case <-time.After(kafkaRetryInterval):
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (t *Trigger) monitorErrors(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case err, ok := <-t.consumer.Errors():
			if !ok {
				return
			}

			t.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// MessageData converts a consumed record into trigger data. JSON values are
// decoded; anything else is kept under raw_message.
func MessageData(msg *sarama.ConsumerMessage) map[string]any {
	var payload any

	if len(msg.Value) > 0 {
		err := json.Unmarshal(msg.Value, &payload)
		if err != nil {
			payload = map[string]any{"raw_message": string(msg.Value)}
		}
	}

	headers := make(map[string]any, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}

		headers[string(h.Key)] = string(h.Value)
	}

	data := map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       string(msg.Key),
		"message":   payload,
		"headers":   headers,
	}

	if !msg.Timestamp.IsZero() {
		data["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339)
	}

	return data
}

type consumerGroupHandler struct {
	trigger *Trigger
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.trigger.logger.InfoContext(session.Context(), "Kafka consumer group session started")

	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.trigger.logger.InfoContext(session.Context(), "Kafka consumer group session ended")

	return nil
}

// ConsumeClaim processes a partition in offset order. A message is marked
// only after its runs finished, so a crash redelivers it.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	cfg := h.trigger.config

	for msg := range claim.Messages() {
		h.trigger.logger.DebugContext(ctx, "Received Kafka message",
			"partition", msg.Partition, "offset", msg.Offset)

		_, err := triggers.Dispatch(ctx, h.trigger.logger, h.trigger.processor,
			cfg.IntegrationID, cfg.TriggerType, MessageData(msg))
		if err != nil && ctx.Err() != nil {
			return nil
		}

		session.MarkMessage(msg, "")
	}

	return nil
}
