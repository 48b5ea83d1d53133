package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/queue"
	"github.com/dukex/conduit/pkg/ratelimit"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/services"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config is the process configuration shared by the conduit commands.
type Config struct {
	ServiceName   string
	DatabaseURL   string
	RedisURL      string
	EventBus      string
	KafkaBrokers  string
	SecretsKey    string
	PluginsPath   string
	MaxConcurrent int
	RunTimeout    time.Duration
	Tracing       bool
}

// Runtime holds the wired services of a conduit process.
type Runtime struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Redis       redis.UniversalClient
	EventBus    eventbus.EventBus
	Connections *services.Connections
	Scenarios   *services.Scenarios
	Client      *apiclient.Client
	Engine      *engine.Engine

	logger *slog.Logger
}

// NewRuntime opens storage, discovers nodes and assembles the engine. Log
// entries are stored and announced on the event bus.
func NewRuntime(ctx context.Context, logger *slog.Logger, cfg Config) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	err := rt.open(ctx, cfg)
	if err != nil {
		closeErr := rt.Close(ctx)

		return nil, errors.Join(err, closeErr)
	}

	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, cfg Config) error {
	logger := rt.logger

	key, err := services.ParseSecretsKey(cfg.SecretsKey)
	if err != nil {
		return err
	}

	sealer, err := services.NewSealer(key)
	if err != nil {
		return err
	}

	rt.Persistence, err = NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	rt.Registry, _, err = NewRegistry(ctx, logger, rt.Persistence.NodeDefinitionRepository(), cfg.PluginsPath)
	if err != nil {
		return fmt.Errorf("failed to discover nodes: %w", err)
	}

	rt.EventBus, err = NewEventBus(logger, cfg.EventBus, cfg.KafkaBrokers, cfg.ServiceName)
	if err != nil {
		return err
	}

	store, err := rt.rateLimitStore(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 30 * time.Second}

	rt.Connections = services.NewConnections(logger, rt.Persistence, sealer, httpClient)
	rt.Scenarios = services.NewScenarios(logger, rt.Persistence, rt.Registry)

	limiter := ratelimit.NewEnhancedLimiter(
		ratelimit.NewLimiter(store, ratelimit.WithLogger(logger)),
		ratelimit.DefaultAllowance,
	)

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	base := apiclient.NewClient(logger, nil, queue.New(logger, maxConcurrent), rt.Connections,
		apiclient.WithHTTPClient(httpClient))
	rt.Client = apiclient.NewEnhancedClient(base, limiter)

	opts := []engine.Option{}
	if cfg.RunTimeout > 0 {
		opts = append(opts, engine.WithRunTimeout(cfg.RunTimeout))
	}

	if cfg.Tracing {
		tracer, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		opts = append(opts, engine.WithTracer(tracer))
	}

	sink := eventbus.NewNotifyingSink(logger, rt.Persistence.LogRepository(), rt.EventBus)

	rt.Engine = engine.New(logger, rt.Registry, rt.Persistence.ScenarioRepository(), rt.Connections, rt.Client, sink, opts...)

	return nil
}

// rateLimitStore shares buckets through Redis when configured, so every
// process draws from the same allowance.
func (rt *Runtime) rateLimitStore(ctx context.Context, redisURL string) (ratelimit.StateStore, error) {
	if redisURL == "" {
		return ratelimit.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	rt.Redis = client

	return ratelimit.NewRedisStore(client, ""), nil
}

// Close releases what open acquired, in reverse order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if rt.EventBus != nil {
		errs = append(errs, rt.EventBus.Close())
	}

	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}

	if rt.Persistence != nil {
		errs = append(errs, rt.Persistence.Close(ctx))
	}

	return errors.Join(errs...)
}
