package cmd

import (
	"github.com/urfave/cli/v3"
)

// CommonFlags are accepted by every conduit command.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL (postgres://..., file://<dir> or memory://)",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for shared rate limits and the queue trigger",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:     "secrets-key",
			Usage:    "32 byte key, hex or base64, sealing connection secrets",
			Required: true,
			Sources:  cli.EnvVars("SECRETS_KEY"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Directory searched for node plugins (.so)",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.IntFlag{
			Name:    "max-concurrent-calls",
			Usage:   "Outbound calls in flight per connection",
			Value:   4,
			Sources: cli.EnvVars("MAX_CONCURRENT_CALLS"),
		},
		&cli.DurationFlag{
			Name:    "run-timeout",
			Usage:   "Default timeout of a scenario run",
			Sources: cli.EnvVars("RUN_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces with the OTLP HTTP exporter",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// ConfigFromCommand reads the common flags.
func ConfigFromCommand(command *cli.Command, serviceName string) Config {
	return Config{
		ServiceName:   serviceName,
		DatabaseURL:   command.String("database-url"),
		RedisURL:      command.String("redis-url"),
		EventBus:      command.String("event-bus"),
		KafkaBrokers:  command.String("kafka-brokers"),
		SecretsKey:    command.String("secrets-key"),
		PluginsPath:   command.String("plugins-path"),
		MaxConcurrent: int(command.Int("max-concurrent-calls")),
		RunTimeout:    command.Duration("run-timeout"),
		Tracing:       command.Bool("tracing"),
	}
}
