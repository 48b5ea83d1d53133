// Package main provides the conduit worker: it runs scheduled, queued and
// streamed triggers through the engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := append(cmd.CommonFlags(),
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringSliceFlag{
			Name:    "schedule",
			Usage:   "Scheduled trigger as cron|integration|trigger_type",
			Sources: cli.EnvVars("SCHEDULES"),
		},
		&cli.StringFlag{
			Name:    "queue",
			Usage:   "Redis list consumed for triggers (requires --redis-url)",
			Sources: cli.EnvVars("TRIGGER_QUEUE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-trigger",
			Usage:   "Kafka topic trigger as topic|integration|trigger_type",
			Sources: cli.EnvVars("KAFKA_TRIGGERS"),
		},
		&cli.BoolFlag{
			Name:    "consume-events",
			Usage:   "Process triggers queued on the event bus",
			Value:   true,
			Sources: cli.EnvVars("CONSUME_EVENTS"),
		},
	)

	command := &cli.Command{
		Name:                  "conduit-worker",
		Usage:                 "Run scenario triggers",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("conduit-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Conduit Worker")

			rt, err := cmd.NewRuntime(ctx, logger, cmd.ConfigFromCommand(command, "conduit-worker"))
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			set, err := buildTriggers(logger, rt, triggerSettings{
				Schedules:     command.StringSlice("schedule"),
				Queue:         command.String("queue"),
				KafkaTriggers: command.StringSlice("kafka-trigger"),
				KafkaBrokers:  command.String("kafka-brokers"),
				ConsumeEvents: command.Bool("consume-events"),
			})
			if err != nil {
				return err
			}

			return set.Run(ctx)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("conduit-worker").Error("Conduit worker stopped", "error", err)
		os.Exit(1)
	}
}
