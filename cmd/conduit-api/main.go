// Package main provides the conduit API server: administration endpoints
// and webhook ingress.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/triggers/bus"
	"github.com/dukex/conduit/pkg/triggers/webhook"
	"github.com/dukex/conduit/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("conduit-api")

	flags := append(cmd.CommonFlags(),
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "Shared secret for webhook signatures of every integration",
			Sources: cli.EnvVars("WEBHOOK_SECRET"),
		},
		&cli.StringSliceFlag{
			Name:    "webhook-secrets",
			Usage:   "Per integration webhook secrets as integration=secret",
			Sources: cli.EnvVars("WEBHOOK_SECRETS"),
		},
		&cli.BoolFlag{
			Name:    "async-webhooks",
			Usage:   "Queue webhook triggers on the event bus instead of running them inline",
			Sources: cli.EnvVars("ASYNC_WEBHOOKS"),
		},
	)

	command := &cli.Command{
		Name:                  "conduit-api",
		Usage:                 "Manage connections and scenarios, receive webhooks",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Conduit API")

			rt, err := cmd.NewRuntime(ctx, logger, cmd.ConfigFromCommand(command, "conduit-api"))
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			opts, err := webhookOptions(command)
			if err != nil {
				return err
			}

			if command.Bool("async-webhooks") {
				opts = append(opts, webhook.WithEnqueuer(bus.NewPublisher(rt.EventBus)))

				// An in-process bus only reaches consumers in this process.
				if provider := command.String("event-bus"); provider == "" || provider == "gochannel" {
					err := bus.NewConsumer(logger, rt.EventBus, rt.Engine).Start(ctx)
					if err != nil {
						return err
					}
				}
			}

			app := web.NewApp(logger, web.Dependencies{
				Persistence: rt.Persistence,
				Registry:    rt.Registry,
				Connections: rt.Connections,
				Scenarios:   rt.Scenarios,
				Runner:      rt.Engine,
				Caller:      rt.Client,
				Receiver:    webhook.NewReceiver(logger, rt.Engine, opts...),
			})

			go func() {
				<-ctx.Done()

				err := app.Shutdown()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to shut down API", "error", err)
				}
			}()

			return app.Listen(":" + strconv.Itoa(int(command.Int("port"))))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		logger.Error("Conduit API stopped", "error", err)
		os.Exit(1)
	}
}

func webhookOptions(command *cli.Command) ([]webhook.Option, error) {
	opts := []webhook.Option{}

	if secret := command.String("webhook-secret"); secret != "" {
		opts = append(opts, webhook.WithDefaultSecret(secret))
	}

	for _, pair := range command.StringSlice("webhook-secrets") {
		integration, secret, ok := strings.Cut(pair, "=")
		if !ok || integration == "" || secret == "" {
			return nil, cli.Exit("invalid --webhook-secrets entry "+strconv.Quote(pair), 1)
		}

		opts = append(opts, webhook.WithSecret(integration, secret))
	}

	return opts, nil
}
