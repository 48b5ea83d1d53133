// Package main registers the built-in and plugin nodes in the catalog.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("conduit-seed")

	command := &cli.Command{
		Name:  "conduit-seed",
		Usage: "Discover nodes and register their definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL (postgres://... or memory://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Directory searched for node plugins (.so)",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			_, result, err := cmd.NewRegistry(ctx, logger, persistence.NodeDefinitionRepository(), command.String("plugins-path"))
			if err != nil {
				return err
			}

			w := command.Root().Writer
			_, _ = fmt.Fprintf(w, "created: %d\nupdated: %d\nunchanged: %d\nerrors: %d\n",
				result.Created, result.Updated, result.Unchanged, len(result.Errors))

			for _, e := range result.Errors {
				_, _ = fmt.Fprintf(w, "  %v\n", e)
			}

			if len(result.Errors) > 0 {
				return cli.Exit("some nodes failed to register", 1)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}
