package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/dukex/conduit/pkg/persistence/memory"
	"github.com/dukex/conduit/pkg/persistence/postgresql"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

// PersistenceProvider names the backend a database URL selects.
func PersistenceProvider(databaseURL string) (string, error) {
	if databaseURL == "" {
		return "memory", nil
	}

	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDatabase, databaseURL)
	}

	switch scheme {
	case "memory":
		return "memory", nil
	case "file":
		return "file", nil
	case "postgres", "postgresql":
		return "postgresql", nil
	default:
		return "", fmt.Errorf("%w: scheme %s", ErrUnsupportedDatabase, scheme)
	}
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, err := PersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger.With("module", "postgresql"), databaseURL)
	case "file":
		return file.NewPersistence(ctx, logger, databaseURL)
	default:
		logger.WarnContext(ctx, "Using in-memory persistence, data is lost on restart")

		return memory.NewPersistence(), nil
	}
}
