// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/conduit/pkg/nodes"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
)

// NodeLoader returns the built-in nodes followed by the plugins under
// pluginsPath, when set.
func NodeLoader(logger *slog.Logger, pluginsPath string) protocol.NodeLoader {
	loaders := registry.Loaders{nodes.Loader()}

	if pluginsPath != "" {
		loaders = append(loaders, registry.NewPluginLoader(logger, pluginsPath))
	}

	return loaders
}

// NewRegistry discovers every node and registers it against repo.
func NewRegistry(
	ctx context.Context,
	logger *slog.Logger,
	repo persistence.NodeDefinitionRepository,
	pluginsPath string,
) (*registry.Registry, registry.DiscoveryResult, error) {
	reg := registry.NewRegistry(logger, repo)

	result, err := reg.DiscoverAndRegisterNodes(ctx, NodeLoader(logger, pluginsPath))
	if err != nil {
		return nil, result, err
	}

	return reg, result, nil
}
