// Package nodes bundles the integration nodes compiled into conduit.
package nodes

import (
	"context"

	"github.com/dukex/conduit/pkg/nodes/discord"
	"github.com/dukex/conduit/pkg/nodes/httprequest"
	"github.com/dukex/conduit/pkg/nodes/log"
	"github.com/dukex/conduit/pkg/nodes/monday"
	"github.com/dukex/conduit/pkg/nodes/transform"
	"github.com/dukex/conduit/pkg/nodes/vimeo"
	"github.com/dukex/conduit/pkg/nodes/wordpress"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
)

// Builtins returns one discovery module per built-in integration.
func Builtins() []protocol.NodeModule {
	return []protocol.NodeModule{
		static("httprequest", single(httprequest.New)),
		static("wordpress", wordpress.Nodes),
		static("discord", single(discord.New)),
		static("monday", single(monday.New)),
		static("vimeo", single(vimeo.New)),
		static("log", single(log.New)),
		static("transform", single(transform.New)),
	}
}

// Loader returns a loader over the built-in modules.
func Loader() registry.StaticLoader {
	return registry.NewStaticLoader(Builtins()...)
}

func single(build func() protocol.Node) func() []protocol.Node {
	return func() []protocol.Node {
		return []protocol.Node{build()}
	}
}

func static(name string, build func() []protocol.Node) registry.StaticModule {
	return registry.StaticModule{
		ModuleName: name,
		Build: func(context.Context) ([]protocol.Node, error) {
			return build(), nil
		},
	}
}
