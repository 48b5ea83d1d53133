package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/dukex/conduit/pkg/protocol"
)

// PluginSymbol is the exported variable a node plugin must define.
const PluginSymbol = "Module"

// StaticModule is a compiled-in module.
type StaticModule struct {
	ModuleName string
	Build      func(ctx context.Context) ([]protocol.Node, error)
}

func (m StaticModule) Name() string {
	return m.ModuleName
}

func (m StaticModule) Load(ctx context.Context) ([]protocol.Node, error) {
	return m.Build(ctx)
}

// StaticLoader yields a fixed list of modules.
type StaticLoader struct {
	modules []protocol.NodeModule
}

func NewStaticLoader(modules ...protocol.NodeModule) StaticLoader {
	return StaticLoader{modules: modules}
}

func (l StaticLoader) Modules(context.Context) ([]protocol.NodeModule, error) {
	return l.modules, nil
}

// PluginLoader discovers Go plugins (*.so) below a directory. Each plugin
// must export a Module variable implementing protocol.NodeModule.
type PluginLoader struct {
	logger *slog.Logger
	root   string
}

func NewPluginLoader(logger *slog.Logger, root string) PluginLoader {
	return PluginLoader{logger: logger, root: root}
}

func (l PluginLoader) Modules(ctx context.Context) ([]protocol.NodeModule, error) {
	if l.root == "" {
		return nil, nil
	}

	var modules []protocol.NodeModule

	err := fs.WalkDir(os.DirFS(l.root), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".so") {
			return nil
		}

		modules = append(modules, pluginModule{path: filepath.Join(l.root, path)})

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Found node plugins", "path", l.root, "count", len(modules))

	return modules, nil
}

type pluginModule struct {
	path string
}

func (m pluginModule) Name() string {
	return m.path
}

func (m pluginModule) Load(ctx context.Context) ([]protocol.Node, error) {
	plg, err := plugin.Open(m.path)
	if err != nil {
		return nil, err
	}

	sym, err := plg.Lookup(PluginSymbol)
	if err != nil {
		return nil, err
	}

	module, err := asModule(sym)
	if err != nil {
		return nil, err
	}

	return module.Load(ctx)
}

// asModule accepts both `var Module protocol.NodeModule` and
// `var Module = myModule{}` style exports.
func asModule(sym any) (protocol.NodeModule, error) {
	switch v := sym.(type) {
	case *protocol.NodeModule:
		if *v == nil {
			return nil, fmt.Errorf("%w: %s is nil", ErrInvalidPlugin, PluginSymbol)
		}

		return *v, nil
	case protocol.NodeModule:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s has type %T", ErrInvalidPlugin, PluginSymbol, sym)
	}
}

// Loaders chains several loaders in order.
type Loaders []protocol.NodeLoader

func (ls Loaders) Modules(ctx context.Context) ([]protocol.NodeModule, error) {
	var all []protocol.NodeModule

	for _, l := range ls {
		modules, err := l.Modules(ctx)
		if err != nil {
			return nil, err
		}

		all = append(all, modules...)
	}

	return all, nil
}
