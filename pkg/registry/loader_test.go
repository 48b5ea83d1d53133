package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/conduit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginLoader_FindsSharedObjects(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "wordpress"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "wordpress", "wordpress.so"), []byte("not a plugin"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("docs"), 0o600))

	loader := NewPluginLoader(slog.Default(), root)

	modules, err := loader.Modules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, filepath.Join(root, "wordpress", "wordpress.so"), modules[0].Name())

	_, err = modules[0].Load(context.Background())
	assert.Error(t, err)
}

func TestPluginLoader_EmptyRoot(t *testing.T) {
	t.Parallel()

	modules, err := NewPluginLoader(slog.Default(), "").Modules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, modules)
}

func TestPluginLoader_BrokenPluginIsCollected(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.so"), []byte("garbage"), 0o600))

	reg, _ := newTestRegistry(t)

	loader := Loaders{
		NewPluginLoader(slog.Default(), root),
		NewStaticLoader(StaticModule{ModuleName: "builtin", Build: func(context.Context) ([]protocol.Node, error) {
			return []protocol.Node{testNode("test.builtin", "1.0.0")}, nil
		}}),
	}

	result, err := reg.DiscoverAndRegisterNodes(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, filepath.Join(root, "broken.so"), result.Errors[0].Module)
}

type valueModule struct{}

func (valueModule) Name() string { return "value" }

func (valueModule) Load(context.Context) ([]protocol.Node, error) { return nil, nil }

func TestAsModule(t *testing.T) {
	t.Parallel()

	var iface protocol.NodeModule = valueModule{}

	m, err := asModule(&iface)
	require.NoError(t, err)
	assert.Equal(t, "value", m.Name())

	v := valueModule{}
	m, err = asModule(&v)
	require.NoError(t, err)
	assert.Equal(t, "value", m.Name())

	var empty protocol.NodeModule

	_, err = asModule(&empty)
	require.ErrorIs(t, err, ErrInvalidPlugin)

	_, err = asModule(42)
	assert.ErrorIs(t, err, ErrInvalidPlugin)
}
