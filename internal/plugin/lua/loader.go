// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	plugins "github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Extension is the file extension of script plugins.
const Extension = ".lua"

// Compile-time interface check.
var _ plugins.Loader = (*Loader)(nil)

// Loader opens <dir>/<name>.lua scripts as plugin modules.
type Loader struct {
	factory *StateFactory
}

// NewLoader creates a script loader.
func NewLoader() *Loader {
	return &Loader{factory: NewStateFactory()}
}

// Artifact returns the script path for name under dir.
func (l *Loader) Artifact(dir, name string) string {
	return filepath.Join(dir, name+Extension)
}

// Locate implements plugins.Loader.
func (l *Loader) Locate(dir, name string) (string, bool) {
	return plugins.FileExists(l.Artifact(dir, name))
}

// Open reads the script and checks that it runs in a throwaway state.
func (l *Loader) Open(path string) (plugins.Module, error) {
	name := strings.TrimSuffix(filepath.Base(path), Extension)
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("lua").With("plugin", name).With("operation", "open").With("path", path).Hint("failed to read script").Wrap(err)
	}

	L, err := l.factory.NewState(context.Background())
	if err != nil {
		return nil, oops.In("lua").With("plugin", name).With("operation", "open").Hint("failed to create validation state").Wrap(err)
	}
	defer L.Close()

	if err := L.DoString(string(code)); err != nil {
		return nil, oops.In("lua").With("plugin", name).With("operation", "open").With("path", path).Hint("script error").Wrap(err)
	}

	return &module{name: name, code: string(code), factory: l.factory}, nil
}

// module holds validated source. Every Init call runs it in a new state.
type module struct {
	name    string
	code    string
	factory *StateFactory
}

func (m *module) Lookup(symbol string) (any, error) {
	if symbol != pluginapi.InitSymbol {
		return nil, oops.In("lua").With("plugin", m.name).With("symbol", symbol).Errorf("script modules only export %s", pluginapi.InitSymbol)
	}
	return pluginapi.InitFunc(m.newPlugin), nil
}

// newPlugin panics on failure; the manager turns that into CONSTRUCTION_FAILED.
func (m *module) newPlugin() pluginapi.Plugin {
	L, err := m.factory.NewState(context.Background())
	if err != nil {
		panic(err)
	}
	if err := L.DoString(m.code); err != nil {
		L.Close()
		panic(oops.In("lua").With("plugin", m.name).Hint("script error").Wrap(err))
	}
	return &scriptPlugin{name: m.name, L: L}
}

// Close is a no-op: each instance owns and closes its own state.
func (m *module) Close() error { return nil }
