// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// builtinScheme prefixes the pseudo paths of compiled-in plugins.
const builtinScheme = "builtin:"

// Builtins is a Loader for plugins compiled into the binary. It goes
// through the same lifecycle as file-backed plugins, so builtins can be
// unloaded and reloaded like any other.
type Builtins map[string]pluginapi.InitFunc

var _ Loader = Builtins(nil)

// Locate implements Loader. dir is ignored.
func (b Builtins) Locate(_, name string) (string, bool) {
	_, ok := b[name]
	return builtinScheme + name, ok
}

// Open implements Loader.
func (b Builtins) Open(path string) (Module, error) {
	name := strings.TrimPrefix(path, builtinScheme)
	fn, ok := b[name]
	if !ok || !strings.HasPrefix(path, builtinScheme) {
		return nil, fmt.Errorf("no builtin plugin %q", name)
	}
	return builtinModule{init: fn}, nil
}

// Names returns the sorted builtin names.
func (b Builtins) Names() []string {
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type builtinModule struct {
	init pluginapi.InitFunc
}

func (m builtinModule) Lookup(symbol string) (any, error) {
	if symbol != pluginapi.InitSymbol {
		return nil, fmt.Errorf("builtin modules only export %s", pluginapi.InitSymbol)
	}
	return m.init, nil
}

func (builtinModule) Close() error { return nil }
