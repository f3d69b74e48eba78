// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"os"
	"path/filepath"
	goplugin "plugin"
	"runtime"
)

// Module is an opened artifact from which the entry symbol is looked up.
type Module interface {
	Lookup(symbol string) (any, error)
	// Close releases the module. It is always called last, after the
	// instance and command table built from it are gone.
	Close() error
}

// Loader turns a plugin name into a Module.
type Loader interface {
	// Locate returns where name's artifact lives under dir and whether it
	// exists.
	Locate(dir, name string) (path string, ok bool)
	// Open opens the artifact at path.
	Open(path string) (Module, error)
}

// ArtifactName is the platform file name of a Go plugin artifact.
func ArtifactName(name string) string {
	return artifactName(runtime.GOOS, name)
}

func artifactName(goos, name string) string {
	switch goos {
	case "windows":
		return name + ".dll"
	case "darwin", "ios":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

// GoLoader opens Go plugins built with -buildmode=plugin.
//
// The Go runtime never unloads a plugin: Close is a no-op and reopening the
// same path yields the already-loaded module. Each load still calls Init
// again, so a reload always gets a fresh instance, but package-level state
// in the plugin survives and code changes need a new artifact path.
type GoLoader struct{}

// Artifact returns the path of name's shared object under dir.
func (GoLoader) Artifact(dir, name string) string {
	return filepath.Join(dir, ArtifactName(name))
}

// Locate implements Loader.
func (l GoLoader) Locate(dir, name string) (string, bool) {
	return FileExists(l.Artifact(dir, name))
}

// FileExists returns path and whether a regular file is there.
func FileExists(path string) (string, bool) {
	fi, err := os.Stat(path)
	return path, err == nil && fi.Mode().IsRegular()
}

// Open implements Loader.
func (GoLoader) Open(path string) (Module, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by the manager with plugin context
	}
	return goModule{p: p}, nil
}

type goModule struct {
	p *goplugin.Plugin
}

func (m goModule) Lookup(symbol string) (any, error) {
	sym, err := m.p.Lookup(symbol)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by the manager with plugin context
	}
	return sym, nil
}

func (goModule) Close() error { return nil }

var _ Loader = GoLoader{}
