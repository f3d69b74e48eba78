// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/require"

	plugins "github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// testingT is the part of testing.TB the helpers need; GinkgoT() satisfies it too.
type testingT interface {
	require.TestingT
	Helper()
	TempDir() string
	Fatalf(format string, args ...any)
}

// recorder collects teardown and lifecycle events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var instanceIDs atomic.Int64

// fakePlugin is a configurable plugin double.
type fakePlugin struct {
	pluginapi.Base

	id        int64
	name      string
	rec       *recorder
	commands  []string
	options   map[string]string
	panicIn   string
	configErr error
}

func (p *fakePlugin) Register(t *pluginapi.CommandTable) {
	if p.panicIn == "register" {
		panic("register exploded")
	}
	p.rec.add(p.name + ":register")
	for _, c := range p.commands {
		t.AddFunc(c, "help for "+c, func(context.Context, *pluginapi.Context, *pluginapi.ParsedOpts) error {
			return nil
		})
	}
}

func (p *fakePlugin) Configure(opts map[string]string) error {
	p.options = opts
	return p.configErr
}

func (p *fakePlugin) Close() error {
	p.rec.add(p.name + ":instance")
	return nil
}

// fakeModule stands in for an opened artifact.
type fakeModule struct {
	name   string
	rec    *recorder
	symbol any
}

func (m *fakeModule) Lookup(symbol string) (any, error) {
	if symbol != pluginapi.InitSymbol || m.symbol == nil {
		return nil, errors.New("symbol " + symbol + " not found")
	}
	return m.symbol, nil
}

func (m *fakeModule) Close() error {
	m.rec.add(m.name + ":module")
	return nil
}

// fakeLoader resolves <dir>/<name>.fake and hands out registered modules.
type fakeLoader struct {
	mu      sync.Mutex
	symbols map[string]any
	openErr map[string]error
	rec     *recorder
}

func (l *fakeLoader) Artifact(dir, name string) string {
	return filepath.Join(dir, name+".fake")
}

func (l *fakeLoader) Locate(dir, name string) (string, bool) {
	return plugins.FileExists(l.Artifact(dir, name))
}

func (l *fakeLoader) Open(path string) (plugins.Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := strings.TrimSuffix(filepath.Base(path), ".fake")
	if err := l.openErr[name]; err != nil {
		return nil, err
	}
	return &fakeModule{name: name, rec: l.rec, symbol: l.symbols[name]}, nil
}

// env bundles a manager with its fake loader and artifact directory.
type env struct {
	dir      string
	rec      *recorder
	loader   *fakeLoader
	settings map[string]plugins.Settings
	setMu    sync.Mutex
	stages   *recorder
	mgr      *plugins.Manager
	last     map[string]*fakePlugin
	lastMu   sync.Mutex
}

func newEnv(t testingT, opts ...plugins.ManagerOption) *env {
	t.Helper()
	e := &env{
		dir:      t.TempDir(),
		rec:      &recorder{},
		stages:   &recorder{},
		settings: map[string]plugins.Settings{},
		last:     map[string]*fakePlugin{},
	}
	e.loader = &fakeLoader{
		symbols: map[string]any{},
		openErr: map[string]error{},
		rec:     e.rec,
	}
	base := []plugins.ManagerOption{
		plugins.WithLoaders(e.loader),
		plugins.WithSettings(plugins.SettingsFunc(e.pluginSettings)),
		plugins.WithTeardownObserver(func(name string, stage plugins.Stage) {
			e.stages.add(name + ":" + stage.String())
		}),
	}
	e.mgr = plugins.NewManager(e.dir, append(base, opts...)...)
	return e
}

func (e *env) pluginSettings(name string) plugins.Settings {
	e.setMu.Lock()
	defer e.setMu.Unlock()
	return e.settings[name]
}

func (e *env) setSettings(name string, s plugins.Settings) {
	e.setMu.Lock()
	defer e.setMu.Unlock()
	e.settings[name] = s
}

// touch creates the artifact file so resolution finds it.
func (e *env) touch(t testingT, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.loader.Artifact(e.dir, name), nil, 0o600))
}

// addSymbol registers an arbitrary Init symbol and creates the artifact.
func (e *env) addSymbol(t testingT, name string, sym any) {
	t.Helper()
	e.loader.mu.Lock()
	e.loader.symbols[name] = sym
	e.loader.mu.Unlock()
	e.touch(t, name)
}

// add registers a plugin whose Init builds a fresh fakePlugin each call.
func (e *env) add(t testingT, name string, commands ...string) {
	t.Helper()
	e.addWith(t, name, func(p *fakePlugin) { p.commands = commands })
}

func (e *env) addWith(t testingT, name string, customize func(*fakePlugin)) {
	t.Helper()
	e.addSymbol(t, name, func() pluginapi.Plugin {
		p := &fakePlugin{id: instanceIDs.Add(1), name: name, rec: e.rec}
		customize(p)
		e.lastMu.Lock()
		e.last[name] = p
		e.lastMu.Unlock()
		return p
	})
}

func (e *env) lastPlugin(name string) *fakePlugin {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	return e.last[name]
}

func (e *env) entry(t testingT, name string) plugins.Entry {
	t.Helper()
	for _, en := range e.mgr.Snapshot() {
		if en.Name == name {
			return en
		}
	}
	t.Fatalf("plugin %q not resident", name)
	return plugins.Entry{}
}

// instanceID returns the id of the fakePlugin behind an instance.
func instanceID(t testingT, inst *plugins.Instance) int64 {
	t.Helper()
	var id int64
	require.NoError(t, inst.Call(func(p pluginapi.Plugin) error {
		id = p.(*fakePlugin).id
		return nil
	}))
	return id
}
