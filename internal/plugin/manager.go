// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/boncarobot/boncarobot/pkg/errutil"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

var tracer = otel.Tracer("boncarobot/plugin")

// DefaultDrainTimeout bounds how long teardown waits for in-flight calls.
const DefaultDrainTimeout = 5 * time.Second

// Settings are the per-plugin configuration values read at (re)load time.
type Settings struct {
	Options  map[string]string
	Channels []string
}

// SettingsSource supplies plugin settings. It is consulted on every load so
// a reload picks up edited configuration.
type SettingsSource interface {
	PluginSettings(name string) Settings
}

// SettingsFunc adapts a function to SettingsSource.
type SettingsFunc func(name string) Settings

// PluginSettings implements SettingsSource.
func (f SettingsFunc) PluginSettings(name string) Settings { return f(name) }

// Entry is a point-in-time view of a resident plugin, safe to use after the
// manager lock is released.
type Entry struct {
	Name     string
	Path     string
	LoadedAt time.Time
	Commands []pluginapi.Command
	Instance *Instance
	Scope    Scope
}

// Accepts reports whether the plugin handles events from channel.
func (e Entry) Accepts(channel string) bool { return e.Scope.Accepts(channel) }

// Lookup finds a command by exact name.
func (e Entry) Lookup(name string) (pluginapi.Command, bool) {
	for _, c := range e.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return pluginapi.Command{}, false
}

// Manager owns the set of resident plugins. Every operation holds the
// manager lock for its whole duration, so lifecycle operations never
// interleave and readers see either the old or the new set.
type Manager struct {
	dir          string
	loaders      []Loader
	settings     SettingsSource
	drainTimeout time.Duration
	observer     TeardownObserver

	mu         sync.RWMutex
	containers map[string]*Container
	closed     bool
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLoaders sets the loaders tried, in order, for every plugin name.
// The first loader whose artifact exists wins.
func WithLoaders(loaders ...Loader) ManagerOption {
	return func(m *Manager) {
		m.loaders = loaders
	}
}

// WithSettings sets the source of per-plugin settings.
func WithSettings(s SettingsSource) ManagerOption {
	return func(m *Manager) {
		m.settings = s
	}
}

// WithDrainTimeout bounds how long unload waits for in-flight calls.
func WithDrainTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.drainTimeout = d
		}
	}
}

// WithTeardownObserver installs a callback invoked after each teardown stage.
func WithTeardownObserver(o TeardownObserver) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager creates a plugin manager that resolves artifacts under dir.
func NewManager(dir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		dir:          dir,
		loaders:      []Loader{GoLoader{}},
		drainTimeout: DefaultDrainTimeout,
		containers:   make(map[string]*Container),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the artifact directory.
func (m *Manager) Dir() string { return m.dir }

// Load loads the named plugin. Loading a resident plugin fails with
// ALREADY_LOADED; use Reload to replace it.
func (m *Manager) Load(ctx context.Context, name string) (err error) {
	ctx, span := tracer.Start(ctx, "plugin.load")
	defer span.End()
	span.SetAttributes(attribute.String("plugin.name", name))
	defer func() { recordSpan(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if _, ok := m.containers[name]; ok {
		err = ErrAlreadyLoaded(name)
		RecordLifecycle(name, OpLoad, err)
		return err
	}

	c, err := m.build(ctx, name)
	RecordLifecycle(name, OpLoad, err)
	if err != nil {
		return err
	}
	m.insertLocked(c)
	slog.Info("loaded plugin",
		"plugin", name,
		"path", c.path,
		"commands", c.table.Names())
	return nil
}

// Unload removes and tears down the named plugin. It reports whether a
// plugin was resident.
func (m *Manager) Unload(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "plugin.unload")
	defer span.End()
	span.SetAttributes(attribute.String("plugin.name", name))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrManagerClosed
	}
	c, ok := m.containers[name]
	if !ok {
		return false, nil
	}
	m.removeLocked(ctx, c)
	RecordLifecycle(name, OpUnload, nil)
	slog.Info("unloaded plugin", "plugin", name)
	return true, nil
}

// Reload tears down the resident instance of name, if any, and loads it
// again with freshly read settings. The old instance is fully gone before
// the new one is built. If the load fails the plugin stays absent.
func (m *Manager) Reload(ctx context.Context, name string) (err error) {
	ctx, span := tracer.Start(ctx, "plugin.reload")
	defer span.End()
	span.SetAttributes(attribute.String("plugin.name", name))
	defer func() { recordSpan(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if old, ok := m.containers[name]; ok {
		m.removeLocked(ctx, old)
	}

	c, err := m.build(ctx, name)
	if err != nil {
		err = ErrReloadFailed(name, err)
		RecordLifecycle(name, OpReload, err)
		return err
	}
	m.insertLocked(c)
	RecordLifecycle(name, OpReload, nil)
	slog.Info("reloaded plugin",
		"plugin", name,
		"path", c.path,
		"commands", c.table.Names())
	return nil
}

// LoadAll loads each named plugin in order.
//
// Individual failures are logged and skipped so the bot can start even
// when some plugins are broken. Only a closed manager fails the call.
func (m *Manager) LoadAll(ctx context.Context, names []string) error {
	for _, name := range names {
		err := m.Load(ctx, name)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrManagerClosed) {
			return err
		}
		errutil.LogWarn(slog.Default(), "failed to load plugin", err)
	}
	return nil
}

// Snapshot returns the resident plugins sorted by name.
func (m *Manager) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.containers))
	for _, c := range m.containers {
		entries = append(entries, Entry{
			Name:     c.name,
			Path:     c.path,
			LoadedAt: c.loadedAt,
			Commands: c.table.Commands(),
			Instance: c.instance,
			Scope:    c.scope,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Plugins returns the sorted names of resident plugins.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.containers))
	for name := range m.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Loaded reports whether name is resident.
func (m *Manager) Loaded(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.containers[name]
	return ok
}

// Close tears down every resident plugin. Further operations fail with
// ErrManagerClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	names := make([]string, 0, len(m.containers))
	for name := range m.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.removeLocked(ctx, m.containers[name])
	}
	return nil
}

func (m *Manager) insertLocked(c *Container) {
	m.containers[c.name] = c
	Resident.Set(float64(len(m.containers)))
}

// removeLocked drops c from the map and tears it down. Teardown problems
// are logged; the plugin is gone either way.
func (m *Manager) removeLocked(ctx context.Context, c *Container) {
	delete(m.containers, c.name)
	Resident.Set(float64(len(m.containers)))

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.drainTimeout)
	defer cancel()
	if err := c.Close(drainCtx, m.observer); err != nil {
		slog.Warn("plugin teardown incomplete",
			"plugin", c.name,
			"error", err)
	}
}

// resolve finds the first loader with an existing artifact for name.
func (m *Manager) resolve(name string) (Loader, string, error) {
	tried := make([]string, 0, len(m.loaders))
	for _, l := range m.loaders {
		path, ok := l.Locate(m.dir, name)
		if ok {
			return l, path, nil
		}
		tried = append(tried, path)
	}
	return nil, "", ErrModuleNotFound(name, tried)
}

// build opens, constructs and configures a plugin. On any failure whatever
// was acquired is released again in teardown order.
func (m *Manager) build(_ context.Context, name string) (*Container, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	loader, path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	mod, err := loader.Open(path)
	if err != nil {
		return nil, ErrModuleOpenFailed(name, path, err)
	}

	c := &Container{
		module:   mod,
		name:     name,
		path:     path,
		loadedAt: time.Now(),
	}
	ok := false
	defer func() {
		if !ok {
			discardCtx, cancel := context.WithTimeout(context.Background(), m.drainTimeout)
			defer cancel()
			if cerr := c.Close(discardCtx, nil); cerr != nil {
				slog.Warn("cleanup after failed load", "plugin", name, "error", cerr)
			}
		}
	}()

	sym, err := mod.Lookup(pluginapi.InitSymbol)
	if err != nil {
		return nil, ErrSymbolNotFound(name, pluginapi.InitSymbol, err)
	}
	initFn, valid := initFunc(sym)
	if !valid {
		return nil, ErrSymbolInvalid(name, pluginapi.InitSymbol, sym)
	}

	p, err := construct(name, initFn)
	if err != nil {
		return nil, err
	}
	c.instance = newInstance(name, p)
	c.table = &pluginapi.CommandTable{}
	if err := c.instance.Call(func(p pluginapi.Plugin) error {
		p.Register(c.table)
		return nil
	}); err != nil {
		return nil, ErrConstructionFailed(name, "register", err)
	}

	var settings Settings
	if m.settings != nil {
		settings = m.settings.PluginSettings(name)
	}
	if c.scope, err = NewScope(settings.Channels); err != nil {
		return nil, ErrConfigureFailed(name, err)
	}
	if err := c.instance.Call(func(p pluginapi.Plugin) error {
		if cfg, isCfg := p.(pluginapi.Configurable); isCfg {
			return cfg.Configure(copyOptions(settings.Options))
		}
		return nil
	}); err != nil {
		return nil, ErrConfigureFailed(name, err)
	}

	ok = true
	return c, nil
}

// initFunc accepts both `func Init() pluginapi.Plugin` and
// `var Init = func() pluginapi.Plugin {...}`; the latter is looked up as a
// pointer.
func initFunc(sym any) (pluginapi.InitFunc, bool) {
	switch fn := sym.(type) {
	case func() pluginapi.Plugin:
		return fn, fn != nil
	case *func() pluginapi.Plugin:
		if fn == nil || *fn == nil {
			return nil, false
		}
		return *fn, true
	default:
		return nil, false
	}
}

func construct(name string, initFn pluginapi.InitFunc) (p pluginapi.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrConstructionFailed(name, "init", ErrInvocationFault(name, r))
		}
	}()
	p = initFn()
	if p == nil {
		return nil, ErrConstructionFailed(name, "init", errNilPlugin)
	}
	return p, nil
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func recordSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
