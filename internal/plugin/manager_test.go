// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plugins "github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/errutil"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

func TestManager_LoadExposesCommands(t *testing.T) {
	e := newEnv(t)
	e.add(t, "ud", "ud", "define")

	require.NoError(t, e.mgr.Load(context.Background(), "ud"))

	assert.Equal(t, []string{"ud"}, e.mgr.Plugins())
	assert.True(t, e.mgr.Loaded("ud"))
	en := e.entry(t, "ud")
	require.Len(t, en.Commands, 2)
	assert.Equal(t, "ud", en.Commands[0].Name)
	assert.Equal(t, "define", en.Commands[1].Name)
	_, ok := en.Lookup("define")
	assert.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(plugins.Resident))
}

func TestManager_LoadTwiceFailsWithoutReplacing(t *testing.T) {
	e := newEnv(t)
	e.add(t, "w", "w")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "w"))
	first := e.entry(t, "w").Instance

	err := e.mgr.Load(ctx, "w")

	errutil.AssertErrorCode(t, err, plugins.CodeAlreadyLoaded)
	assert.Same(t, first, e.entry(t, "w").Instance)
	assert.Len(t, e.mgr.Snapshot(), 1)
}

func TestManager_LoadFailures(t *testing.T) {
	tests := []struct {
		name   string
		plugin string
		setup  func(t *testing.T, e *env)
		code   string
		closed []string
	}{
		{
			name:   "missing artifact",
			plugin: "ghost",
			setup:  func(*testing.T, *env) {},
			code:   plugins.CodeModuleNotFound,
		},
		{
			name:   "invalid name",
			plugin: "../etc",
			setup:  func(*testing.T, *env) {},
			code:   plugins.CodeInvalidName,
		},
		{
			name:   "open failure",
			plugin: "broken",
			setup: func(t *testing.T, e *env) {
				e.touch(t, "broken")
				e.loader.openErr["broken"] = errors.New("bad ELF header")
			},
			code: plugins.CodeModuleOpenFailed,
		},
		{
			name:   "missing symbol",
			plugin: "nosym",
			setup:  func(t *testing.T, e *env) { e.touch(t, "nosym") },
			code:   plugins.CodeSymbolNotFound,
			closed: []string{"nosym:module"},
		},
		{
			name:   "wrong symbol type",
			plugin: "badsym",
			setup:  func(t *testing.T, e *env) { e.addSymbol(t, "badsym", func() int { return 0 }) },
			code:   plugins.CodeSymbolInvalid,
			closed: []string{"badsym:module"},
		},
		{
			name:   "init panics",
			plugin: "boom",
			setup: func(t *testing.T, e *env) {
				e.addSymbol(t, "boom", func() pluginapi.Plugin { panic("no") })
			},
			code:   plugins.CodeConstructionFailed,
			closed: []string{"boom:module"},
		},
		{
			name:   "init returns nil",
			plugin: "void",
			setup: func(t *testing.T, e *env) {
				e.addSymbol(t, "void", func() pluginapi.Plugin { return nil })
			},
			code:   plugins.CodeConstructionFailed,
			closed: []string{"void:module"},
		},
		{
			name:   "register panics",
			plugin: "reg",
			setup: func(t *testing.T, e *env) {
				e.addWith(t, "reg", func(p *fakePlugin) { p.panicIn = "register" })
			},
			code:   plugins.CodeConstructionFailed,
			closed: []string{"reg:instance", "reg:module"},
		},
		{
			name:   "configure fails",
			plugin: "cfg",
			setup: func(t *testing.T, e *env) {
				e.addWith(t, "cfg", func(p *fakePlugin) { p.configErr = errors.New("missing api key") })
			},
			code:   plugins.CodeConfigureFailed,
			closed: []string{"cfg:register", "cfg:instance", "cfg:module"},
		},
		{
			name:   "bad channel pattern",
			plugin: "scope",
			setup: func(t *testing.T, e *env) {
				e.add(t, "scope", "x")
				e.setSettings("scope", plugins.Settings{Channels: []string{"#[a"}})
			},
			code:   plugins.CodeConfigureFailed,
			closed: []string{"scope:register", "scope:instance", "scope:module"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			tt.setup(t, e)

			err := e.mgr.Load(context.Background(), tt.plugin)

			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
			assert.False(t, e.mgr.Loaded(tt.plugin))
			assert.Empty(t, e.mgr.Snapshot())
			if tt.closed != nil {
				assert.Equal(t, tt.closed, e.rec.list())
			}
		})
	}
}

func TestManager_LoadAcceptsPointerSymbol(t *testing.T) {
	e := newEnv(t)
	ctor := func() pluginapi.Plugin { return &fakePlugin{name: "ptr", rec: e.rec} }
	e.addSymbol(t, "ptr", &ctor)

	require.NoError(t, e.mgr.Load(context.Background(), "ptr"))
	assert.True(t, e.mgr.Loaded("ptr"))
}

func TestManager_LoadPassesOptions(t *testing.T) {
	e := newEnv(t)
	e.add(t, "ud", "ud")
	e.setSettings("ud", plugins.Settings{
		Options:  map[string]string{"endpoint": "http://example.test"},
		Channels: []string{"#bots-*"},
	})

	require.NoError(t, e.mgr.Load(context.Background(), "ud"))

	assert.Equal(t, "http://example.test", e.lastPlugin("ud").options["endpoint"])
	en := e.entry(t, "ud")
	assert.True(t, en.Accepts("#bots-test"))
	assert.False(t, en.Accepts("#general"))
}

func TestManager_UnloadTeardownOrder(t *testing.T) {
	e := newEnv(t)
	e.add(t, "tell", "tell")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "tell"))
	e.rec.reset()

	removed, err := e.mgr.Unload(ctx, "tell")

	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, e.mgr.Loaded("tell"))
	assert.Equal(t, []string{"tell:instance", "tell:table", "tell:module"}, e.stages.list())
	assert.Equal(t, []string{"tell:instance", "tell:module"}, e.rec.list())
}

func TestManager_UnloadAbsent(t *testing.T) {
	e := newEnv(t)

	removed, err := e.mgr.Unload(context.Background(), "nothing")

	require.NoError(t, err)
	assert.False(t, removed)
}

func TestManager_UnloadedInstanceRejectsCalls(t *testing.T) {
	e := newEnv(t)
	e.add(t, "w", "w")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "w"))
	inst := e.entry(t, "w").Instance

	_, err := e.mgr.Unload(ctx, "w")
	require.NoError(t, err)

	err = inst.Call(func(pluginapi.Plugin) error { return nil })
	assert.ErrorIs(t, err, plugins.ErrReleased)
}

func TestManager_ReloadReplacesInstance(t *testing.T) {
	e := newEnv(t)
	e.add(t, "ud", "ud")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "ud"))
	before := e.entry(t, "ud").Instance
	beforeID := instanceID(t, before)

	require.NoError(t, e.mgr.Reload(ctx, "ud"))

	after := e.entry(t, "ud").Instance
	assert.NotSame(t, before, after)
	assert.NotEqual(t, beforeID, instanceID(t, after))
	assert.Equal(t, []string{"ud:register", "ud:instance", "ud:module", "ud:register"}, e.rec.list())
	assert.Len(t, e.mgr.Snapshot(), 1)
}

func TestManager_ReloadReadsFreshSettings(t *testing.T) {
	e := newEnv(t)
	e.add(t, "ud", "ud")
	ctx := context.Background()
	e.setSettings("ud", plugins.Settings{Options: map[string]string{"limit": "1"}})
	require.NoError(t, e.mgr.Load(ctx, "ud"))

	e.setSettings("ud", plugins.Settings{Options: map[string]string{"limit": "5"}})
	require.NoError(t, e.mgr.Reload(ctx, "ud"))

	assert.Equal(t, "5", e.lastPlugin("ud").options["limit"])
}

func TestManager_ReloadAbsentLoads(t *testing.T) {
	e := newEnv(t)
	e.add(t, "dice", "roll")

	require.NoError(t, e.mgr.Reload(context.Background(), "dice"))
	assert.True(t, e.mgr.Loaded("dice"))
}

func TestManager_ReloadFailureLeavesPluginAbsent(t *testing.T) {
	e := newEnv(t)
	e.add(t, "ud", "ud")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "ud"))
	require.NoError(t, os.Remove(e.loader.Artifact(e.dir, "ud")))

	err := e.mgr.Reload(ctx, "ud")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugins.CodeReloadFailed)
	errutil.AssertErrorHint(t, err, "in-memory state discarded")
	assert.False(t, e.mgr.Loaded("ud"))
}

func TestManager_AtMostOneResidentPerName(t *testing.T) {
	e := newEnv(t)
	e.add(t, "a", "x")
	e.add(t, "b", "x")
	ctx := context.Background()

	ops := []func(){
		func() { _ = e.mgr.Load(ctx, "a") },
		func() { _ = e.mgr.Load(ctx, "a") },
		func() { _ = e.mgr.Reload(ctx, "a") },
		func() { _ = e.mgr.Load(ctx, "b") },
		func() { _, _ = e.mgr.Unload(ctx, "a") },
		func() { _ = e.mgr.Reload(ctx, "a") },
		func() { _ = e.mgr.Reload(ctx, "b") },
		func() { _ = e.mgr.Load(ctx, "b") },
	}
	for _, op := range ops {
		op()
		seen := map[string]int{}
		for _, en := range e.mgr.Snapshot() {
			seen[en.Name]++
		}
		for name, n := range seen {
			assert.Equal(t, 1, n, "plugin %s resident %d times", name, n)
		}
	}
	assert.Equal(t, []string{"a", "b"}, e.mgr.Plugins())
}

func TestManager_LoadAllSkipsFailures(t *testing.T) {
	e := newEnv(t)
	e.add(t, "a", "x")
	e.add(t, "c", "y")

	require.NoError(t, e.mgr.LoadAll(context.Background(), []string{"a", "missing", "c"}))

	assert.Equal(t, []string{"a", "c"}, e.mgr.Plugins())
}

func TestManager_Close(t *testing.T) {
	e := newEnv(t)
	e.add(t, "a", "x")
	e.add(t, "b", "y")
	ctx := context.Background()
	require.NoError(t, e.mgr.LoadAll(ctx, []string{"b", "a"}))

	require.NoError(t, e.mgr.Close(ctx))
	require.NoError(t, e.mgr.Close(ctx))

	assert.Empty(t, e.mgr.Plugins())
	assert.Equal(t, []string{
		"a:instance", "a:table", "a:module",
		"b:instance", "b:table", "b:module",
	}, e.stages.list())
	require.ErrorIs(t, e.mgr.Load(ctx, "a"), plugins.ErrManagerClosed)
	require.ErrorIs(t, e.mgr.LoadAll(ctx, []string{"a"}), plugins.ErrManagerClosed)
	_, err := e.mgr.Unload(ctx, "a")
	require.ErrorIs(t, err, plugins.ErrManagerClosed)
	require.ErrorIs(t, e.mgr.Reload(ctx, "a"), plugins.ErrManagerClosed)
}

func TestManager_UnloadWaitsForInFlightCall(t *testing.T) {
	e := newEnv(t)
	e.add(t, "slow", "x")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "slow"))
	inst := e.entry(t, "slow").Instance

	started := make(chan struct{})
	release := make(chan struct{})
	callDone := make(chan struct{})
	go func() {
		defer close(callDone)
		_ = inst.Call(func(pluginapi.Plugin) error {
			close(started)
			<-release
			e.rec.add("slow:call-finished")
			return nil
		})
	}()
	<-started
	e.rec.reset()

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	removed, err := e.mgr.Unload(ctx, "slow")
	<-callDone

	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"slow:call-finished", "slow:instance", "slow:module"}, e.rec.list())
}

func TestManager_UnloadGivesUpAfterDrainTimeout(t *testing.T) {
	e := newEnv(t, plugins.WithDrainTimeout(20*time.Millisecond))
	e.add(t, "stuck", "x")
	ctx := context.Background()
	require.NoError(t, e.mgr.Load(ctx, "stuck"))
	inst := e.entry(t, "stuck").Instance

	started := make(chan struct{})
	release := make(chan struct{})
	callDone := make(chan struct{})
	go func() {
		defer close(callDone)
		_ = inst.Call(func(pluginapi.Plugin) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	e.rec.reset()

	removed, err := e.mgr.Unload(ctx, "stuck")
	close(release)
	<-callDone

	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, e.mgr.Loaded("stuck"))
	// Close is skipped for an instance that never drained.
	assert.Equal(t, []string{"stuck:module"}, e.rec.list())
}

func TestManager_LifecycleMetrics(t *testing.T) {
	e := newEnv(t)
	e.add(t, "metered", "x")
	ctx := context.Background()

	okBefore := testutil.ToFloat64(plugins.LifecycleOps.WithLabelValues("metered", plugins.OpLoad, plugins.ResultSuccess))
	errBefore := testutil.ToFloat64(plugins.LifecycleOps.WithLabelValues("metered", plugins.OpLoad, plugins.ResultError))

	require.NoError(t, e.mgr.Load(ctx, "metered"))
	require.Error(t, e.mgr.Load(ctx, "metered"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(plugins.LifecycleOps.WithLabelValues("metered", plugins.OpLoad, plugins.ResultSuccess)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(plugins.LifecycleOps.WithLabelValues("metered", plugins.OpLoad, plugins.ResultError)))
}
