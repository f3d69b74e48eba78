// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package dispatch_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/boncarobot/boncarobot/internal/dispatch"
	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

type sink struct {
	mu   sync.Mutex
	sent []string
}

func (s *sink) SendChannel(_ context.Context, channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, channel+" "+text)
	return nil
}

func (s *sink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.sent...)
	return out
}

// testPlugin registers fixed commands and optionally reacts to every line.
type testPlugin struct {
	pluginapi.Base
	commands  []*pluginapi.Command
	onMessage func(c *pluginapi.Context, text string) error
}

func (p *testPlugin) Register(t *pluginapi.CommandTable) {
	for _, c := range p.commands {
		t.Add(c)
	}
}

func (p *testPlugin) OnChannelMessage(_ context.Context, c *pluginapi.Context, text string) error {
	if p.onMessage != nil {
		return p.onMessage(c, text)
	}
	return nil
}

func sendArgs(prefix string) pluginapi.HandlerFunc {
	return func(_ context.Context, c *pluginapi.Context, o *pluginapi.ParsedOpts) error {
		return c.Send(prefix + o.FreeText())
	}
}

func udPlugin() pluginapi.Plugin {
	return &testPlugin{commands: []*pluginapi.Command{
		pluginapi.NewCommand("ud", "Urban Dictionary lookup.", func(_ context.Context, c *pluginapi.Context, o *pluginapi.ParsedOpts) error {
			n := o.First("number")
			if n == "" {
				n = "1"
			}
			return c.Send("ud#" + n + " " + o.FreeText())
		}).Opt('n', "number", "Definition index", true),
	}}
}

func wPlugin() pluginapi.Plugin {
	return &testPlugin{commands: []*pluginapi.Command{
		pluginapi.NewCommand("w", "Wikipedia lookup.", sendArgs("w: ")),
	}}
}

type fixture struct {
	mgr  *plugin.Manager
	out  *sink
	disp *dispatch.Dispatcher
}

func newFixture(t *testing.T, settings dispatch.Settings, builtins plugin.Builtins, channels map[string][]string) *fixture {
	t.Helper()
	mgr := plugin.NewManager(t.TempDir(),
		plugin.WithLoaders(builtins),
		plugin.WithSettings(plugin.SettingsFunc(func(name string) plugin.Settings {
			return plugin.Settings{Channels: channels[name]}
		})),
	)
	require.NoError(t, mgr.LoadAll(context.Background(), builtins.Names()))
	require.Len(t, mgr.Plugins(), len(builtins))
	out := &sink{}
	d, err := dispatch.NewDispatcher(mgr, out, dispatch.WithSettings(settings))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return &fixture{mgr: mgr, out: out, disp: d}
}

func (f *fixture) say(text string) []string {
	f.disp.Dispatch(context.Background(), dispatch.Event{Channel: "#test", Nick: "bob", Text: text})
	f.disp.Wait()
	msgs := f.out.messages()
	f.out.mu.Lock()
	f.out.sent = nil
	f.out.mu.Unlock()
	return msgs
}

func TestNewDispatcher_RequiresDependencies(t *testing.T) {
	_, err := dispatch.NewDispatcher(nil, &sink{})
	require.ErrorIs(t, err, dispatch.ErrNilSource)

	_, err = dispatch.NewDispatcher(plugin.NewManager(""), nil)
	require.ErrorIs(t, err, dispatch.ErrNilSender)
}

func TestDispatch_CommandInvokesHandler(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"ud": udPlugin, "w": wPlugin}, nil)

	assert.Equal(t, []string{"#test ud#3 rust lang"}, f.say("!ud -n 3 rust lang"))
	assert.Equal(t, []string{"#test w: Go"}, f.say("!w Go"))
}

func TestDispatch_CustomPrefix(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{Prefix: ".."}, plugin.Builtins{"w": wPlugin}, nil)

	assert.Equal(t, []string{"#test w: x"}, f.say("..w x"))
	assert.Empty(t, f.say("!w x"))
}

func TestDispatch_DigitAfterPrefixIsNotACommand(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"w": wPlugin}, nil)

	assert.Empty(t, f.say("!5 apples"))
}

func TestDispatch_HelpAggregate(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"ud": udPlugin, "w": wPlugin}, nil)

	got := f.say("!help")

	assert.Equal(t, []string{"#test bob: The following commands are available (!help <command>): ud, w"}, got)
}

func TestDispatch_HelpForCommand(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"ud": udPlugin, "w": wPlugin}, nil)

	assert.Equal(t, []string{"#test bob: Urban Dictionary lookup. Options: -n/--number <arg>: Definition index"}, f.say("!help ud"))
	assert.Equal(t, []string{"#test bob: Wikipedia lookup."}, f.say("!help w extra words"))
}

func TestDispatch_HelpForUnknownCommandListsAll(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{HelpWord: "commands"}, plugin.Builtins{"w": wPlugin}, nil)

	assert.Equal(t, []string{"#test bob: The following commands are available (!commands <command>): w"}, f.say("!commands nope"))
}

func TestDispatch_HelpShortCircuitsBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t)
	var seen []string
	var mu sync.Mutex
	listener := func() pluginapi.Plugin {
		return &testPlugin{onMessage: func(_ *pluginapi.Context, text string) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, text)
			return nil
		}}
	}
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"listener": listener}, nil)

	f.say("!help")
	f.say("plain line")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"plain line"}, seen)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"ud": udPlugin, "w": wPlugin}, nil)
	before := testutil.ToFloat64(dispatch.UnknownCommands)

	assert.Equal(t, []string{"#test Unknown command: frobnicate"}, f.say("!frobnicate"))
	assert.Equal(t, before+1, testutil.ToFloat64(dispatch.UnknownCommands))
}

func TestDispatch_UnknownCommandSuggestion(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{Suggest: true}, plugin.Builtins{"ud": udPlugin, "w": wPlugin}, nil)

	assert.Equal(t, []string{"#test Unknown command: udd (did you mean !ud?)"}, f.say("!udd"))
	assert.Equal(t, []string{"#test Unknown command: frobnicate"}, f.say("!frobnicate"))
}

func TestDispatch_BroadcastReachesEveryPlugin(t *testing.T) {
	defer goleak.VerifyNone(t)
	echoer := func(tag string) pluginapi.InitFunc {
		return func() pluginapi.Plugin {
			return &testPlugin{onMessage: func(c *pluginapi.Context, text string) error {
				return c.Send(tag + " saw " + text + " from " + c.Nick)
			}}
		}
	}
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"a": echoer("a"), "b": echoer("b")}, nil)

	got := f.say("hello there")

	assert.ElementsMatch(t, []string{"#test a saw hello there from bob", "#test b saw hello there from bob"}, got)
}

func TestDispatch_FaultIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)
	crash := func() pluginapi.Plugin {
		return &testPlugin{onMessage: func(*pluginapi.Context, string) error {
			var m map[string]int
			m["boom"]++ // nil map write
			return nil
		}}
	}
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"crash": crash, "w": wPlugin}, nil)

	got := f.say("!w Go")

	assert.ElementsMatch(t, []string{"#test w: Go", `#test Plugin "crash" failed.`}, got)

	// the faulting plugin stays loaded and usable
	assert.Equal(t, []string{"crash", "w"}, f.mgr.Plugins())
}

func TestDispatch_TieBreak(t *testing.T) {
	owner := func(tag string) pluginapi.InitFunc {
		return func() pluginapi.Plugin {
			return &testPlugin{commands: []*pluginapi.Command{
				pluginapi.NewCommand("dup", "", sendArgs(tag)),
			}}
		}
	}

	tests := []struct {
		policy dispatch.TieBreak
		want   []string
	}{
		{dispatch.TieBreakLast, []string{"#test beta"}},
		{"", []string{"#test beta"}},
		{dispatch.TieBreakFirst, []string{"#test alpha"}},
		{dispatch.TieBreakAll, []string{"#test alpha", "#test beta"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			defer goleak.VerifyNone(t)
			f := newFixture(t, dispatch.Settings{TieBreak: tt.policy},
				plugin.Builtins{"alpha": owner("alpha"), "beta": owner("beta")}, nil)

			got := f.say("!dup")
			sort.Strings(got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatch_OptionParseFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"ud": udPlugin}, nil)

	got := f.say("!ud -z word")

	require.Len(t, got, 1)
	assert.Contains(t, got[0], "#test ud: unknown shorthand flag")
}

func TestDispatch_FreeTextReachesHandlerAsTyped(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"ud": udPlugin, "w": wPlugin}, nil)

	assert.Equal(t, []string{"#test w: meet me in [room 5"}, f.say("!w meet me in [room 5"))
	assert.Equal(t, []string{`#test w: C:\temp\x "ok"`}, f.say(`!w C:\temp\x "ok"`))
	assert.Equal(t, []string{"#test ud#2 see [1"}, f.say("!ud -n 2 see [1"))
}

func TestDispatch_HandlerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	failing := func() pluginapi.Plugin {
		return &testPlugin{commands: []*pluginapi.Command{
			pluginapi.NewCommand("plain", "", func(context.Context, *pluginapi.Context, *pluginapi.ParsedOpts) error {
				return errors.New("connection refused to 10.0.0.1")
			}),
			pluginapi.NewCommand("public", "", func(context.Context, *pluginapi.Context, *pluginapi.ParsedOpts) error {
				return oops.Code("NO_RESULT").Public("No definition found.").Errorf("empty result list")
			}),
		}}
	}
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"failing": failing}, nil)

	assert.Equal(t, []string{"#test plain: Something went wrong."}, f.say("!plain"))
	assert.Equal(t, []string{"#test public: No definition found."}, f.say("!public"))
}

func TestDispatch_ChannelScope(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"w": wPlugin},
		map[string][]string{"w": {"#wiki-*"}})

	assert.Equal(t, []string{"#test Unknown command: w"}, f.say("!w Go"))

	f.disp.Dispatch(context.Background(), dispatch.Event{Channel: "#wiki-en", Nick: "bob", Text: "!w Go"})
	f.disp.Wait()
	assert.Equal(t, []string{"#wiki-en w: Go"}, f.out.messages())
}

func TestDispatch_SettingsFuncIsReadPerEvent(t *testing.T) {
	defer goleak.VerifyNone(t)
	mgr := plugin.NewManager(t.TempDir(), plugin.WithLoaders(plugin.Builtins{"w": wPlugin}))
	require.NoError(t, mgr.Load(context.Background(), "w"))
	defer func() { _ = mgr.Close(context.Background()) }()

	prefix := "!"
	out := &sink{}
	d, err := dispatch.NewDispatcher(mgr, out, dispatch.WithSettingsFunc(func() dispatch.Settings {
		return dispatch.Settings{Prefix: prefix}
	}))
	require.NoError(t, err)

	d.Dispatch(context.Background(), dispatch.Event{Channel: "#c", Nick: "n", Text: "!w one"})
	d.Wait()
	prefix = "?"
	d.Dispatch(context.Background(), dispatch.Event{Channel: "#c", Nick: "n", Text: "!w two"})
	d.Dispatch(context.Background(), dispatch.Event{Channel: "#c", Nick: "n", Text: "?w three"})
	d.Wait()

	assert.Equal(t, []string{"#c w: one", "#c w: three"}, out.messages())
}

func TestDispatch_InvocationMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, dispatch.Settings{}, plugin.Builtins{"metered": wPlugin}, nil)
	success := dispatch.Invocations.WithLabelValues("metered", dispatch.KindCommand, dispatch.StatusSuccess)
	before := testutil.ToFloat64(success)

	f.say("!w x")

	assert.Equal(t, before+1, testutil.ToFloat64(success))
}
