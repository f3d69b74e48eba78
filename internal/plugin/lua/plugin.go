// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Script entry points. All are optional.
//
//	function register(cmds)
//	  cmds.add("roll", "Roll dice", function(ctx, opts) ... end,
//	           {{short = "s", long = "sides", help = "Sides per die", args = true}})
//	end
//	function configure(options) end
//	function on_channel_message(ctx, text) end
//
// ctx carries channel and nick plus send(text) and reply(text). opts carries
// raw, text, free and opt[long] (the option's arguments). A handler that
// returns a string has it sent to the channel.
const (
	fnRegister  = "register"
	fnConfigure = "configure"
	fnOnMessage = "on_channel_message"
)

// scriptPlugin adapts a Lua state to pluginapi.Plugin. The instance
// wrapper serializes calls, which the single-threaded state relies on.
type scriptPlugin struct {
	name string
	L    *lua.LState
}

var (
	_ pluginapi.Plugin       = (*scriptPlugin)(nil)
	_ pluginapi.Configurable = (*scriptPlugin)(nil)
	_ pluginapi.Closer       = (*scriptPlugin)(nil)
)

func (p *scriptPlugin) Register(t *pluginapi.CommandTable) {
	fn := p.L.GetGlobal(fnRegister)
	if fn.Type() != lua.LTFunction {
		return
	}
	cmds := p.L.NewTable()
	p.L.SetField(cmds, "add", p.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		help := L.OptString(2, "")
		handler := L.CheckFunction(3)
		cmd := pluginapi.NewCommand(name, help, p.handler(handler))
		if defs, ok := L.Get(4).(*lua.LTable); ok {
			defs.ForEach(func(_, v lua.LValue) {
				if d, ok := v.(*lua.LTable); ok {
					cmd.Opt(firstRune(d.RawGetString("short")), lua.LVAsString(d.RawGetString("long")),
						lua.LVAsString(d.RawGetString("help")), lua.LVAsBool(d.RawGetString("args")))
				}
			})
		}
		t.Add(cmd)
		return 0
	}))
	if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, cmds); err != nil {
		// Register has no error return; surface it as a construction fault.
		panic(oops.In("lua").With("plugin", p.name).With("operation", fnRegister).Wrap(err))
	}
}

func (p *scriptPlugin) Configure(options map[string]string) error {
	tbl := p.L.NewTable()
	for k, v := range options {
		p.L.SetField(tbl, k, lua.LString(v))
	}
	p.L.SetGlobal("options", tbl)

	fn := p.L.GetGlobal(fnConfigure)
	if fn.Type() != lua.LTFunction {
		return nil
	}
	if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl); err != nil {
		return oops.In("lua").With("plugin", p.name).With("operation", fnConfigure).Wrap(err)
	}
	return nil
}

func (p *scriptPlugin) OnChannelMessage(ctx context.Context, c *pluginapi.Context, text string) error {
	fn := p.L.GetGlobal(fnOnMessage)
	if fn.Type() != lua.LTFunction {
		return nil
	}
	return p.call(ctx, c, fnOnMessage, fn, p.contextTable(c), lua.LString(text))
}

func (p *scriptPlugin) Close() error {
	p.L.Close()
	return nil
}

func (p *scriptPlugin) handler(fn *lua.LFunction) pluginapi.HandlerFunc {
	return func(ctx context.Context, c *pluginapi.Context, opts *pluginapi.ParsedOpts) error {
		return p.call(ctx, c, "command", fn, p.contextTable(c), p.optsTable(opts))
	}
}

// call runs fn with ctx attached and sends a returned string.
func (p *scriptPlugin) call(ctx context.Context, c *pluginapi.Context, op string, fn lua.LValue, args ...lua.LValue) error {
	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return oops.In("lua").With("plugin", p.name).With("operation", op).Wrap(err)
	}
	ret := p.L.Get(-1)
	p.L.Pop(1)
	if s, ok := ret.(lua.LString); ok && s != "" {
		return c.Send(string(s))
	}
	return nil
}

func (p *scriptPlugin) contextTable(c *pluginapi.Context) *lua.LTable {
	t := p.L.NewTable()
	p.L.SetField(t, "channel", lua.LString(c.Channel))
	p.L.SetField(t, "nick", lua.LString(c.Nick))
	p.L.SetField(t, "send", p.L.NewFunction(func(L *lua.LState) int {
		if err := c.Send(L.CheckString(1)); err != nil {
			L.RaiseError("send: %s", err.Error())
		}
		return 0
	}))
	p.L.SetField(t, "reply", p.L.NewFunction(func(L *lua.LState) int {
		if err := c.Reply(L.CheckString(1)); err != nil {
			L.RaiseError("reply: %s", err.Error())
		}
		return 0
	}))
	return t
}

func (p *scriptPlugin) optsTable(opts *pluginapi.ParsedOpts) *lua.LTable {
	t := p.L.NewTable()
	p.L.SetField(t, "raw", lua.LString(opts.Raw))
	p.L.SetField(t, "text", lua.LString(opts.FreeText()))
	t.RawSetString("free", p.stringList(opts.Free))
	given := p.L.NewTable()
	for _, name := range opts.Names() {
		given.RawSetString(name, p.stringList(opts.Get(name)))
	}
	t.RawSetString("opt", given)
	return t
}

func (p *scriptPlugin) stringList(items []string) *lua.LTable {
	t := p.L.NewTable()
	for _, s := range items {
		t.Append(lua.LString(s))
	}
	return t
}

func firstRune(v lua.LValue) rune {
	for _, r := range lua.LVAsString(v) {
		return r
	}
	return 0
}
