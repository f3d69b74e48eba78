// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package dispatch routes chat lines to plugins: help, command resolution
// and the per-line broadcast.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/errutil"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

var tracer = otel.Tracer("boncarobot/dispatch")

// TieBreak selects which plugin handles a command name registered by more
// than one resident plugin.
type TieBreak string

// Tie-break policies. Plugins are ordered by name.
const (
	TieBreakFirst TieBreak = "first"
	TieBreakLast  TieBreak = "last"
	TieBreakAll   TieBreak = "all"
)

// Defaults for Settings.
const (
	DefaultPrefix   = "!"
	DefaultHelpWord = "help"
)

// Settings are read for every event, so configuration reloads apply to the
// next line.
type Settings struct {
	Prefix   string
	HelpWord string
	TieBreak TieBreak
	Suggest  bool
}

func (s Settings) withDefaults() Settings {
	if s.Prefix == "" {
		s.Prefix = DefaultPrefix
	}
	if s.HelpWord == "" {
		s.HelpWord = DefaultHelpWord
	}
	if s.TieBreak == "" {
		s.TieBreak = TieBreakLast
	}
	return s
}

// Event is one line said in a channel.
type Event struct {
	Channel string
	Nick    string
	Text    string
}

// Source supplies the resident plugins. *plugin.Manager implements it.
type Source interface {
	Snapshot() []plugin.Entry
}

// Dispatcher turns chat events into plugin invocations. Each invocation
// runs in its own goroutine; a slow or faulting plugin affects nobody else.
type Dispatcher struct {
	source   Source
	sender   pluginapi.Sender
	settings func() Settings

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithSettings uses fixed settings.
func WithSettings(s Settings) DispatcherOption {
	return func(d *Dispatcher) {
		d.settings = func() Settings { return s }
	}
}

// WithSettingsFunc reads settings from fn on every event.
func WithSettingsFunc(fn func() Settings) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.settings = fn
		}
	}
}

// NewDispatcher creates a dispatcher. Returns an error if source or sender is nil.
func NewDispatcher(source Source, sender pluginapi.Sender, opts ...DispatcherOption) (*Dispatcher, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if sender == nil {
		return nil, ErrNilSender
	}
	d := &Dispatcher{
		source:   source,
		sender:   sender,
		settings: func() Settings { return Settings{} },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch handles one event. It returns once every invocation has been
// started; use Wait to wait for them to finish.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	s := d.settings().withDefaults()
	text := strings.TrimRightFunc(ev.Text, func(r rune) bool { return r == '\r' || r == '\n' })
	ev.Text = text

	entries := visible(d.source.Snapshot(), ev.Channel)

	if arg, ok := parseHelp(s.Prefix, s.HelpWord, text); ok {
		d.reply(ctx, ev, helpReply(s, entries, ev.Nick, arg))
		return
	}

	if cmd, ok := ParseCommand(s.Prefix, text); ok {
		d.command(ctx, s, entries, ev, cmd)
	}

	for _, e := range entries {
		d.deliver(ctx, ev, e)
	}
}

// Wait blocks until every started invocation has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func visible(entries []plugin.Entry, channel string) []plugin.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Accepts(channel) {
			out = append(out, e)
		}
	}
	return out
}

type match struct {
	entry plugin.Entry
	cmd   pluginapi.Command
}

// command resolves and starts a command invocation.
func (d *Dispatcher) command(ctx context.Context, s Settings, entries []plugin.Entry, ev Event, pc ParsedCommand) {
	var matches []match
	for _, e := range entries {
		if c, ok := e.Lookup(pc.Name); ok {
			matches = append(matches, match{entry: e, cmd: c})
		}
	}

	if len(matches) == 0 {
		UnknownCommands.Inc()
		suggestion := ""
		if s.Suggest {
			if c := closest(pc.Name, commandNames(entries)); c != "" {
				suggestion = s.Prefix + c
			}
		}
		d.reply(ctx, ev, ChannelMessage(ErrUnknownCommand(pc.Name, suggestion)))
		return
	}

	if len(matches) > 1 {
		owners := make([]string, len(matches))
		for i, m := range matches {
			owners[i] = m.entry.Name
		}
		slog.Warn("command registered by several plugins",
			"command", pc.Name,
			"plugins", owners,
			"tie_break", string(s.TieBreak))
		switch s.TieBreak {
		case TieBreakFirst:
			matches = matches[:1]
		case TieBreakAll:
		default:
			matches = matches[len(matches)-1:]
		}
	}

	for _, m := range matches {
		opts, err := pluginapi.ParseOpts(pc.Args, m.cmd.Opts)
		if err != nil {
			d.reply(ctx, ev, fmt.Sprintf("%s: %s", pc.Name, ChannelMessage(err)))
			continue
		}
		cmd := m.cmd
		d.spawn(ctx, ev, m.entry, KindCommand, cmd.Name, func(ctx context.Context, c *pluginapi.Context, _ pluginapi.Plugin) error {
			return cmd.Handler(ctx, c, opts)
		})
	}
}

// deliver starts the broadcast handler of one plugin.
func (d *Dispatcher) deliver(ctx context.Context, ev Event, e plugin.Entry) {
	text := ev.Text
	d.spawn(ctx, ev, e, KindMessage, "", func(ctx context.Context, c *pluginapi.Context, p pluginapi.Plugin) error {
		return p.OnChannelMessage(ctx, c, text)
	})
}

type invokeFunc func(ctx context.Context, c *pluginapi.Context, p pluginapi.Plugin) error

func (d *Dispatcher) spawn(ctx context.Context, ev Event, e plugin.Entry, kind, command string, fn invokeFunc) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		id := ulid.Make().String()
		ctx, span := tracer.Start(ctx, "dispatch.invoke",
			trace.WithAttributes(
				attribute.String("invocation.id", id),
				attribute.String("plugin.name", e.Name),
				attribute.String("invocation.kind", kind),
				attribute.String("command.name", command),
				attribute.String("irc.channel", ev.Channel),
			),
		)
		defer span.End()

		start := time.Now()
		c := pluginapi.NewContext(ctx, d.sender, ev.Channel, ev.Nick)
		err := e.Instance.Call(func(p pluginapi.Plugin) error {
			return fn(ctx, c, p)
		})
		status := d.outcome(ctx, ev, e.Name, kind, command, id, err)
		if err != nil && status != StatusReleased {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		RecordInvocation(e.Name, kind, status, time.Since(start))
	}()
}

// outcome logs and reports the result of an invocation and returns its
// metrics status.
func (d *Dispatcher) outcome(ctx context.Context, ev Event, name, kind, command, id string, err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, plugin.ErrReleased):
		slog.DebugContext(ctx, "plugin unloaded before invocation",
			"plugin", name,
			"invocation_id", id)
		return StatusReleased
	case errutil.Code(err) == plugin.CodeInvocationFault:
		errutil.LogError(slog.Default(), "plugin invocation faulted", err)
		d.reply(ctx, ev, ChannelMessage(err))
		return StatusFault
	default:
		slog.WarnContext(ctx, "plugin invocation failed",
			"plugin", name,
			"kind", kind,
			"command", command,
			"invocation_id", id,
			"error", err)
		if kind == KindCommand {
			d.reply(ctx, ev, fmt.Sprintf("%s: %s", command, ChannelMessage(err)))
		}
		return StatusError
	}
}

func (d *Dispatcher) reply(ctx context.Context, ev Event, text string) {
	if err := pluginapi.NewContext(ctx, d.sender, ev.Channel, ev.Nick).Send(text); err != nil {
		slog.WarnContext(ctx, "failed to send reply",
			"channel", ev.Channel,
			"error", err)
	}
}

func commandNames(entries []plugin.Entry) []string {
	var names []string
	for _, e := range entries {
		for _, c := range e.Commands {
			names = append(names, c.Name)
		}
	}
	return names
}
