// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package admin executes operator commands received on the control socket.
// Every command yields exactly one reply line.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/errutil"
)

// Chat is the part of the IRC connection admin commands drive.
type Chat interface {
	SendChannel(ctx context.Context, channel, text string) error
	Broadcast(ctx context.Context, text string)
	Join(ctx context.Context, channel string) error
	Part(ctx context.Context, channel string) error
	Quit(ctx context.Context, message string) error
}

// Plugins is the plugin manager surface. *plugin.Manager implements it.
type Plugins interface {
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context, name string) (bool, error)
	Reload(ctx context.Context, name string) error
	Snapshot() []plugin.Entry
}

// ConfigReloader re-reads the configuration file.
type ConfigReloader interface {
	ReloadConfig() error
}

// ConfigReloaderFunc adapts a function to ConfigReloader.
type ConfigReloaderFunc func() error

// ReloadConfig implements ConfigReloader.
func (f ConfigReloaderFunc) ReloadConfig() error { return f() }

// ChannelValidator reports whether a channel name is acceptable.
type ChannelValidator func(string) bool

// Handler executes admin command lines.
type Handler struct {
	plugins      Plugins
	chat         Chat
	config       ConfigReloader
	validChannel ChannelValidator
	onQuit       func()
}

// Option configures a Handler.
type Option func(*Handler)

// WithOnQuit registers fn to run after a quit command was sent to IRC.
func WithOnQuit(fn func()) Option {
	return func(h *Handler) { h.onQuit = fn }
}

// WithChannelValidator rejects join targets fn refuses.
func WithChannelValidator(fn ChannelValidator) Option {
	return func(h *Handler) { h.validChannel = fn }
}

// NewHandler creates a handler. config may be nil, in which case reload-cfg
// reports that reloading is unavailable.
func NewHandler(plugins Plugins, chat Chat, config ConfigReloader, opts ...Option) *Handler {
	h := &Handler{plugins: plugins, chat: chat, config: config}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Commands lists the recognized command words.
var Commands = []string{"quit", "say", "load", "unload", "reload", "reload-cfg", "join", "leave", "list"}

// Execute runs one command line and returns its reply.
func (h *Handler) Execute(ctx context.Context, line string) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return "Say something, then."
	}
	arg := ""
	if len(words) > 1 {
		arg = words[1]
	}

	switch words[0] {
	case "quit":
		return h.quit(ctx, restAfter(line, 1))
	case "say":
		return h.say(ctx, arg, restAfter(line, 2))
	case "load":
		return h.load(ctx, arg)
	case "unload":
		return h.unload(ctx, arg)
	case "reload":
		return h.reload(ctx, arg)
	case "reload-cfg":
		return h.reloadConfig()
	case "join":
		return h.join(ctx, arg)
	case "leave":
		return h.leave(ctx, arg)
	case "list":
		return h.list()
	default:
		return "Unknown command, bro. Try one of: " + strings.Join(Commands, ", ")
	}
}

// restAfter returns line with its first n words and the following
// whitespace removed, keeping the spacing of the remainder.
func restAfter(line string, n int) string {
	rest := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return strings.TrimRight(rest, " \t")
}

func (h *Handler) quit(ctx context.Context, message string) string {
	if err := h.chat.Quit(ctx, message); err != nil {
		errutil.LogWarn(slog.Default(), "quit could not be sent", err)
	}
	if h.onQuit != nil {
		h.onQuit()
	}
	return "Quitting."
}

func (h *Handler) say(ctx context.Context, channel, text string) string {
	if channel == "" {
		return "Need channel, buddy."
	}
	if text == "" {
		return "Need something to say."
	}
	if err := h.chat.SendChannel(ctx, channel, text); err != nil {
		return fmt.Sprintf("Failed to send to %s: %v", channel, err)
	}
	return fmt.Sprintf("Sent to %s.", channel)
}

func (h *Handler) load(ctx context.Context, name string) string {
	if name == "" {
		return "Name, please!"
	}
	if err := h.plugins.Load(ctx, name); err != nil {
		errutil.LogWarn(slog.Default(), "admin load failed", err)
		return fmt.Sprintf("Failed to load %q: %s", name, describe(err))
	}
	h.chat.Broadcast(ctx, fmt.Sprintf("[Plugin '%s' was loaded]", name))
	return fmt.Sprintf("Loaded %q plugin.", name)
}

func (h *Handler) unload(ctx context.Context, name string) string {
	if name == "" {
		return "Don't forget the name!"
	}
	removed, err := h.plugins.Unload(ctx, name)
	if err != nil {
		return fmt.Sprintf("Failed to unload %q: %s", name, describe(err))
	}
	if !removed {
		return fmt.Sprintf("No plugin named %q is loaded.", name)
	}
	h.chat.Broadcast(ctx, fmt.Sprintf("[Plugin '%s' was unloaded]", name))
	return fmt.Sprintf("Removed %q plugin.", name)
}

func (h *Handler) reload(ctx context.Context, name string) string {
	if name == "" {
		return "Need a name."
	}
	// Re-read the file so the plugin gets its current options. A broken
	// file leaves the previous configuration in effect.
	var cfgErr error
	if h.config != nil {
		if cfgErr = h.config.ReloadConfig(); cfgErr != nil {
			errutil.LogWarn(slog.Default(), "config reload before plugin reload failed", cfgErr)
		}
	}
	if err := h.plugins.Reload(ctx, name); err != nil {
		errutil.LogWarn(slog.Default(), "admin reload failed", err)
		return fmt.Sprintf("Failed to reload plugin %s: %s", name, describe(err))
	}
	h.chat.Broadcast(ctx, fmt.Sprintf("[Plugin '%s' was reloaded]", name))
	if cfgErr != nil {
		return fmt.Sprintf("Reloaded plugin %s with the previous configuration: %s", name, describe(cfgErr))
	}
	return fmt.Sprintf("Reloaded plugin %s", name)
}

func (h *Handler) reloadConfig() string {
	if h.config == nil {
		return "Configuration reloading is not available."
	}
	if err := h.config.ReloadConfig(); err != nil {
		errutil.LogWarn(slog.Default(), "admin config reload failed", err)
		return describe(err)
	}
	return "Configuration reloaded."
}

func (h *Handler) join(ctx context.Context, channel string) string {
	if channel == "" {
		return "Need a channel name to join"
	}
	if h.validChannel != nil && !h.validChannel(channel) {
		return fmt.Sprintf("%q is not a channel name.", channel)
	}
	if err := h.chat.Join(ctx, channel); err != nil {
		return fmt.Sprintf("Failed to join %s: %v", channel, err)
	}
	return fmt.Sprintf("Joining %s.", channel)
}

func (h *Handler) leave(ctx context.Context, channel string) string {
	if channel == "" {
		return "Need a channel name to leave"
	}
	if err := h.chat.Part(ctx, channel); err != nil {
		return fmt.Sprintf("Failed to leave %s: %v", channel, err)
	}
	return fmt.Sprintf("Leaving %s.", channel)
}

func (h *Handler) list() string {
	entries := h.plugins.Snapshot()
	if len(entries) == 0 {
		return "No plugins loaded."
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		names := make([]string, len(e.Commands))
		for j, c := range e.Commands {
			names[j] = c.Name
		}
		if len(names) == 0 {
			parts[i] = e.Name
			continue
		}
		parts[i] = fmt.Sprintf("%s (%s)", e.Name, strings.Join(names, ", "))
	}
	return "Loaded plugins: " + strings.Join(parts, "; ")
}

// describe renders an error for the operator, with its hint when present.
func describe(err error) string {
	msg := err.Error()
	if hint := errutil.Hint(err); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}
