// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package pluginapi is the contract between the bot and its plugins.
//
// A plugin is a Go package built with -buildmode=plugin (or a Lua script, see
// internal/plugin/lua) that exports a constructor named Init:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/boncarobot/boncarobot/pkg/pluginapi"
//	)
//
//	type hello struct {
//		pluginapi.Base
//	}
//
//	func (h *hello) Register(t *pluginapi.CommandTable) {
//		t.Add(pluginapi.NewCommand("hello", "Say hello", h.hello))
//	}
//
//	func (h *hello) hello(_ context.Context, c *pluginapi.Context, _ *pluginapi.ParsedOpts) error {
//		return c.Send("hello, " + c.Nick)
//	}
//
//	func Init() pluginapi.Plugin { return &hello{} }
//
// The host calls Init once per load, then Register exactly once, then
// Configure if the plugin implements Configurable. Every call into a plugin
// instance is serialized by the host, so plugins need no locking of their own.
package pluginapi

import "context"

// InitSymbol is the name of the constructor every plugin module exports.
const InitSymbol = "Init"

// InitFunc is the type of the exported constructor.
type InitFunc = func() Plugin

// Plugin is implemented by every loadable unit.
type Plugin interface {
	// Register describes the plugin's commands. It must not block or perform I/O.
	Register(t *CommandTable)

	// OnChannelMessage is invoked for every line said in a channel, whether or
	// not it was also recognized as a command.
	OnChannelMessage(ctx context.Context, c *Context, text string) error
}

// Configurable plugins receive their configured options after Register, on
// every load and reload.
type Configurable interface {
	Configure(options map[string]string) error
}

// Closer plugins are notified when their instance is released, before the
// module backing them is.
type Closer interface {
	Close() error
}

// Base provides no-op implementations of the Plugin methods.
// Embed it and override what you need.
type Base struct{}

// Register registers nothing.
func (Base) Register(*CommandTable) {}

// OnChannelMessage ignores the message.
func (Base) OnChannelMessage(context.Context, *Context, string) error { return nil }
