// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package main

import (
	"io"
	"os"

	"github.com/boncarobot/boncarobot/internal/irc"
	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/plugins/tell"
	"github.com/boncarobot/boncarobot/plugins/ud"
)

// RunDeps contains injectable dependencies for the run command.
// All fields with nil values will use their default implementations.
type RunDeps struct {
	// Dialer opens the IRC connection.
	// Default: TCP, or TLS when server.tls is set.
	Dialer irc.DialFunc

	// Builtins are the plugins compiled into the binary, tried after the
	// plugin directory.
	// Default: defaultBuiltins
	Builtins plugin.Builtins

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM.
	Signals <-chan os.Signal

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer
}

// defaultBuiltins returns the plugins shipped inside the binary. They load
// as builtin:<name> when no module of that name is in the plugin directory.
func defaultBuiltins() plugin.Builtins {
	return plugin.Builtins{
		"tell": tell.New,
		"ud":   ud.New,
	}
}
