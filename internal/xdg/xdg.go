// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package xdg resolves XDG Base Directory paths for boncarobot.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "boncarobot"

// base returns $env, or $HOME joined with fallback when env is unset.
func base(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
}

// ConfigDir is $XDG_CONFIG_HOME/boncarobot, default ~/.config/boncarobot.
func ConfigDir() string {
	return filepath.Join(base("XDG_CONFIG_HOME", ".config"), appName)
}

// DataDir is $XDG_DATA_HOME/boncarobot, default ~/.local/share/boncarobot.
// Plugin artifacts live under it unless configured elsewhere.
func DataDir() string {
	return filepath.Join(base("XDG_DATA_HOME", ".local", "share"), appName)
}

// StateDir is $XDG_STATE_HOME/boncarobot, default ~/.local/state/boncarobot.
func StateDir() string {
	return filepath.Join(base("XDG_STATE_HOME", ".local", "state"), appName)
}

// RuntimeDir holds the control socket. It is $XDG_RUNTIME_DIR/boncarobot,
// or StateDir()/run when XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(StateDir(), "run")
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
