// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/boncarobot/boncarobot/internal/config"
	"github.com/boncarobot/boncarobot/internal/control"
	"github.com/boncarobot/boncarobot/internal/xdg"
)

// ctlConfig holds configuration for the ctl command.
type ctlConfig struct {
	socket  string
	timeout time.Duration
}

// NewCtlCmd creates the ctl subcommand.
func NewCtlCmd() *cobra.Command {
	cfg := &ctlConfig{}

	cmd := &cobra.Command{
		Use:   "ctl [command...]",
		Short: "Send admin commands to a running bot",
		Long: `Send one admin command to a running bot, or start an interactive prompt
when no command is given. Commands: quit, say, load, unload, reload,
reload-cfg, join, leave, list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(resolveSocket(cfg.socket), cfg.timeout)
			if len(args) > 0 {
				return runCommand(cmd.Context(), client, cmd.OutOrStdout(), strings.Join(args, " "))
			}
			_ = xdg.EnsureDir(xdg.StateDir())
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     filepath.Join(xdg.StateDir(), "ctl_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "",
				Stdout:          cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("failed to start prompt: %w", err)
			}
			defer func() { _ = rl.Close() }()
			return repl(cmd.Context(), rl, client, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cfg.socket, "socket", "", "control socket path (default: from config, else XDG_RUNTIME_DIR/boncarobot/control.sock)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", control.DefaultClientTimeout, "request timeout")

	return cmd
}

// resolveSocket picks the explicit socket, then the config file's, then the default.
func resolveSocket(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}
	if c, err := config.Load(path, nil); err == nil && c.Control.Socket != "" {
		return c.Control.Socket
	}
	return control.DefaultSocketPath()
}

// commander runs one admin command line. *control.Client implements it.
type commander interface {
	Command(ctx context.Context, line string) (string, error)
}

// lineReader yields input lines. *readline.Instance implements it.
type lineReader interface {
	Readline() (string, error)
}

func runCommand(ctx context.Context, c commander, out io.Writer, line string) error {
	reply, err := c.Command(ctx, line)
	if reply != "" {
		_, _ = fmt.Fprintln(out, reply)
	}
	if err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// repl sends every line read to the bot until end of input or interrupt.
// A failed command is reported and the prompt continues.
func repl(ctx context.Context, in lineReader, c commander, out io.Writer) error {
	for {
		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := runCommand(ctx, c, out, line); err != nil {
			_, _ = fmt.Fprintln(out, err)
		}
	}
}
