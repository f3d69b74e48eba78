// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package pluginapi

import (
	"context"
	"fmt"
	"strings"
)

// HandlerFunc handles one invocation of a command.
type HandlerFunc func(ctx context.Context, c *Context, opts *ParsedOpts) error

// OptDef describes one option a command accepts.
// Short may be zero for long-only options.
type OptDef struct {
	Short     rune
	Long      string
	Help      string
	TakesArgs bool
}

func (d OptDef) String() string {
	var b strings.Builder
	if d.Short != 0 {
		b.WriteByte('-')
		b.WriteRune(d.Short)
		b.WriteByte('/')
	}
	b.WriteString("--")
	b.WriteString(d.Long)
	if d.TakesArgs {
		b.WriteString(" <arg>")
	}
	return b.String()
}

// Command is one entry of a plugin's command table.
type Command struct {
	Name    string
	Help    string
	Opts    []OptDef
	Handler HandlerFunc
}

// NewCommand creates a command without options.
func NewCommand(name, help string, fn HandlerFunc) *Command {
	return &Command{Name: name, Help: help, Handler: fn}
}

// Opt appends an option definition and returns the command for chaining.
func (c *Command) Opt(short rune, long, help string, takesArgs bool) *Command {
	c.Opts = append(c.Opts, OptDef{Short: short, Long: long, Help: help, TakesArgs: takesArgs})
	return c
}

// HelpText is the help line with option summaries appended.
func (c *Command) HelpText() string {
	if len(c.Opts) == 0 {
		return c.Help
	}
	parts := make([]string, 0, len(c.Opts))
	for _, o := range c.Opts {
		parts = append(parts, fmt.Sprintf("%s: %s", o, o.Help))
	}
	return c.Help + " Options: " + strings.Join(parts, "; ")
}

// CommandTable is the set of commands a plugin exposes. Entries keep
// registration order; names are unique within a table.
type CommandTable struct {
	cmds []Command
}

// Add registers cmd. A command with the same name replaces the earlier entry
// in place.
func (t *CommandTable) Add(cmd *Command) {
	if cmd == nil || cmd.Name == "" || cmd.Handler == nil {
		return
	}
	for i := range t.cmds {
		if t.cmds[i].Name == cmd.Name {
			t.cmds[i] = *cmd
			return
		}
	}
	t.cmds = append(t.cmds, *cmd)
}

// AddFunc registers a command without options.
func (t *CommandTable) AddFunc(name, help string, fn HandlerFunc) {
	t.Add(NewCommand(name, help, fn))
}

// Lookup finds a command by exact name.
func (t *CommandTable) Lookup(name string) (Command, bool) {
	if t == nil {
		return Command{}, false
	}
	for _, c := range t.cmds {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Commands returns a copy of the entries in registration order.
func (t *CommandTable) Commands() []Command {
	if t == nil {
		return nil
	}
	out := make([]Command, len(t.cmds))
	copy(out, t.cmds)
	return out
}

// Names returns command names in registration order.
func (t *CommandTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.cmds))
	for i, c := range t.cmds {
		names[i] = c.Name
	}
	return names
}

// Len reports the number of commands.
func (t *CommandTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.cmds)
}

// Reset drops every entry.
func (t *CommandTable) Reset() {
	t.cmds = nil
}
