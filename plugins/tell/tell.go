// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package tell leaves messages for people who are not around. A message is
// delivered the next time its recipient says anything in a channel the
// plugin sees.
package tell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// DefaultMaxPending caps queued messages per recipient.
const DefaultMaxPending = 10

type message struct {
	from string
	text string
}

// Plugin is the tell plugin. Calls are serialized by the host.
type Plugin struct {
	pending    map[string][]message
	maxPending int
}

var (
	_ pluginapi.Plugin       = (*Plugin)(nil)
	_ pluginapi.Configurable = (*Plugin)(nil)
)

// New creates an empty tell plugin.
func New() pluginapi.Plugin {
	return &Plugin{pending: make(map[string][]message), maxPending: DefaultMaxPending}
}

// Register adds the tell command.
func (p *Plugin) Register(t *pluginapi.CommandTable) {
	t.AddFunc("tell", "Leave a message for someone: tell <nick> <message>", p.tell)
}

// Configure reads the max-pending option.
func (p *Plugin) Configure(options map[string]string) error {
	raw, ok := options["max-pending"]
	if !ok {
		p.maxPending = DefaultMaxPending
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fmt.Errorf("max-pending must be a positive integer, got %q", raw)
	}
	p.maxPending = n
	return nil
}

func (p *Plugin) tell(_ context.Context, c *pluginapi.Context, opts *pluginapi.ParsedOpts) error {
	if len(opts.Free) == 0 {
		return c.Send("NEED A RECIPIENT.")
	}
	to := opts.Free[0]
	text := strings.Join(opts.Free[1:], " ")
	if text == "" {
		return c.Send("NEED A MESSAGE.")
	}

	key := fold(to)
	if len(p.pending[key]) >= p.maxPending {
		return c.Reply(fmt.Sprintf("%s already has too many messages waiting.", to))
	}
	p.pending[key] = append(p.pending[key], message{from: c.Nick, text: text})
	return c.Reply("I'll pass that on to " + to)
}

// OnChannelMessage delivers everything queued for the speaker.
func (p *Plugin) OnChannelMessage(_ context.Context, c *pluginapi.Context, _ string) error {
	key := fold(c.Nick)
	queued := p.pending[key]
	if len(queued) == 0 {
		return nil
	}
	delete(p.pending, key)
	for _, m := range queued {
		if err := c.Send(fmt.Sprintf("%s: <%s>: %s", c.Nick, m.from, m.text)); err != nil {
			return err
		}
	}
	return nil
}

// fold compares nicks case-insensitively, as servers do.
func fold(nick string) string {
	return strings.ToLower(nick)
}
