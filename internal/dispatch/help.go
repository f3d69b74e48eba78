// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package dispatch

import (
	"strings"

	"github.com/boncarobot/boncarobot/internal/plugin"
)

// helpReply builds the answer to a help request. With an argument naming a
// command, the first plugin (in name order) that has it answers; otherwise
// every visible command is listed.
func helpReply(s Settings, entries []plugin.Entry, nick, arg string) string {
	if arg != "" {
		for _, e := range entries {
			if c, ok := e.Lookup(arg); ok {
				return nick + ": " + c.HelpText()
			}
		}
	}
	return nick + ": The following commands are available (" + s.Prefix + s.HelpWord + " <command>): " +
		strings.Join(commandNames(entries), ", ")
}
