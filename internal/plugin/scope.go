// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Scope restricts the channels a plugin sees. The zero value accepts every
// channel.
//
// Patterns use gobwas/glob syntax and match case-insensitively:
//   - "#rust" matches only #rust
//   - "#rust-*" matches #rust-beginners and #rust-offtopic
//   - "*" matches everything
type Scope struct {
	patterns []string
	globs    []glob.Glob
}

// NewScope compiles channel patterns. An empty list yields an unrestricted scope.
func NewScope(patterns []string) (Scope, error) {
	s := Scope{}
	for i, p := range patterns {
		if p == "" {
			return Scope{}, fmt.Errorf("channel pattern %d: empty pattern", i)
		}
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return Scope{}, fmt.Errorf("channel pattern %d (%q): %w", i, p, err)
		}
		s.patterns = append(s.patterns, p)
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// Accepts reports whether events from channel reach the plugin.
func (s Scope) Accepts(channel string) bool {
	if len(s.globs) == 0 {
		return true
	}
	channel = strings.ToLower(channel)
	for _, g := range s.globs {
		if g.Match(channel) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (s Scope) Patterns() []string {
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}
