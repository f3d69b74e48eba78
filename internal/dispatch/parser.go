// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParsedCommand represents a recognized command invocation.
type ParsedCommand struct {
	Name string // command name, prefix stripped
	Args string // unparsed argument string (preserves internal whitespace)
	Raw  string // original input
}

// IsCommand reports whether text starts with prefix immediately followed by
// a letter. "!help" is a command, "!5 apples" and "! help" are not.
func IsCommand(prefix, text string) bool {
	if prefix == "" || len(text) <= len(prefix) || !strings.HasPrefix(text, prefix) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[len(prefix):])
	return unicode.IsLetter(r)
}

// ParseCommand splits a command line into name and arguments. ok is false
// when text is not a command.
func ParseCommand(prefix, text string) (ParsedCommand, bool) {
	if !IsCommand(prefix, text) {
		return ParsedCommand{}, false
	}
	rest := text[len(prefix):]
	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx == -1 {
		return ParsedCommand{Name: rest, Raw: text}, true
	}
	return ParsedCommand{
		Name: rest[:idx],
		Args: strings.TrimLeftFunc(rest[idx:], unicode.IsSpace),
		Raw:  text,
	}, true
}

// parseHelp recognizes "<prefix><word> [command]". The argument is the first
// token after the help word, if any.
func parseHelp(prefix, word, text string) (arg string, ok bool) {
	help := prefix + word
	if !strings.HasPrefix(text, help) {
		return "", false
	}
	rest := text[len(help):]
	if rest != "" {
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsSpace(r) {
			return "", false
		}
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		arg = fields[0]
	}
	return arg, true
}
