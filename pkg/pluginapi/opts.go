// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package pluginapi

import (
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"
)

// ParsedOpts holds the result of parsing a command line against a command's
// option definitions.
type ParsedOpts struct {
	// Raw is the argument text as typed, after the command name.
	Raw string
	// Free holds the arguments that are not options, in order.
	Free []string

	values map[string][]string
	counts map[string]int
}

// Given reports whether the option with the given long name appeared.
func (p *ParsedOpts) Given(long string) bool {
	if p == nil {
		return false
	}
	if p.counts[long] > 0 {
		return true
	}
	_, ok := p.values[long]
	return ok
}

// Get returns every argument passed to the option, in order. Bracketed lists
// contribute each element. Returns nil when the option was not given.
func (p *ParsedOpts) Get(long string) []string {
	if p == nil {
		return nil
	}
	return p.values[long]
}

// First returns the first argument of the option, or "".
func (p *ParsedOpts) First(long string) string {
	v := p.Get(long)
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Count returns how many times a flag without arguments was given.
func (p *ParsedOpts) Count(long string) int {
	if p == nil {
		return 0
	}
	return p.counts[long]
}

// Names returns the long names of every option given, sorted.
func (p *ParsedOpts) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.values)+len(p.counts))
	for n := range p.values {
		names = append(names, n)
	}
	for n := range p.counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FreeText joins the free arguments with single spaces.
func (p *ParsedOpts) FreeText() string {
	if p == nil {
		return ""
	}
	return strings.Join(p.Free, " ")
}

// ParseOpts parses input with the grammar
//
//	-f --flag free -o arg --opt arg -m [a, b, c] --multi [a, b]
//
// Options that take arguments consume the next token, or a bracketed,
// comma-separated list. Option arguments may be quoted with POSIX shell
// rules. Free arguments keep the text they were typed with. Without defs
// every whitespace-separated word is free.
func ParseOpts(input string, defs []OptDef) (*ParsedOpts, error) {
	out := &ParsedOpts{
		Raw:    strings.TrimSpace(input),
		values: make(map[string][]string),
		counts: make(map[string]int),
	}
	if len(defs) == 0 {
		out.Free = strings.Fields(input)
		return out, nil
	}

	tokens, err := joinLists(splitTokens(input), defs)
	if err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("opts", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	args := make(map[string]*[]string, len(defs))
	counts := make(map[string]*int, len(defs))
	for _, d := range defs {
		if d.Long == "" {
			continue
		}
		short := ""
		if d.Short != 0 {
			short = string(d.Short)
		}
		if d.TakesArgs {
			args[d.Long] = fs.StringArrayP(d.Long, short, nil, d.Help)
		} else {
			counts[d.Long] = fs.CountP(d.Long, short, d.Help)
		}
	}
	if err := fs.Parse(tokens); err != nil {
		return nil, ErrInvalidOptions(err.Error())
	}

	for name, v := range args {
		if !fs.Changed(name) {
			continue
		}
		var vals []string
		for _, raw := range *v {
			for _, item := range expandList(raw) {
				vals = append(vals, unquote(item))
			}
		}
		out.values[name] = vals
	}
	for name, n := range counts {
		if *n > 0 {
			out.counts[name] = *n
		}
	}
	out.Free = fs.Args()
	return out, nil
}

// splitTokens splits input on whitespace outside quotes. Tokens keep their
// quotes and backslashes. Unbalanced quotes fall back to plain whitespace
// splitting.
func splitTokens(input string) []string {
	var (
		tokens  []string
		cur     strings.Builder
		quote   rune
		escaped bool
	)
	for _, r := range input {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if quote != 0 {
		return strings.Fields(input)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// unquote removes shell quoting from an option argument. Text that does not
// parse as shell words is returned unchanged.
func unquote(raw string) string {
	words, err := shellquote.Split(raw)
	if err != nil || len(words) == 0 {
		return raw
	}
	return strings.Join(words, " ")
}

// takesArgs reports whether tok names an option that consumes the next
// token. A run of short flags takes an argument when its last flag does.
func takesArgs(tok string, defs []OptDef) bool {
	for _, d := range defs {
		if !d.TakesArgs {
			continue
		}
		if d.Long != "" && tok == "--"+d.Long {
			return true
		}
		if d.Short != 0 && len(tok) > 1 && tok[0] == '-' && tok[1] != '-' &&
			strings.HasSuffix(tok, string(d.Short)) {
			return true
		}
	}
	return false
}

// joinLists merges the tokens of a bracketed list that follows an option
// into one token, so that the list is a single option argument. Brackets
// anywhere else are free text.
func joinLists(tokens []string, defs []OptDef) ([]string, error) {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if i == 0 || !takesArgs(tokens[i-1], defs) ||
			!strings.HasPrefix(tok, "[") || strings.HasSuffix(tok, "]") {
			out = append(out, tok)
			continue
		}
		parts := []string{tok}
		closed := false
		for i+1 < len(tokens) {
			i++
			parts = append(parts, tokens[i])
			if strings.HasSuffix(tokens[i], "]") {
				closed = true
				break
			}
		}
		if !closed {
			return nil, ErrInvalidOptions("unterminated [")
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out, nil
}

func expandList(raw string) []string {
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return []string{raw}
	}
	var vals []string
	for _, item := range strings.Split(raw[1:len(raw)-1], ",") {
		if item = strings.TrimSpace(item); item != "" {
			vals = append(vals, item)
		}
	}
	return vals
}
