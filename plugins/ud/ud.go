// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package ud looks terms up on Urban Dictionary.
package ud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"

	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Defaults for the plugin options.
const (
	DefaultEndpoint = "https://api.urbandictionary.com/v0/define"
	DefaultTimeout  = 10 * time.Second
	defineURL       = "https://www.urbandictionary.com/define.php?term="
	maxBody         = 1 << 20
)

// Plugin is the ud plugin.
type Plugin struct {
	pluginapi.Base

	endpoint string
	client   *http.Client
}

var (
	_ pluginapi.Plugin       = (*Plugin)(nil)
	_ pluginapi.Configurable = (*Plugin)(nil)
)

// New creates the plugin with default options.
func New() pluginapi.Plugin {
	return &Plugin{endpoint: DefaultEndpoint, client: &http.Client{Timeout: DefaultTimeout}}
}

// Register adds the ud command.
func (p *Plugin) Register(t *pluginapi.CommandTable) {
	t.Add(pluginapi.NewCommand("ud", "Urban dictionary lookup", p.ud).
		Opt('n', "number", "Get entry number n", true).
		Opt('c', "contains", "Filter entries to those containing certain words", true).
		Opt('x', "exclude", "Filter entries to those lacking certain words", true).
		Opt('l', "loose", "Allow non-exact entries", false))
}

// Configure reads the endpoint and timeout options.
func (p *Plugin) Configure(options map[string]string) error {
	p.endpoint = DefaultEndpoint
	if v := options["endpoint"]; v != "" {
		if _, err := url.Parse(v); err != nil {
			return oops.In("ud").With("endpoint", v).Wrapf(err, "invalid endpoint")
		}
		p.endpoint = v
	}
	timeout := DefaultTimeout
	if v := options["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return oops.In("ud").With("timeout", v).Wrapf(err, "invalid timeout")
		}
		timeout = d
	}
	p.client = &http.Client{Timeout: timeout}
	return nil
}

// entry is one definition from the response list.
type entry struct {
	word       string
	definition string
	example    string
}

func (p *Plugin) ud(ctx context.Context, c *pluginapi.Context, opts *pluginapi.ParsedOpts) error {
	term := opts.FreeText()
	if term == "" {
		return c.Send("You need to search for something bro.")
	}
	n, err := strconv.Atoi(opts.First("number"))
	if err != nil || n < 0 {
		n = 0
	}

	body, err := p.fetch(ctx, term)
	if err != nil {
		return c.Send(fmt.Sprintf("Error when uding: %s", err))
	}
	if !gjson.ValidBytes(body) {
		return c.Send("Phailed parsing json.")
	}

	var found *entry
	i := 0
	gjson.GetBytes(body, "list").ForEach(func(_, v gjson.Result) bool {
		e := entry{
			word:       v.Get("word").String(),
			definition: v.Get("definition").String(),
			example:    v.Get("example").String(),
		}
		if !v.Get("definition").Exists() {
			return true
		}
		if !opts.Given("loose") && !strings.EqualFold(e.word, term) {
			return true
		}
		if !containsAll(e, opts.Get("contains")) || containsAny(e, opts.Get("exclude")) {
			return true
		}
		if i == n {
			found = &e
			return false
		}
		i++
		return true
	})

	if found == nil {
		return c.Send("No definition found.")
	}
	return display(c, *found, term)
}

func (p *Plugin) fetch(ctx context.Context, term string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?term="+url.QueryEscape(term), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

func matches(e entry, word string) bool {
	word = strings.ToLower(word)
	return strings.Contains(strings.ToLower(e.definition), word) ||
		strings.Contains(strings.ToLower(e.example), word)
}

func containsAll(e entry, words []string) bool {
	for _, w := range words {
		if !matches(e, w) {
			return false
		}
	}
	return true
}

func containsAny(e entry, words []string) bool {
	for _, w := range words {
		if matches(e, w) {
			return true
		}
	}
	return false
}

// display sends the definition and example. Definitions longer than one
// chunk are cut and followed by a link to the full entry.
func display(c *pluginapi.Context, e entry, term string) error {
	def := e.word + ": " + e.definition
	cut := len(def) > pluginapi.MaxChunkSize
	if cut {
		end := pluginapi.MaxChunkSize
		for end > 0 && !utf8.RuneStart(def[end]) {
			end--
		}
		def = def[:end]
	}
	if err := c.Send(def); err != nil {
		return err
	}
	for _, line := range strings.Split(e.example, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := c.Send("> " + line); err != nil {
			return err
		}
	}
	if cut {
		return c.Send(defineURL + url.QueryEscape(term))
	}
	return nil
}
