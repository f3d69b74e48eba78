// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package pluginapi

import (
	"context"
	"strings"
	"unicode/utf8"
)

// MaxChunkSize is the largest message body sent in one line. Servers cut
// PRIVMSG bodies well before the 512 byte protocol limit once the prefix is
// accounted for.
const MaxChunkSize = 400

// Sender is the chat transport's send capability.
type Sender interface {
	SendChannel(ctx context.Context, channel, text string) error
}

// Context identifies where an event happened and lets a plugin answer there.
type Context struct {
	Channel string
	Nick    string

	ctx    context.Context
	sender Sender
}

// NewContext binds a channel and sender identity to a transport.
func NewContext(ctx context.Context, sender Sender, channel, nick string) *Context {
	return &Context{
		Channel: channel,
		Nick:    nick,
		ctx:     ctx,
		sender:  sender,
	}
}

// Send writes text to the channel of this context. Text is split on newlines
// and into chunks of at most MaxChunkSize bytes; blank chunks are dropped.
func (c *Context) Send(text string) error {
	if c.sender == nil {
		return ErrNoSender()
	}
	for _, line := range strings.Split(text, "\n") {
		for _, chunk := range SplitChunks(line, MaxChunkSize) {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			if err := c.sender.SendChannel(c.ctx, c.Channel, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reply sends text prefixed with the sender's nick.
func (c *Context) Reply(text string) error {
	return c.Send(c.Nick + ": " + text)
}

// SplitChunks cuts text into pieces of at most size bytes without splitting
// a UTF-8 sequence.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= size {
			chunks = append(chunks, text)
			break
		}
		cut := size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			// a single rune wider than size
			_, w := utf8.DecodeRuneInString(text)
			cut = w
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
