// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package irc connects the bot to an IRC server. It feeds channel messages
// to a dispatcher, keeps channel membership across reconnects, and exposes
// the write operations plugins and admin commands need.
package irc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	ircv4 "gopkg.in/irc.v4"

	"github.com/boncarobot/boncarobot/internal/dispatch"
	"github.com/boncarobot/boncarobot/internal/observability"
)

// Config describes the connection and identity.
type Config struct {
	Addr     string
	TLS      bool
	Password string
	Nick     string
	User     string
	Name     string
	Channels []string

	SendLimit     time.Duration
	SendBurst     int
	PingFrequency time.Duration
	PingTimeout   time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Dispatcher receives channel messages. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event)
}

// DialFunc opens the transport connection.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Bot is a reconnecting IRC client.
type Bot struct {
	cfg        Config
	dispatcher Dispatcher
	dial       DialFunc
	metrics    *observability.Metrics

	mu      sync.Mutex
	client  *ircv4.Client
	ctx     context.Context // session context, valid while client != nil
	wanted  map[string]struct{}
	joined  map[string]struct{}
	nick    string
	ready   atomic.Bool
	quit    chan struct{}
	quitted sync.Once
}

// Option configures a Bot.
type Option func(*Bot)

// WithDialer replaces the TCP/TLS dialer.
func WithDialer(d DialFunc) Option {
	return func(b *Bot) { b.dial = d }
}

// WithMetrics records link metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// NewBot creates a bot. It does not connect until Run.
func NewBot(cfg Config, d Dispatcher, opts ...Option) *Bot {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 2 * time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = cfg.ReconnectBase
	}
	b := &Bot{
		cfg:        cfg,
		dispatcher: d,
		wanted:     make(map[string]struct{}),
		joined:     make(map[string]struct{}),
		quit:       make(chan struct{}),
	}
	for _, ch := range cfg.Channels {
		b.wanted[ch] = struct{}{}
	}
	b.dial = b.defaultDial
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bot) defaultDial(ctx context.Context) (net.Conn, error) {
	if !b.cfg.TLS {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", b.cfg.Addr)
	}
	host, _, err := net.SplitHostPort(b.cfg.Addr)
	if err != nil {
		return nil, err
	}
	d := tls.Dialer{Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	return d.DialContext(ctx, "tcp", b.cfg.Addr)
}

func (b *Bot) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(b.cfg.ReconnectMax,
		retry.WithJitterPercent(10, retry.NewExponential(b.cfg.ReconnectBase)))
}

// Run connects and stays connected until ctx is done or Quit is called.
// Lost connections are retried with capped exponential backoff; the
// backoff resets after every session that got registered.
func (b *Bot) Run(ctx context.Context) error {
	backoff := b.newBackoff()
	for {
		registered, err := b.session(ctx)
		if b.quitting() || ctx.Err() != nil {
			return nil
		}
		if registered {
			backoff = b.newBackoff()
		}
		delay, _ := backoff.Next()
		slog.Warn("irc connection lost, reconnecting",
			"addr", b.cfg.Addr,
			"delay", delay,
			"error", err)
		if b.metrics != nil {
			b.metrics.Reconnects.Inc()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-b.quit:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection. registered reports whether the server
// accepted the bot before the connection ended.
func (b *Bot) session(ctx context.Context) (registered bool, err error) {
	dialCtx, stopDial := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.quit:
			stopDial()
		case <-dialCtx.Done():
		}
	}()
	conn, err := b.dial(dialCtx)
	stopDial()
	if err != nil {
		return false, ErrDialFailed(b.cfg.Addr, err)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.quit:
			// give the QUIT line a moment to reach the server
			time.Sleep(250 * time.Millisecond)
			cancel()
		case <-ctx.Done():
		}
		// unblocks the client's reader however the session ended
		_ = conn.Close()
	}()

	client := ircv4.NewClient(&countingConn{Conn: conn, metrics: b.metrics}, ircv4.ClientConfig{
		Nick:          b.cfg.Nick,
		Pass:          b.cfg.Password,
		User:          b.cfg.User,
		Name:          b.cfg.Name,
		PingFrequency: b.cfg.PingFrequency,
		PingTimeout:   b.cfg.PingTimeout,
		SendLimit:     b.cfg.SendLimit,
		SendBurst:     b.cfg.SendBurst,
		Handler:       ircv4.HandlerFunc(b.handle),
	})

	b.mu.Lock()
	b.client = client
	b.ctx = ctx
	b.mu.Unlock()

	slog.Info("connecting to irc", "addr", b.cfg.Addr, "nick", b.cfg.Nick)
	err = client.RunContext(ctx)

	registered = b.ready.Swap(false)
	b.mu.Lock()
	b.client = nil
	b.ctx = nil
	b.joined = make(map[string]struct{})
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.Connected.Set(0)
	}
	return registered, err
}

func (b *Bot) handle(c *ircv4.Client, m *ircv4.Message) {
	switch m.Command {
	case "001":
		b.registered(c)
	case "JOIN":
		if len(m.Params) > 0 && b.isSelf(c, m) {
			b.mu.Lock()
			b.joined[m.Params[0]] = struct{}{}
			b.mu.Unlock()
			slog.Info("joined channel", "channel", m.Params[0])
		}
	case "PART":
		if len(m.Params) > 0 && b.isSelf(c, m) {
			b.forget(m.Params[0])
		}
	case "KICK":
		if len(m.Params) > 1 && m.Params[1] == c.CurrentNick() {
			b.forget(m.Params[0])
			slog.Warn("kicked from channel", "channel", m.Params[0], "reason", m.Trailing())
		}
	case "PRIVMSG":
		b.privmsg(m)
	}
}

func (b *Bot) registered(c *ircv4.Client) {
	b.mu.Lock()
	b.nick = c.CurrentNick()
	channels := sortedKeys(b.wanted)
	b.mu.Unlock()

	b.ready.Store(true)
	if b.metrics != nil {
		b.metrics.Connected.Set(1)
	}
	slog.Info("registered with irc server", "nick", c.CurrentNick(), "channels", channels)
	for _, ch := range channels {
		if err := c.Writef("JOIN %s", ch); err != nil {
			slog.Warn("failed to join channel", "channel", ch, "error", err)
		}
	}
}

func (b *Bot) privmsg(m *ircv4.Message) {
	if len(m.Params) < 2 || m.Prefix == nil || !isChannel(m.Params[0]) {
		return
	}
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		return
	}
	b.dispatcher.Dispatch(ctx, dispatch.Event{
		Channel: m.Params[0],
		Nick:    m.Prefix.Name,
		Text:    m.Trailing(),
	})
}

func (b *Bot) isSelf(c *ircv4.Client, m *ircv4.Message) bool {
	return m.Prefix != nil && m.Prefix.Name == c.CurrentNick()
}

func (b *Bot) forget(channel string) {
	b.mu.Lock()
	delete(b.joined, channel)
	b.mu.Unlock()
}

func isChannel(target string) bool {
	return target != "" && strings.ContainsRune("#&+!", rune(target[0]))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Connected reports whether the bot is registered with a server.
func (b *Bot) Connected() bool {
	return b.ready.Load()
}

// Nick returns the nick the server last registered, or "" before the
// first registration.
func (b *Bot) Nick() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nick
}

// Joined returns the channels the server confirmed, sorted.
func (b *Bot) Joined() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.joined)
}

func (b *Bot) writef(format string, args ...any) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !b.ready.Load() {
		observability.RecordSendFailure(observability.SendDisconnected)
		return ErrNotConnected()
	}
	if err := client.Writef(format, args...); err != nil {
		observability.RecordSendFailure(observability.SendWriteError)
		return err
	}
	return nil
}

// SendChannel sends one PRIVMSG. Line breaks in text become spaces.
func (b *Bot) SendChannel(_ context.Context, channel, text string) error {
	text = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(text)
	return b.writef("PRIVMSG %s :%s", channel, text)
}

// Broadcast sends text to every joined channel. Failures are logged.
func (b *Bot) Broadcast(ctx context.Context, text string) {
	for _, ch := range b.Joined() {
		if err := b.SendChannel(ctx, ch, text); err != nil {
			slog.Warn("broadcast failed", "channel", ch, "error", err)
		}
	}
}

// Join joins channel now if connected, and after every reconnect.
func (b *Bot) Join(_ context.Context, channel string) error {
	b.mu.Lock()
	b.wanted[channel] = struct{}{}
	b.mu.Unlock()
	if !b.Connected() {
		return nil
	}
	return b.writef("JOIN %s", channel)
}

// Part leaves channel and stops rejoining it.
func (b *Bot) Part(_ context.Context, channel string) error {
	b.mu.Lock()
	delete(b.wanted, channel)
	b.mu.Unlock()
	if !b.Connected() {
		return nil
	}
	return b.writef("PART %s", channel)
}

// Quit sends QUIT and makes Run return once the connection closes.
func (b *Bot) Quit(_ context.Context, message string) error {
	var err error
	if b.Connected() {
		if message == "" {
			err = b.writef("QUIT")
		} else {
			err = b.writef("QUIT :%s", message)
		}
	}
	b.quitted.Do(func() { close(b.quit) })
	return err
}

func (b *Bot) quitting() bool {
	select {
	case <-b.quit:
		return true
	default:
		return false
	}
}

// countingConn counts protocol lines for the link metrics.
type countingConn struct {
	net.Conn
	metrics *observability.Metrics
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if c.metrics != nil && n > 0 {
		c.metrics.Lines.WithLabelValues("in").Add(float64(strings.Count(string(p[:n]), "\n")))
	}
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if c.metrics != nil && n > 0 {
		c.metrics.Lines.WithLabelValues("out").Add(float64(strings.Count(string(p[:n]), "\n")))
	}
	return n, err
}
