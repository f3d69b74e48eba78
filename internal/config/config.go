// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package config loads and validates the bot configuration file.
//
// The file is YAML. Flags bound with BindFlags override file values, and
// anything set in neither place keeps the value from Default.
package config

import (
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/internal/xdg"
)

// Config is the complete bot configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server" json:"server" jsonschema:"description=IRC server connection"`
	Bot     BotConfig     `koanf:"bot" json:"bot" jsonschema:"description=Identity and command syntax"`
	Plugins PluginsConfig `koanf:"plugins" json:"plugins,omitempty"`
	Control ControlConfig `koanf:"control" json:"control,omitempty"`
	Log     LogConfig     `koanf:"log" json:"log,omitempty"`
}

// ServerConfig describes the IRC connection.
type ServerConfig struct {
	Addr          string        `koanf:"addr" json:"addr" jsonschema:"description=host:port of the IRC server"`
	TLS           bool          `koanf:"tls" json:"tls,omitempty"`
	Password      string        `koanf:"password" json:"password,omitempty"`
	SendLimit     time.Duration `koanf:"send-limit" json:"send-limit,omitempty" jsonschema:"description=Minimum spacing between outgoing lines"`
	SendBurst     int           `koanf:"send-burst" json:"send-burst,omitempty" jsonschema:"minimum=0"`
	PingFrequency time.Duration `koanf:"ping-frequency" json:"ping-frequency,omitempty"`
	PingTimeout   time.Duration `koanf:"ping-timeout" json:"ping-timeout,omitempty"`
	ReconnectBase time.Duration `koanf:"reconnect-base" json:"reconnect-base,omitempty"`
	ReconnectMax  time.Duration `koanf:"reconnect-max" json:"reconnect-max,omitempty"`
}

// BotConfig is the bot's identity and command syntax.
type BotConfig struct {
	Nick          string   `koanf:"nick" json:"nick"`
	User          string   `koanf:"user" json:"user,omitempty"`
	Name          string   `koanf:"name" json:"name,omitempty"`
	Channels      []string `koanf:"channels" json:"channels,omitempty"`
	CommandPrefix string   `koanf:"command-prefix" json:"command-prefix,omitempty"`
	HelpWord      string   `koanf:"help-word" json:"help-word,omitempty"`
	TieBreak      string   `koanf:"tie-break" json:"tie-break,omitempty" jsonschema:"enum=first,enum=last,enum=all"`
	Suggest       bool     `koanf:"suggest" json:"suggest,omitempty"`
}

// PluginsConfig controls where plugins come from and how they are configured.
type PluginsConfig struct {
	Dir          string                  `koanf:"dir" json:"dir,omitempty"`
	Load         []string                `koanf:"load" json:"load,omitempty"`
	DrainTimeout time.Duration           `koanf:"drain-timeout" json:"drain-timeout,omitempty"`
	Settings     map[string]PluginConfig `koanf:"settings" json:"settings,omitempty"`
}

// PluginConfig is the per-plugin section handed to the plugin at load time.
type PluginConfig struct {
	Options  map[string]string `koanf:"options" json:"options,omitempty"`
	Channels []string          `koanf:"channels" json:"channels,omitempty"`
}

// ControlConfig configures the local admin surfaces.
type ControlConfig struct {
	Socket      string `koanf:"socket" json:"socket,omitempty"`
	MetricsAddr string `koanf:"metrics-addr" json:"metrics-addr,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the configuration used for anything the file leaves unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			SendLimit:     500 * time.Millisecond,
			SendBurst:     4,
			PingFrequency: time.Minute,
			PingTimeout:   30 * time.Second,
			ReconnectBase: 2 * time.Second,
			ReconnectMax:  5 * time.Minute,
		},
		Bot: BotConfig{
			Nick:          "boncarobot",
			User:          "boncarobot",
			Name:          "BoncaRobot",
			CommandPrefix: "!",
			HelpWord:      "help",
			TieBreak:      "last",
			Suggest:       true,
		},
		Plugins: PluginsConfig{
			Dir:          filepath.Join(xdg.DataDir(), "plugins"),
			DrainTimeout: plugin.DefaultDrainTimeout,
		},
		Control: ControlConfig{
			Socket: filepath.Join(xdg.RuntimeDir(), "control.sock"),
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

var channelPattern = regexp.MustCompile(`^[#&+!][^\s,\x07]+$`)

// ValidChannel reports whether name is a syntactically valid channel name.
func ValidChannel(name string) bool {
	return channelPattern.MatchString(name)
}

// Validate checks the fields the schema cannot express.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return ErrInvalid("server.addr", "must be host:port")
	}
	if c.Server.SendBurst < 0 {
		return ErrInvalid("server.send-burst", "must not be negative")
	}
	if c.Server.ReconnectBase <= 0 || c.Server.ReconnectMax < c.Server.ReconnectBase {
		return ErrInvalid("server.reconnect-max", "must be at least reconnect-base, which must be positive")
	}

	if c.Bot.Nick == "" || strings.ContainsAny(c.Bot.Nick, " ,*?!@") {
		return ErrInvalid("bot.nick", "must be a non-empty IRC nickname")
	}
	for _, ch := range c.Bot.Channels {
		if !ValidChannel(ch) {
			return ErrInvalid("bot.channels", "invalid channel "+ch)
		}
	}
	if c.Bot.CommandPrefix == "" || strings.ContainsAny(c.Bot.CommandPrefix, " \t") {
		return ErrInvalid("bot.command-prefix", "must be non-empty without whitespace")
	}
	if c.Bot.HelpWord == "" || strings.ContainsAny(c.Bot.HelpWord, " \t") {
		return ErrInvalid("bot.help-word", "must be a single word")
	}
	switch c.Bot.TieBreak {
	case "first", "last", "all":
	default:
		return ErrInvalid("bot.tie-break", "must be first, last or all")
	}

	if c.Plugins.DrainTimeout <= 0 {
		return ErrInvalid("plugins.drain-timeout", "must be positive")
	}
	for _, name := range c.Plugins.Load {
		if err := plugin.ValidateName(name); err != nil {
			return ErrInvalid("plugins.load", "invalid plugin name "+name)
		}
	}
	for name, pc := range c.Plugins.Settings {
		if err := plugin.ValidateName(name); err != nil {
			return ErrInvalid("plugins.settings", "invalid plugin name "+name)
		}
		if _, err := plugin.NewScope(pc.Channels); err != nil {
			return ErrInvalid("plugins.settings."+name+".channels", err.Error())
		}
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return ErrInvalid("log.format", "must be json or text")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalid("log.level", "must be debug, info, warn or error")
	}
	return nil
}

// PluginSettings returns the settings for one plugin. The result shares no
// memory with c.
func (c *Config) PluginSettings(name string) plugin.Settings {
	pc, ok := c.Plugins.Settings[name]
	if !ok {
		return plugin.Settings{}
	}
	s := plugin.Settings{Channels: append([]string(nil), pc.Channels...)}
	if pc.Options != nil {
		s.Options = make(map[string]string, len(pc.Options))
		for k, v := range pc.Options {
			s.Options[k] = v
		}
	}
	return s
}
