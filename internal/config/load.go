// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/boncarobot/boncarobot/internal/xdg"
)

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// flagKeys maps override flags to config keys.
var flagKeys = map[string]string{
	"server":         "server.addr",
	"nick":           "bot.nick",
	"command-prefix": "bot.command-prefix",
	"plugin-dir":     "plugins.dir",
	"control-socket": "control.socket",
	"metrics-addr":   "control.metrics-addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
}

// BindFlags registers the flags that override file values.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("server", "", "IRC server host:port (overrides server.addr)")
	fs.String("nick", "", "bot nickname (overrides bot.nick)")
	fs.String("command-prefix", "", "command prefix (overrides bot.command-prefix)")
	fs.String("plugin-dir", "", "plugin directory (overrides plugins.dir)")
	fs.String("control-socket", "", "admin socket path (overrides control.socket)")
	fs.String("metrics-addr", "", "metrics/health HTTP address (overrides control.metrics-addr)")
	fs.String("log-format", "", "log format: json or text (overrides log.format)")
	fs.String("log-level", "", "log level (overrides log.level)")
}

// Load reads, validates and decodes the config file at path, then applies
// flag overrides from fs. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, ErrLoadFailed(path, err)
	}
	if err := ValidateSchema(data); err != nil {
		return nil, ErrSchema(path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, ErrLoadFailed(path, err)
	}
	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagOverride(fs)), nil); err != nil {
			return nil, ErrLoadFailed(path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, ErrLoadFailed(path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagOverride maps changed override flags onto their config keys. Any
// other flag yields an empty key, which posflag skips.
func flagOverride(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
