// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/providers/file"
	"github.com/spf13/pflag"

	"github.com/boncarobot/boncarobot/internal/dispatch"
	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/errutil"
)

// Store holds the current configuration. Readers never block; Reload swaps
// in a new value only when it loads and validates cleanly.
type Store struct {
	path  string
	flags *pflag.FlagSet

	reloadMu sync.Mutex
	current  atomic.Pointer[Config]
}

// NewStore loads path and returns a store holding the result.
func NewStore(path string, flags *pflag.FlagSet) (*Store, error) {
	cfg, err := Load(path, flags)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, flags: flags}
	s.current.Store(cfg)
	return s, nil
}

// Path returns the file the store reads.
func (s *Store) Path() string { return s.path }

// Current returns the active configuration. Callers must not modify it.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload re-reads the file. On error the previous configuration stays active.
func (s *Store) Reload() (*Config, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := Load(s.path, s.flags)
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	slog.Info("configuration reloaded", "path", s.path)
	return cfg, nil
}

// PluginSettings implements plugin.SettingsSource.
func (s *Store) PluginSettings(name string) plugin.Settings {
	return s.Current().PluginSettings(name)
}

// DispatchSettings returns the dispatcher view of the active configuration.
func (s *Store) DispatchSettings() dispatch.Settings {
	b := s.Current().Bot
	return dispatch.Settings{
		Prefix:   b.CommandPrefix,
		HelpWord: b.HelpWord,
		TieBreak: dispatch.TieBreak(b.TieBreak),
		Suggest:  b.Suggest,
	}
}

// Watch reloads the store whenever the file changes until ctx is done.
// onChange, if non-nil, receives the outcome of every reload attempt.
func (s *Store) Watch(ctx context.Context, onChange func(*Config, error)) error {
	fp := file.Provider(s.path)
	err := fp.Watch(func(_ any, werr error) {
		if werr != nil {
			errutil.LogWarn(slog.Default(), "config watch error", werr)
			return
		}
		cfg, err := s.Reload()
		if err != nil {
			errutil.LogWarn(slog.Default(), "config reload failed, keeping previous", err)
		}
		if onChange != nil {
			onChange(cfg, err)
		}
	})
	if err != nil {
		return ErrLoadFailed(s.path, err)
	}
	go func() {
		<-ctx.Done()
		_ = fp.Unwatch()
	}()
	return nil
}
