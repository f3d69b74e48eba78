// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boncarobot/boncarobot/internal/admin"
	"github.com/boncarobot/boncarobot/internal/config"
	"github.com/boncarobot/boncarobot/internal/control"
	"github.com/boncarobot/boncarobot/internal/dispatch"
	"github.com/boncarobot/boncarobot/internal/irc"
	"github.com/boncarobot/boncarobot/internal/logging"
	"github.com/boncarobot/boncarobot/internal/observability"
	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/internal/plugin/lua"
	"github.com/boncarobot/boncarobot/pkg/errutil"
)

// shutdownTimeout bounds each shutdown step.
const shutdownTimeout = 5 * time.Second

// runConfig holds configuration for the run command.
type runConfig struct {
	watchConfig bool
}

// NewRunCmd creates the run subcommand. deps may be nil.
func NewRunCmd(deps *RunDeps) *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to IRC and serve plugins",
		Long: `Connect to the configured IRC server, load the configured plugins and
serve the admin control socket until told to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBotWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}

	cmd.Flags().BoolVar(&cfg.watchConfig, "watch-config", false, "reload the config file when it changes")
	config.BindFlags(cmd.Flags())

	return cmd
}

// relay forwards chat events to a dispatcher created after the bot.
type relay struct {
	d *dispatch.Dispatcher
}

func (r *relay) Dispatch(ctx context.Context, ev dispatch.Event) {
	r.d.Dispatch(ctx, ev)
}

// runBotWithDeps runs the bot with injectable dependencies.
// If deps is nil, default implementations are used.
func runBotWithDeps(ctx context.Context, cfg *runConfig, cmd *cobra.Command, deps *RunDeps) error {
	if deps == nil {
		deps = &RunDeps{}
	}
	if deps.Builtins == nil {
		deps.Builtins = defaultBuiltins()
	}
	if deps.LogWriter == nil {
		deps.LogWriter = os.Stderr
	}
	if deps.Signals == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		deps.Signals = sigChan
	}
	if ctx == nil {
		ctx = context.Background()
	}

	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}
	store, err := config.NewStore(path, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c := store.Current()

	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(logging.Setup("boncarobot", version, c.Log.Format, level, deps.LogWriter))

	slog.Info("starting boncarobot",
		"config", store.Path(),
		"server", c.Server.Addr,
		"nick", c.Bot.Nick,
		"plugin_dir", c.Plugins.Dir,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := plugin.NewManager(c.Plugins.Dir,
		plugin.WithLoaders(plugin.GoLoader{}, lua.NewLoader(), deps.Builtins),
		plugin.WithSettings(store),
		plugin.WithDrainTimeout(c.Plugins.DrainTimeout),
	)

	var bot *irc.Bot
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if c.Control.MetricsAddr != "" {
		obsServer = observability.NewServer(c.Control.MetricsAddr,
			func() bool { return bot != nil && bot.Connected() },
			plugin.RegisterMetrics,
			dispatch.RegisterMetrics,
		)
		metrics = obsServer.Metrics()
	}

	r := &relay{}
	botOpts := []irc.Option{irc.WithMetrics(metrics)}
	if deps.Dialer != nil {
		botOpts = append(botOpts, irc.WithDialer(deps.Dialer))
	}
	bot = irc.NewBot(ircConfig(c), r, botOpts...)
	dispatcher, err := dispatch.NewDispatcher(manager, bot, dispatch.WithSettingsFunc(store.DispatchSettings))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	r.d = dispatcher

	handler := admin.NewHandler(manager, bot,
		admin.ConfigReloaderFunc(func() error {
			_, err := store.Reload()
			return err
		}),
		admin.WithChannelValidator(config.ValidChannel),
		admin.WithOnQuit(func() { slog.Info("quit requested over control socket") }),
	)

	controlServer := control.NewServer(c.Control.Socket, handler, pluginLister(manager))
	if err := controlServer.Start(); err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}
	slog.Info("control server started", "socket", controlServer.SocketPath())

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := controlServer.Stop(stopCtx); stopErr != nil {
				slog.Warn("failed to stop control server during cleanup", "error", stopErr)
			}
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	if cfg.watchConfig {
		if err := store.Watch(ctx, nil); err != nil {
			errutil.LogWarn(slog.Default(), "config watching disabled", err)
		}
	}

	if err := manager.LoadAll(ctx, c.Plugins.Load); err != nil {
		errutil.LogWarn(slog.Default(), "some plugins failed to load", err)
	}

	botDone := make(chan error, 1)
	go func() { botDone <- bot.Run(ctx) }()

	cmd.Println("BoncaRobot started")

	select {
	case sig := <-deps.Signals:
		slog.Info("received shutdown signal", "signal", sig)
		quitCtx, quitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := bot.Quit(quitCtx, ""); err != nil {
			slog.Debug("quit not sent", "error", err)
		}
		quitCancel()
	case err := <-botDone:
		botDone <- err
		slog.Info("irc client stopped")
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	shutdown(cancel, botDone, dispatcher, manager, controlServer, obsServer)
	slog.Info("shutdown complete")
	return nil
}

// shutdown stops everything runBotWithDeps started, each step bounded.
func shutdown(cancel context.CancelFunc, botDone <-chan error, d *dispatch.Dispatcher,
	m *plugin.Manager, controlServer *control.Server, obsServer *observability.Server,
) {
	select {
	case <-botDone:
	case <-time.After(shutdownTimeout):
		slog.Warn("irc client did not stop in time")
	}
	cancel()

	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(shutdownTimeout):
		slog.Warn("plugin invocations still running at shutdown")
	}

	ctx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := m.Close(ctx); err != nil {
		errutil.LogWarn(slog.Default(), "error closing plugin manager", err)
	}
	if err := controlServer.Stop(ctx); err != nil {
		slog.Warn("error stopping control server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(ctx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
}

// ircConfig maps the file configuration onto the client's.
func ircConfig(c *config.Config) irc.Config {
	return irc.Config{
		Addr:          c.Server.Addr,
		TLS:           c.Server.TLS,
		Password:      c.Server.Password,
		Nick:          c.Bot.Nick,
		User:          c.Bot.User,
		Name:          c.Bot.Name,
		Channels:      c.Bot.Channels,
		SendLimit:     c.Server.SendLimit,
		SendBurst:     c.Server.SendBurst,
		PingFrequency: c.Server.PingFrequency,
		PingTimeout:   c.Server.PingTimeout,
		ReconnectBase: c.Server.ReconnectBase,
		ReconnectMax:  c.Server.ReconnectMax,
	}
}

// pluginLister reports resident plugins for the control socket.
func pluginLister(m *plugin.Manager) control.PluginLister {
	return func() []control.PluginInfo {
		entries := m.Snapshot()
		out := make([]control.PluginInfo, 0, len(entries))
		for _, e := range entries {
			names := make([]string, len(e.Commands))
			for i, c := range e.Commands {
				names[i] = c.Name
			}
			out = append(out, control.PluginInfo{
				Name:     e.Name,
				Path:     e.Path,
				LoadedAt: e.LoadedAt,
				Commands: names,
			})
		}
		return out
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
