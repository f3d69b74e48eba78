// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boncarobot/boncarobot/internal/control"
)

// statusTimeout keeps status snappy when the bot hangs.
const statusTimeout = 2 * time.Second

// BotStatus holds the status information of a running bot.
type BotStatus struct {
	Running       bool                 `json:"running"`
	Health        string               `json:"health,omitempty"`
	PID           int                  `json:"pid,omitempty"`
	UptimeSeconds int64                `json:"uptime_seconds,omitempty"`
	Plugins       []control.PluginInfo `json:"plugins,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	socket     string
}

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running bot",
		Long:  `Show the health, uptime and resident plugins of the running bot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringVar(&cfg.socket, "socket", "", "control socket path (default: from config)")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	status := queryStatus(ctx, resolveSocket(cfg.socket))

	var output string
	var err error
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryStatus queries the control socket and returns the bot's status.
func queryStatus(ctx context.Context, socketPath string) BotStatus {
	var status BotStatus

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		status.Error = "socket not found"
		return status
	}

	client := control.NewClient(socketPath, statusTimeout)

	health, err := client.Health(ctx)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = true
	status.Health = health.Status

	resp, err := client.Status(ctx)
	if err != nil {
		// health answered, so the bot is up
		return status
	}
	status.Running = resp.Running
	status.PID = resp.PID
	status.UptimeSeconds = resp.UptimeSeconds
	status.Plugins = resp.Plugins
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status BotStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "STATUS\tHEALTH\tPID\tUPTIME")
	if !status.Running {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "stopped\t-\t-\t%s\n", reason)
		_ = w.Flush()
		return b.String()
	}
	_, _ = fmt.Fprintf(w, "running\t%s\t%d\t%s\n", status.Health, status.PID, formatUptime(status.UptimeSeconds))
	_ = w.Flush()

	if len(status.Plugins) == 0 {
		b.WriteString("\nNo plugins loaded.\n")
		return b.String()
	}

	b.WriteString("\n")
	w = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PLUGIN\tCOMMANDS\tLOADED\tPATH")
	for _, p := range status.Plugins {
		commands := "-"
		if len(p.Commands) > 0 {
			commands = strings.Join(p.Commands, ", ")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, commands, p.LoadedAt.Format(time.RFC3339), p.Path)
	}
	_ = w.Flush()
	return b.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status BotStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
