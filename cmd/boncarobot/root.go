// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the BoncaRobot CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boncarobot",
		Short: "BoncaRobot - a plugin-hosting IRC bot",
		Long: `BoncaRobot is an IRC bot whose behavior comes from plugins that can be
loaded, unloaded and reloaded while it stays connected.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/boncarobot/config.yaml)")

	cmd.AddCommand(NewRunCmd(nil))
	cmd.AddCommand(NewCtlCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
