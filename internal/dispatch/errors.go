// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package dispatch

import (
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Error codes for dispatch failures.
const (
	CodeUnknownCommand = "UNKNOWN_COMMAND"
)

var (
	// ErrNilSource is returned when NewDispatcher is given no plugin source.
	ErrNilSource = errors.New("dispatch: plugin source is required")

	// ErrNilSender is returned when NewDispatcher is given no sender.
	ErrNilSender = errors.New("dispatch: sender is required")
)

// ErrUnknownCommand creates an error for a command no resident plugin has.
// suggestion may be empty.
func ErrUnknownCommand(cmd, suggestion string) error {
	return oops.Code(CodeUnknownCommand).
		In("dispatch").
		With("command", cmd).
		With("suggestion", suggestion).
		Errorf("unknown command: %s", cmd)
}

// ChannelMessage extracts a channel-facing message from an error.
func ChannelMessage(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Something went wrong."
	}

	switch oopsErr.Code() {
	case CodeUnknownCommand:
		msg := fmt.Sprintf("Unknown command: %v", oopsErr.Context()["command"])
		if s, ok := oopsErr.Context()["suggestion"].(string); ok && s != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", s)
		}
		return msg
	case plugin.CodeInvocationFault:
		return fmt.Sprintf("Plugin %q failed.", oopsErr.Context()["plugin"])
	case pluginapi.CodeInvalidOptions:
		if reason, ok := oopsErr.Context()["reason"].(string); ok {
			return reason
		}
		return "Invalid options."
	default:
		if public := oopsErr.Public(); public != "" {
			return public
		}
		return "Something went wrong."
	}
}
