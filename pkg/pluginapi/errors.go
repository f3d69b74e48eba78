// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package pluginapi

import "github.com/samber/oops"

// Error codes for plugin API failures.
const (
	CodeInvalidOptions = "INVALID_OPTIONS"
	CodeNoSender       = "NO_SENDER"
)

// ErrInvalidOptions reports a command line that does not fit the command's option grammar.
func ErrInvalidOptions(reason string) error {
	return oops.Code(CodeInvalidOptions).
		In("pluginapi").
		With("reason", reason).
		Errorf("%s", reason)
}

// ErrNoSender is returned when a Context was built without a transport.
func ErrNoSender() error {
	return oops.Code(CodeNoSender).
		In("pluginapi").
		Errorf("context has no sender")
}
