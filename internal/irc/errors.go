// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package irc

import (
	"github.com/samber/oops"
)

// Error codes for the IRC transport.
const (
	CodeNotConnected = "NOT_CONNECTED"
	CodeDialFailed   = "DIAL_FAILED"
)

// ErrNotConnected is returned by writes while no session is registered.
func ErrNotConnected() error {
	return oops.Code(CodeNotConnected).
		In("irc").
		Public("The bot is not connected.").
		Errorf("not connected to IRC")
}

// ErrDialFailed wraps a connection failure.
func ErrDialFailed(addr string, cause error) error {
	return oops.Code(CodeDialFailed).
		In("irc").
		With("addr", addr).
		Wrapf(cause, "dial %s", addr)
}
