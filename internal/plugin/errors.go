// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/boncarobot/boncarobot/pkg/errutil"
)

// Error codes for plugin lifecycle failures.
const (
	CodeInvalidName        = "INVALID_NAME"
	CodeModuleNotFound     = "MODULE_NOT_FOUND"
	CodeModuleOpenFailed   = "MODULE_OPEN_FAILED"
	CodeSymbolNotFound     = "SYMBOL_NOT_FOUND"
	CodeSymbolInvalid      = "SYMBOL_INVALID"
	CodeConstructionFailed = "CONSTRUCTION_FAILED"
	CodeConfigureFailed    = "CONFIGURE_FAILED"
	CodeAlreadyLoaded      = "ALREADY_LOADED"
	CodeReloadFailed       = "RELOAD_FAILED"
	CodeInvocationFault    = "INVOCATION_FAULT"
)

var (
	// ErrManagerClosed is returned by operations on a closed Manager.
	ErrManagerClosed = errors.New("plugin manager is closed")

	// ErrReleased is returned by Instance.Call after the instance was released.
	ErrReleased = errors.New("plugin instance released")

	errNilPlugin = errors.New("Init returned nil")
)

// ErrInvalidName reports a plugin name that cannot be used to locate an artifact.
func ErrInvalidName(name, reason string) error {
	return oops.Code(CodeInvalidName).
		In("plugin").
		With("plugin", name).
		Errorf("invalid plugin name %q: %s", name, reason)
}

// ErrModuleNotFound reports that no loader found an artifact for name.
func ErrModuleNotFound(name string, tried []string) error {
	return oops.Code(CodeModuleNotFound).
		In("plugin").
		With("plugin", name).
		With("tried", tried).
		Errorf("no module found for plugin %q", name)
}

// ErrModuleOpenFailed wraps a failure to open the artifact.
func ErrModuleOpenFailed(name, path string, cause error) error {
	return oops.Code(CodeModuleOpenFailed).
		In("plugin").
		With("plugin", name).
		With("path", path).
		Wrapf(cause, "open module")
}

// ErrSymbolNotFound reports a module without the entry symbol.
func ErrSymbolNotFound(name, symbol string, cause error) error {
	return oops.Code(CodeSymbolNotFound).
		In("plugin").
		With("plugin", name).
		With("symbol", symbol).
		Wrapf(cause, "lookup %s", symbol)
}

// ErrSymbolInvalid reports an entry symbol of the wrong type.
func ErrSymbolInvalid(name, symbol string, got any) error {
	return oops.Code(CodeSymbolInvalid).
		In("plugin").
		With("plugin", name).
		With("symbol", symbol).
		With("type", fmt.Sprintf("%T", got)).
		Errorf("symbol %s has type %T, want func() pluginapi.Plugin", symbol, got)
}

// ErrConstructionFailed wraps a failure inside Init or Register.
func ErrConstructionFailed(name, stage string, cause error) error {
	return wrap(oops.Code(CodeConstructionFailed).
		In("plugin").
		With("plugin", name).
		With("stage", stage), cause, "construct plugin")
}

// ErrConfigureFailed wraps a failure applying plugin settings.
func ErrConfigureFailed(name string, cause error) error {
	return wrap(oops.Code(CodeConfigureFailed).
		In("plugin").
		With("plugin", name), cause, "configure plugin")
}

// ErrAlreadyLoaded reports a load of a resident plugin.
func ErrAlreadyLoaded(name string) error {
	return oops.Code(CodeAlreadyLoaded).
		In("plugin").
		With("plugin", name).
		Errorf("plugin %q is already loaded", name)
}

// ErrReloadFailed wraps the load failure of a reload. The old instance is
// gone by the time this is returned.
func ErrReloadFailed(name string, cause error) error {
	return wrap(oops.Code(CodeReloadFailed).
		In("plugin").
		With("plugin", name).
		Hint("previous instance was unloaded and its in-memory state discarded"), cause, "reload plugin")
}

// ErrInvocationFault converts a recovered panic into an error.
func ErrInvocationFault(name string, recovered any) error {
	return oops.Code(CodeInvocationFault).
		In("plugin").
		With("plugin", name).
		With("panic", fmt.Sprint(recovered)).
		Errorf("plugin %q panicked: %v", name, recovered)
}

// wrap attaches cause to b. oops reports the innermost code of a chain, so
// a cause that already carries a code contributes only its message and
// its code as context.
func wrap(b oops.OopsErrorBuilder, cause error, msg string) error {
	if code := errutil.Code(cause); code != "" {
		return b.With("cause_code", code).Errorf("%s: %s", msg, cause.Error())
	}
	return b.Wrapf(cause, "%s", msg)
}
