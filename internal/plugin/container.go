// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"context"
	"errors"
	"time"

	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Stage identifies one step of container teardown.
type Stage int

// Teardown stages, in the order they run.
const (
	StageInstance Stage = iota + 1
	StageTable
	StageModule
)

func (s Stage) String() string {
	switch s {
	case StageInstance:
		return "instance"
	case StageTable:
		return "table"
	case StageModule:
		return "module"
	default:
		return "unknown"
	}
}

// TeardownObserver is notified after each teardown stage completes.
type TeardownObserver func(name string, stage Stage)

// Container bundles a loaded plugin: its instance, the command table the
// instance registered and the module the code came from. The instance and
// table borrow from the module, so they are released first.
//
// Fields are declared in teardown order.
type Container struct {
	instance *Instance
	table    *pluginapi.CommandTable
	module   Module

	name     string
	path     string
	scope    Scope
	loadedAt time.Time
}

// Name returns the plugin name.
func (c *Container) Name() string { return c.name }

// Path returns the artifact path the module was opened from.
func (c *Container) Path() string { return c.path }

// LoadedAt returns when the container was built.
func (c *Container) LoadedAt() time.Time { return c.loadedAt }

// Instance returns the plugin instance.
func (c *Container) Instance() *Instance { return c.instance }

// Commands returns the plugin's commands in registration order.
func (c *Container) Commands() []pluginapi.Command { return c.table.Commands() }

// Close tears the container down: instance, then command table, then
// module. Every stage runs even if an earlier one failed.
func (c *Container) Close(ctx context.Context, observe TeardownObserver) error {
	var errs []error
	if c.instance != nil {
		if err := c.instance.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	notify(observe, c.name, StageInstance)

	if c.table != nil {
		c.table.Reset()
	}
	notify(observe, c.name, StageTable)

	if c.module != nil {
		if err := c.module.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	notify(observe, c.name, StageModule)

	return errors.Join(errs...)
}

func notify(observe TeardownObserver, name string, stage Stage) {
	if observe != nil {
		observe(name, stage)
	}
}
