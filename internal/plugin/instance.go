// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"context"
	"sync"

	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Instance wraps a constructed plugin. Calls into it are serialized and
// panic-protected; calls made after Release fail with ErrReleased.
type Instance struct {
	name string

	callMu sync.Mutex
	plugin pluginapi.Plugin

	stateMu  sync.Mutex
	inflight int
	released bool
	drained  chan struct{}
}

func newInstance(name string, p pluginapi.Plugin) *Instance {
	return &Instance{name: name, plugin: p}
}

// Name returns the owning plugin's name.
func (i *Instance) Name() string { return i.name }

// Call runs fn with exclusive access to the plugin. A panic in fn is
// returned as an INVOCATION_FAULT error.
func (i *Instance) Call(fn func(p pluginapi.Plugin) error) error {
	if !i.acquire() {
		return ErrReleased
	}
	defer i.done()

	i.callMu.Lock()
	defer i.callMu.Unlock()
	if i.plugin == nil {
		return ErrReleased
	}
	return i.protect(func() error { return fn(i.plugin) })
}

// protect runs fn and converts a panic into an error.
func (i *Instance) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInvocationFault(i.name, r)
		}
	}()
	return fn()
}

func (i *Instance) acquire() bool {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	if i.released {
		return false
	}
	i.inflight++
	return true
}

func (i *Instance) done() {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	i.inflight--
	if i.inflight == 0 && i.drained != nil {
		close(i.drained)
		i.drained = nil
	}
}

// InFlight reports the number of calls currently running or waiting.
func (i *Instance) InFlight() int {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	return i.inflight
}

// Release stops new calls, waits for in-flight calls until ctx is done and
// then closes the plugin if it implements pluginapi.Closer. When the wait
// is cut short, Close is skipped and ctx's error is returned; the plugin
// value is left for the stragglers and dropped with the instance.
func (i *Instance) Release(ctx context.Context) error {
	i.stateMu.Lock()
	if i.released {
		i.stateMu.Unlock()
		return nil
	}
	i.released = true
	var wait chan struct{}
	if i.inflight > 0 {
		i.drained = make(chan struct{})
		wait = i.drained
	}
	i.stateMu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	i.callMu.Lock()
	defer i.callMu.Unlock()
	p := i.plugin
	i.plugin = nil
	if c, ok := p.(pluginapi.Closer); ok {
		return i.protect(c.Close)
	}
	return nil
}
