// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Command plugin builds the tell plugin as a loadable module:
//
//	go build -buildmode=plugin -o "$PLUGIN_DIR/libtell.so" ./plugins/tell/plugin
package main

import (
	"github.com/boncarobot/boncarobot/plugins/tell"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Init is looked up by the host on load.
func Init() pluginapi.Plugin { return tell.New() }

func main() {}
