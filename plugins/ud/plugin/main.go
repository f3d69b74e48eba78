// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Command plugin builds the ud plugin as a loadable module.
package main

import (
	"github.com/boncarobot/boncarobot/plugins/ud"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

// Init is looked up by the host on load.
func Init() pluginapi.Plugin { return ud.New() }

func main() {}
