// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Sensornode - Sub-GHz Sensor Node
//
// Samples the attached sensors, encodes the readings into a fixed-width
// ASCII frame, transmits it and powers down between cycles.

package main

import (
	"os"

	"github.com/Thermoquad/sensornode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
