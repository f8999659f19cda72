// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultSupplyPath is the usual battery voltage attribute on Linux boards.
const DefaultSupplyPath = "/sys/class/power_supply/battery/voltage_now"

// SysfsSupply reads the supply voltage from a power_supply voltage_now
// attribute, which reports microvolts.
type SysfsSupply struct {
	Path string
}

// Millivolts returns the current supply voltage.
func (s SysfsSupply) Millivolts(ctx context.Context) (int, error) {
	path := s.Path
	if path == "" {
		path = DefaultSupplyPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read supply voltage: %w", err)
	}
	uv, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse supply voltage %q: %w", strings.TrimSpace(string(data)), err)
	}
	return uv / 1000, nil
}

// FixedSupply reports a constant voltage, for mains powered nodes and
// bench runs.
type FixedSupply struct {
	MV int
}

func (s FixedSupply) Millivolts(ctx context.Context) (int, error) {
	return s.MV, nil
}
