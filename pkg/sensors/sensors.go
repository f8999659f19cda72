// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sensors contains periph.io drivers for the measurement sources a
// node can carry, and the supply voltage sources.
package sensors

import (
	"context"
	"errors"
	"math"
	"time"
)

// SeaLevelHPa is the reference pressure used for altitude.
const SeaLevelHPa = 1013.25

// ErrNoDevice is returned by Init when the expected chip does not answer.
var ErrNoDevice = errors.New("device not found")

// Altitude returns the altitude in metres for a pressure in hPa, using the
// international barometric formula.
func Altitude(hPa, seaLevelHPa float64) float64 {
	return 44330.0 * (1.0 - math.Pow(hPa/seaLevelHPa, 0.1903))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
