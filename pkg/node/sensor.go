// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node implements the sensor node's duty cycle: resolving the node
// identifier, sampling the attached sensors, encoding the readings into a
// frame, handing the frame to the radio and powering down between cycles.
package node

import (
	"context"
	"errors"

	"github.com/Thermoquad/sensornode/pkg/radio"
	"github.com/Thermoquad/sensornode/pkg/wire"
)

var (
	// ErrInitFailure reports that the radio or a sensor did not come up.
	ErrInitFailure = errors.New("initialization failed")

	// ErrReadFailed reports a sensor read that invalidates the whole cycle.
	ErrReadFailed = errors.New("sensor read failed")

	// ErrSleepRange reports a minutes sleep outside 1..254.
	ErrSleepRange = errors.New("sleep minutes out of range")
)

// Sensor is a configured measurement source. Read sets the fields the sensor
// contributes and leaves fields it could not measure unset.
type Sensor interface {
	Name() string
	Init(ctx context.Context) error
	Read(ctx context.Context, r *wire.Readings) error
}

// Waker is implemented by sensors that can raise an external wake-up.
// WaitForWake blocks until the wake source fires or ctx is done.
type Waker interface {
	WaitForWake(ctx context.Context) error
}

// MotionSensor marks a motion detector. A node with a motion detector sleeps
// until woken instead of on a timer.
type MotionSensor interface {
	Sensor
	Motion() bool
}

// VoltageSource reports the supply voltage.
type VoltageSource interface {
	Millivolts(ctx context.Context) (int, error)
}

// Radio transmits encoded frames.
type Radio interface {
	Begin(ctx context.Context, cfg radio.Config) error
	Transmit(ctx context.Context, frame []byte) error
}

// hasMotion reports whether any configured sensor is a motion detector.
func hasMotion(sensors []Sensor) bool {
	for _, s := range sensors {
		if m, ok := s.(MotionSensor); ok && m.Motion() {
			return true
		}
	}
	return false
}
