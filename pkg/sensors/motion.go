// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/sensornode/pkg/wire"
	"periph.io/x/conn/v3/gpio"
)

// Motion reads a PIR motion detector on a GPIO input. The detector's rising
// edge is also the node's wake-up source.
type Motion struct {
	pin  gpio.PinIn
	pull gpio.Pull

	// WaitSlice bounds each blocking edge wait so cancellation is noticed.
	WaitSlice time.Duration
}

// NewMotion creates a motion detector on pin.
func NewMotion(pin gpio.PinIn) *Motion {
	return &Motion{pin: pin, pull: gpio.PullDown, WaitSlice: time.Second}
}

func (m *Motion) Name() string { return "pir" }

// Motion marks the node as motion driven.
func (m *Motion) Motion() bool { return true }

// Init configures the pin as an input with rising edge detection.
func (m *Motion) Init(ctx context.Context) error {
	if err := m.pin.In(m.pull, gpio.RisingEdge); err != nil {
		return fmt.Errorf("pir on %s: %w", m.pin, err)
	}
	return nil
}

// Read sets M4 while the detector output is high.
func (m *Motion) Read(ctx context.Context, r *wire.Readings) error {
	if m.pin.Read() == gpio.High {
		r.MustSet(wire.TagMotion, wire.Flag(true))
	}
	return nil
}

// WaitForWake blocks until the detector raises its output.
func (m *Motion) WaitForWake(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.pin.WaitForEdge(m.WaitSlice) {
			return nil
		}
	}
}
