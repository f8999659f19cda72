// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/sensornode/pkg/wire"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ds18b20"
)

// DS18B20 single-wire probe
const (
	DS18B20Family = 0x28
	// DisconnectedC is the temperature reported for a probe that is not
	// answering.
	DisconnectedC = -127.0
)

// envSensor is the measurement half of the periph environmental devices.
type envSensor interface {
	Sense(e *physic.Env) error
}

// DS18B20 reads a single-wire temperature probe. A disconnected probe leaves
// T2 out of the readings.
type DS18B20 struct {
	bus        onewire.Bus
	addr       onewire.Address
	resolution int
	dev        envSensor
	logger     *slog.Logger
}

// NewDS18B20 creates a driver for the probe at addr. A zero addr uses the
// first probe found on the bus.
func NewDS18B20(bus onewire.Bus, addr onewire.Address, resolutionBits int, logger *slog.Logger) *DS18B20 {
	if resolutionBits == 0 {
		resolutionBits = 12
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DS18B20{bus: bus, addr: addr, resolution: resolutionBits, logger: logger}
}

func (s *DS18B20) Name() string { return "ds18b20" }

// Init locates the probe and sets its resolution.
func (s *DS18B20) Init(ctx context.Context) error {
	if s.addr == 0 {
		addrs, err := s.bus.Search(false)
		if err != nil {
			return fmt.Errorf("ds18b20 search: %w", err)
		}
		for _, a := range addrs {
			if a&0xFF == DS18B20Family {
				s.addr = a
				break
			}
		}
		if s.addr == 0 {
			return fmt.Errorf("%w: no ds18b20 on %s", ErrNoDevice, s.bus)
		}
	}
	dev, err := ds18b20.New(s.bus, s.addr, s.resolution)
	if err != nil {
		return fmt.Errorf("ds18b20 %#016x: %w", uint64(s.addr), err)
	}
	s.dev = dev
	return nil
}

// Read sets T2 unless the probe is disconnected.
func (s *DS18B20) Read(ctx context.Context, r *wire.Readings) error {
	if s.dev == nil {
		return fmt.Errorf("ds18b20 not initialized")
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		s.logger.Debug("ds18b20 disconnected", "error", err)
		return nil
	}
	c := env.Temperature.Celsius()
	if c == DisconnectedC {
		s.logger.Debug("ds18b20 disconnected")
		return nil
	}
	r.MustSet(wire.TagProbeTemp, wire.Deci(c))
	return nil
}
