// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Thermoquad/sensornode/pkg/wire"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BMP280Addr is the barometer's default I2C address.
const BMP280Addr = 0x76

// BMP280 reads temperature, pressure and derived altitude from a BMP280 or
// BME280. An invalid pressure leaves T3, P3 and A3 out of the readings.
type BMP280 struct {
	bus    i2c.Bus
	addr   uint16
	opts   bmxx80.Opts
	dev    envSensor
	logger *slog.Logger

	SeaLevelHPa float64
}

// NewBMP280 creates a driver for the barometer at addr.
func NewBMP280(bus i2c.Bus, addr uint16, logger *slog.Logger) *BMP280 {
	if addr == 0 {
		addr = BMP280Addr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BMP280{
		bus:         bus,
		addr:        addr,
		opts:        bmxx80.DefaultOpts,
		logger:      logger,
		SeaLevelHPa: SeaLevelHPa,
	}
}

func (s *BMP280) Name() string { return "bmp280" }

// Init probes the chip and loads its calibration.
func (s *BMP280) Init(ctx context.Context) error {
	dev, err := bmxx80.NewI2C(s.bus, s.addr, &s.opts)
	if err != nil {
		return fmt.Errorf("bmp280 at 0x%02X: %w", s.addr, err)
	}
	s.dev = dev
	return nil
}

// Read sets T3, P3 and A3.
func (s *BMP280) Read(ctx context.Context, r *wire.Readings) error {
	if s.dev == nil {
		return fmt.Errorf("bmp280 not initialized")
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		s.logger.Debug("bmp280 measurement unavailable", "error", err)
		return nil
	}
	setBaro(r, env, s.SeaLevelHPa)
	return nil
}

func setBaro(r *wire.Readings, env physic.Env, seaLevel float64) {
	pa := float64(env.Pressure) / float64(physic.Pascal)
	if math.IsNaN(pa) || pa <= 0 {
		return
	}
	r.MustSet(wire.TagBaroTemp, wire.Deci(env.Temperature.Celsius()))
	// Whole pascals, then truncated to deci-hPa
	r.MustSet(wire.TagBaroPressure, int(math.Round(pa))/10)
	r.MustSet(wire.TagBaroAltitude, wire.Whole(Altitude(pa/100, seaLevel)))
}
