// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Thermoquad/sensornode/pkg/node"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"
)

// Kind names a sensor type in configuration.
type Kind string

const (
	KindSi7021  Kind = "si7021"
	KindDS18B20 Kind = "ds18b20"
	KindBMP280  Kind = "bmp280"
	KindBME680  Kind = "bme680"
	KindPIR     Kind = "pir"
)

// Kinds lists the supported sensor kinds.
var Kinds = []Kind{KindSi7021, KindDS18B20, KindBMP280, KindBME680, KindPIR}

// ParseKind validates a configured sensor name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sensor %q", s)
}

// HostOptions names the buses and pins sensors are attached to. Empty names
// select the host's default bus.
type HostOptions struct {
	I2CBus      string
	OneWireBus  string
	MotionPin   string
	BMP280Addr  uint16
	BME680Addr  uint16
	ProbeBits   int
	SeaLevelHPa float64
}

// Buses holds the opened buses. Nil members are opened on demand by Open.
type Buses struct {
	I2C     i2c.Bus
	OneWire onewire.Bus
	Motion  gpio.PinIn

	closers []func() error
}

// Close releases buses opened by Open.
func (b *Buses) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Open initializes the host drivers and creates a sensor for each kind, in
// the given order. Only the buses the kinds need are opened.
func Open(kinds []Kind, opts HostOptions, b *Buses, logger *slog.Logger) ([]node.Sensor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	hostReady := false
	initHost := func() error {
		if hostReady {
			return nil
		}
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("host.Init: %w", err)
		}
		hostReady = true
		return nil
	}

	i2cBus := func() (i2c.Bus, error) {
		if b.I2C == nil {
			if err := initHost(); err != nil {
				return nil, err
			}
			bus, err := i2creg.Open(opts.I2CBus)
			if err != nil {
				return nil, fmt.Errorf("i2creg.Open: %w", err)
			}
			b.I2C = bus
			b.closers = append(b.closers, bus.Close)
		}
		return b.I2C, nil
	}

	out := make([]node.Sensor, 0, len(kinds))
	for _, k := range kinds {
		switch k {
		case KindSi7021:
			bus, err := i2cBus()
			if err != nil {
				return nil, err
			}
			out = append(out, NewSi7021(bus, logger))

		case KindBMP280:
			bus, err := i2cBus()
			if err != nil {
				return nil, err
			}
			s := NewBMP280(bus, opts.BMP280Addr, logger)
			if opts.SeaLevelHPa > 0 {
				s.SeaLevelHPa = opts.SeaLevelHPa
			}
			out = append(out, s)

		case KindBME680:
			bus, err := i2cBus()
			if err != nil {
				return nil, err
			}
			s := NewBME680(bus, opts.BME680Addr, logger)
			if opts.SeaLevelHPa > 0 {
				s.SeaLevelHPa = opts.SeaLevelHPa
			}
			out = append(out, s)

		case KindDS18B20:
			if b.OneWire == nil {
				if err := initHost(); err != nil {
					return nil, err
				}
				bus, err := onewirereg.Open(opts.OneWireBus)
				if err != nil {
					return nil, fmt.Errorf("onewirereg.Open: %w", err)
				}
				b.OneWire = bus
				b.closers = append(b.closers, bus.Close)
			}
			out = append(out, NewDS18B20(b.OneWire, 0, opts.ProbeBits, logger))

		case KindPIR:
			if b.Motion == nil {
				if err := initHost(); err != nil {
					return nil, err
				}
				pin := gpioreg.ByName(opts.MotionPin)
				if pin == nil {
					return nil, fmt.Errorf("%w: gpio pin %q", ErrNoDevice, opts.MotionPin)
				}
				b.Motion = pin
			}
			out = append(out, NewMotion(b.Motion))

		default:
			return nil, fmt.Errorf("unknown sensor %q", k)
		}
	}
	return out, nil
}

// WakeSource returns the first sensor that can wake the node, or nil.
func WakeSource(sensors []node.Sensor) node.Waker {
	for _, s := range sensors {
		if w, ok := s.(node.Waker); ok {
			return w
		}
	}
	return nil
}
