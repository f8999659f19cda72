// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/sensornode/pkg/wire"
	"periph.io/x/conn/v3/i2c"
)

// Si7021 hygrometer
const (
	Si7021Addr = 0x40

	si7021MeasureRH      = 0xF5 // no hold master
	si7021TempFromRH     = 0xE0 // temperature of the last RH measurement
	si7021Reset          = 0xFE
	si7021ReadUserReg    = 0xE7
	si7021UserRegDefault = 0x3A
)

// Si7021 reads temperature and humidity from a Si7021 hygrometer. A failed
// or corrupted measurement leaves T1 and H1 out of the readings.
type Si7021 struct {
	dev    *i2c.Dev
	logger *slog.Logger

	ResetDelay      time.Duration
	ConversionDelay time.Duration
}

// NewSi7021 creates a driver for the hygrometer on bus.
func NewSi7021(bus i2c.Bus, logger *slog.Logger) *Si7021 {
	if logger == nil {
		logger = slog.Default()
	}
	return &Si7021{
		dev:             &i2c.Dev{Bus: bus, Addr: Si7021Addr},
		logger:          logger,
		ResetDelay:      50 * time.Millisecond,
		ConversionDelay: 25 * time.Millisecond,
	}
}

func (s *Si7021) Name() string { return "si7021" }

// Init resets the chip and checks the user register reset value.
func (s *Si7021) Init(ctx context.Context) error {
	if err := s.dev.Tx([]byte{si7021Reset}, nil); err != nil {
		return fmt.Errorf("si7021 reset: %w", err)
	}
	if err := sleep(ctx, s.ResetDelay); err != nil {
		return err
	}
	var reg [1]byte
	if err := s.dev.Tx([]byte{si7021ReadUserReg}, reg[:]); err != nil {
		return fmt.Errorf("si7021 user register: %w", err)
	}
	if reg[0] != si7021UserRegDefault {
		return fmt.Errorf("%w: si7021 user register 0x%02X", ErrNoDevice, reg[0])
	}
	return nil
}

// Read sets T1 and H1.
func (s *Si7021) Read(ctx context.Context, r *wire.Readings) error {
	rh, temp, err := s.measure(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("si7021 measurement unavailable", "error", err)
		return nil
	}
	r.MustSet(wire.TagHygroTemp, wire.Deci(temp))
	r.MustSet(wire.TagHygroHumidity, wire.Deci(rh))
	return nil
}

func (s *Si7021) measure(ctx context.Context) (rh, temp float64, err error) {
	if err := s.dev.Tx([]byte{si7021MeasureRH}, nil); err != nil {
		return 0, 0, err
	}
	if err := sleep(ctx, s.ConversionDelay); err != nil {
		return 0, 0, err
	}

	var buf [3]byte
	if err := s.dev.Tx(nil, buf[:]); err != nil {
		return 0, 0, err
	}
	if crc := si7021CRC(buf[:2]); crc != buf[2] {
		return 0, 0, fmt.Errorf("humidity checksum 0x%02X, want 0x%02X", buf[2], crc)
	}
	rhRaw := uint16(buf[0])<<8 | uint16(buf[1])

	if err := s.dev.Tx([]byte{si7021TempFromRH}, buf[:2]); err != nil {
		return 0, 0, err
	}
	tRaw := uint16(buf[0])<<8 | uint16(buf[1])

	return si7021Humidity(rhRaw), si7021Temperature(tRaw), nil
}

func si7021Humidity(raw uint16) float64 {
	return 125.0*float64(raw&^3)/65536.0 - 6.0
}

func si7021Temperature(raw uint16) float64 {
	return 175.72*float64(raw&^3)/65536.0 - 46.85
}

// si7021CRC is CRC-8 with polynomial x^8+x^5+x^4+1, initial value 0.
func si7021CRC(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
